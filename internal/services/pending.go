package services

import (
	"sync"

	"github.com/you/mimora/domain"
)

// PendingGuard holds the single in-flight action of a client. Every
// mutating operation acquires it, so a second concurrent action is
// rejected instead of racing the first.
type PendingGuard struct {
	mu     sync.Mutex
	action domain.PendingAction
	seq    uint64
}

// NewPendingGuard returns an idle guard
func NewPendingGuard() *PendingGuard {
	return &PendingGuard{}
}

// Acquire marks action as pending. The returned release func is safe to
// call more than once and does nothing after Reset.
func (g *PendingGuard) Acquire(action domain.PendingAction) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.action != domain.ActionNone {
		return nil, domain.ErrActionInProgress
	}
	g.action = action
	g.seq++
	seq := g.seq

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.seq == seq {
			g.action = domain.ActionNone
		}
	}, nil
}

// Retag changes the label of the held action from one stage to the next
func (g *PendingGuard) Retag(from, to domain.PendingAction) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.action != from {
		return false
	}
	g.action = to
	return true
}

// Current returns the pending action, or ActionNone
func (g *PendingGuard) Current() domain.PendingAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.action
}

// Reset drops the pending action; outstanding release funcs become no-ops
func (g *PendingGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.action = domain.ActionNone
	g.seq++
}
