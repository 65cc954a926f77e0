package services

import (
	"sync"
	"time"

	"github.com/you/mimora/domain"
)

// expiryMonitor re-runs check every interval until stopped or until check
// reports that the owning state has ended
type expiryMonitor struct {
	clock    domain.Clock
	interval time.Duration
	check    func() bool

	mu      sync.Mutex
	timer   domain.Timer
	seq     uint64
	running bool
}

func newExpiryMonitor(clock domain.Clock, interval time.Duration, check func() bool) *expiryMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &expiryMonitor{clock: clock, interval: interval, check: check}
}

func (e *expiryMonitor) start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.running = true
	e.armLocked(e.seq)
}

func (e *expiryMonitor) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *expiryMonitor) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *expiryMonitor) stopLocked() {
	e.running = false
	e.seq++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *expiryMonitor) armLocked(seq uint64) {
	e.timer = e.clock.AfterFunc(e.interval, func() { e.tick(seq) })
}

func (e *expiryMonitor) tick(seq uint64) {
	e.mu.Lock()
	if !e.running || e.seq != seq {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	e.mu.Unlock()

	keep := e.check()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.seq != seq {
		return
	}
	if !keep {
		e.stopLocked()
		return
	}
	e.armLocked(seq)
}
