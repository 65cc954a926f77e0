package services

import (
	"errors"
	"testing"

	"github.com/you/mimora/domain"
)

func TestPendingGuard(t *testing.T) {
	g := NewPendingGuard()

	release, err := g.Acquire(domain.ActionCheckingUser)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := g.Acquire(domain.ActionVerifyingOTP); !errors.Is(err, domain.ErrActionInProgress) {
		t.Errorf("expected ErrActionInProgress, got %v", err)
	}

	if !g.Retag(domain.ActionCheckingUser, domain.ActionSendingOTP) {
		t.Error("retag from the held action should succeed")
	}
	if g.Retag(domain.ActionCheckingUser, domain.ActionSendingOTP) {
		t.Error("retag from a stale action should fail")
	}
	if g.Current() != domain.ActionSendingOTP {
		t.Errorf("expected %s, got %s", domain.ActionSendingOTP, g.Current())
	}

	release()
	release()
	if g.Current() != domain.ActionNone {
		t.Error("release should clear the action")
	}
}

func TestPendingGuard_StaleReleaseAfterReset(t *testing.T) {
	g := NewPendingGuard()
	stale, _ := g.Acquire(domain.ActionSendingOTP)

	g.Reset()
	fresh, err := g.Acquire(domain.ActionProviderLogin)
	if err != nil {
		t.Fatalf("acquire after reset: %v", err)
	}

	stale()
	if g.Current() != domain.ActionProviderLogin {
		t.Error("a release from before Reset must not clear the new holder")
	}
	fresh()
	if g.Current() != domain.ActionNone {
		t.Error("expected guard to be idle")
	}
}
