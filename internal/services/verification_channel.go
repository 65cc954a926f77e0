package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
)

// ChannelConfig tunes a VerificationChannel
type ChannelConfig struct {
	ResendCooldown time.Duration
	// EmailLabel is passed to the provider as the email challenge label
	EmailLabel string
}

// VerificationChannel runs one OTP challenge/response cycle for a single
// channel. Phase changes happen under mu; provider calls happen outside it
// and are applied only if the generation captured before the call is still
// current.
type VerificationChannel struct {
	channel domain.Channel
	idp     domain.IdentityProvider
	guard   *PendingGuard
	clock   domain.Clock
	audit   domain.AuditLogger
	config  ChannelConfig
	log     *logrus.Entry

	mu          sync.Mutex
	gen         uint64
	phase       domain.Phase
	target      string
	handle      domain.ChallengeHandle
	code        string
	resendAt    time.Time
	resendReady bool
	countdown   domain.Timer
	countSeq    uint64
	token       *domain.ProviderToken
	lastErr     error
	closed      bool
}

// NewVerificationChannel creates an idle channel sharing guard with its owner
func NewVerificationChannel(
	channel domain.Channel,
	idp domain.IdentityProvider,
	guard *PendingGuard,
	clock domain.Clock,
	audit domain.AuditLogger,
	config ChannelConfig,
	log *logrus.Entry,
) *VerificationChannel {
	if config.ResendCooldown <= 0 {
		config.ResendCooldown = 30 * time.Second
	}
	return &VerificationChannel{
		channel: channel,
		idp:     idp,
		guard:   guard,
		clock:   clock,
		audit:   audit,
		config:  config,
		log:     log.WithField("channel", channel),
		phase:   domain.PhaseIdle,
	}
}

// Channel returns the medium this instance verifies
func (c *VerificationChannel) Channel() domain.Channel {
	return c.channel
}

// StartChallenge sends a code to target. Allowed from idle, or from sent
// once the resend cooldown has elapsed.
func (c *VerificationChannel) StartChallenge(ctx context.Context, target string) error {
	release, err := c.guard.Acquire(domain.ActionSendingOTP)
	if err != nil {
		return err
	}
	defer release()
	return c.start(ctx, target)
}

// start assumes the caller holds the pending guard
func (c *VerificationChannel) start(ctx context.Context, target string) error {
	if err := ValidateTarget(c.channel, target); err != nil {
		c.setError(err)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	switch c.phase {
	case domain.PhaseIdle:
	case domain.PhaseSent:
		if now := c.clock.Now(); now.Before(c.resendAt) {
			wait := int64(c.resendAt.Sub(now).Seconds() + 0.999)
			err := fmt.Errorf("%w: resend available in %ds", domain.ErrRateLimited, wait)
			c.lastErr = err
			c.mu.Unlock()
			return err
		}
	default:
		c.lastErr = domain.ErrRateLimited
		c.mu.Unlock()
		return domain.ErrRateLimited
	}
	prev := c.phase
	c.phase = domain.PhaseSending
	c.code = ""
	c.lastErr = nil
	gen := c.gen
	c.mu.Unlock()

	var handle domain.ChallengeHandle
	var err error
	if c.channel == domain.ChannelEmail {
		handle, err = c.idp.SendEmailChallenge(ctx, target, c.config.EmailLabel)
	} else {
		handle, err = c.idp.SendPhoneChallenge(ctx, target)
	}
	err = mapProviderError(err)
	_ = c.audit.LogOTPRequest(ctx, c.channel, target, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return domain.ErrSuperseded
	}
	if err != nil {
		c.phase = prev
		c.lastErr = err
		c.log.WithError(err).Warn("challenge send failed")
		return err
	}

	c.target = target
	c.handle = handle
	c.phase = domain.PhaseSent
	c.startCountdownLocked()
	c.log.WithField("handle", handle).Info("challenge sent")
	return nil
}

// SubmitCode confirms code against the outstanding challenge. Only valid
// in phase sent; on failure the channel falls back to sent.
func (c *VerificationChannel) SubmitCode(ctx context.Context, code string) (*domain.ProviderToken, error) {
	release, err := c.guard.Acquire(domain.ActionVerifyingOTP)
	if err != nil {
		return nil, err
	}
	defer release()
	return c.submit(ctx, code)
}

// submit assumes the caller holds the pending guard
func (c *VerificationChannel) submit(ctx context.Context, code string) (*domain.ProviderToken, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrClosed
	}
	if c.phase != domain.PhaseSent {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: submit code in phase %s", domain.ErrInvalidPhase, c.phase)
	}
	if err := ValidateCode(code); err != nil {
		c.lastErr = err
		c.mu.Unlock()
		return nil, err
	}
	c.phase = domain.PhaseVerifying
	c.code = code
	c.lastErr = nil
	handle, target, gen := c.handle, c.target, c.gen
	c.mu.Unlock()

	var tok *domain.ProviderToken
	var err error
	if c.channel == domain.ChannelEmail {
		tok, err = c.idp.ConfirmEmailChallenge(ctx, handle, code)
	} else {
		tok, err = c.idp.ConfirmPhoneChallenge(ctx, handle, code)
	}
	if err == nil && tok == nil {
		err = errors.New("provider returned no token")
	}
	err = mapProviderError(err)
	_ = c.audit.LogOTPVerification(ctx, c.channel, target, err == nil, errString(err))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return nil, domain.ErrSuperseded
	}
	if err != nil {
		c.phase = domain.PhaseSent
		c.code = ""
		c.lastErr = err
		return nil, err
	}

	c.phase = domain.PhaseVerified
	c.token = tok
	c.stopCountdownLocked()
	return tok, nil
}

// Reset returns the channel to idle and invalidates in-flight calls
func (c *VerificationChannel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *VerificationChannel) resetLocked() {
	c.gen++
	c.stopCountdownLocked()
	c.phase = domain.PhaseIdle
	c.target = ""
	c.handle = ""
	c.code = ""
	c.token = nil
	c.lastErr = nil
	c.resendAt = time.Time{}
	c.resendReady = false
}

// Close stops the countdown for good; later calls fail with ErrClosed
func (c *VerificationChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.closed = true
}

// ClearError drops lastError after an input change
func (c *VerificationChannel) ClearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
}

// Snapshot returns the current attempt
func (c *VerificationChannel) Snapshot() domain.VerificationAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.VerificationAttempt{
		Channel:           c.channel,
		Target:            c.target,
		Phase:             c.phase,
		ResendAvailableAt: c.resendAt,
		CanResend:         c.phase == domain.PhaseSent && c.resendReady,
		Code:              c.code,
		LastError:         errString(c.lastErr),
	}
}

// Verified returns the verified target, if any
func (c *VerificationChannel) Verified() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != domain.PhaseVerified {
		return "", false
	}
	return c.target, true
}

func (c *VerificationChannel) setError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *VerificationChannel) startCountdownLocked() {
	c.stopCountdownLocked()
	c.resendAt = c.clock.Now().Add(c.config.ResendCooldown)
	c.resendReady = false
	c.countSeq++
	seq := c.countSeq
	c.countdown = c.clock.AfterFunc(c.config.ResendCooldown, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.countSeq == seq {
			c.resendReady = true
			c.countdown = nil
		}
	})
}

func (c *VerificationChannel) stopCountdownLocked() {
	c.countSeq++
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}
