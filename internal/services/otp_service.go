package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/you/mimora/domain"
)

// OTPServiceImpl implements domain.OTPService using Redis persistence.
// Codes are stored hashed; the plain code only ever leaves through the
// notification service.
type OTPServiceImpl struct {
	notificationSvc domain.NotificationService
	hasher          domain.CodeHasher
	redisClient     *redis.Client
	config          OTPConfig
	now             func() time.Time
}

type OTPConfig struct {
	Length       int
	TTL          time.Duration
	MaxAttempts  int
	ResendWindow time.Duration
}

type otpRecord struct {
	Channel   domain.Channel `json:"channel"`
	Target    string         `json:"target"`
	Hash      string         `json:"hash"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// NewOTPService creates a new Redis-based OTP service
func NewOTPService(notificationSvc domain.NotificationService, hasher domain.CodeHasher, redisClient *redis.Client, config OTPConfig) *OTPServiceImpl {
	return &OTPServiceImpl{
		notificationSvc: notificationSvc,
		hasher:          hasher,
		redisClient:     redisClient,
		config:          config,
		now:             time.Now,
	}
}

func otpKey(handle domain.ChallengeHandle) string      { return fmt.Sprintf("otp:%s", handle) }
func attemptsKey(handle domain.ChallengeHandle) string { return fmt.Sprintf("otp:att:%s", handle) }
func resendKey(channel domain.Channel, target string) string {
	return fmt.Sprintf("otp:res:%s:%s", channel, target)
}

// Generate implements domain.OTPService with Redis persistence
func (s *OTPServiceImpl) Generate(ctx context.Context, channel domain.Channel, target, label string) (*domain.OTPRequest, error) {
	// Check resend throttle
	if canResend, waitTime, err := s.CanResend(ctx, channel, target); err != nil {
		return nil, err
	} else if !canResend {
		return nil, fmt.Errorf("%w: please wait %d seconds before requesting a new code", domain.ErrRateLimited, waitTime)
	}

	code, err := s.generateSecureCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP code: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return nil, fmt.Errorf("failed to hash OTP code: %w", err)
	}

	handle := domain.ChallengeHandle(uuid.NewString())
	expiresAt := s.now().Add(s.config.TTL)
	record, err := json.Marshal(otpRecord{Channel: channel, Target: target, Hash: hash, ExpiresAt: expiresAt})
	if err != nil {
		return nil, err
	}

	pipe := s.redisClient.TxPipeline()
	pipe.Set(ctx, otpKey(handle), record, s.config.TTL)
	pipe.Set(ctx, attemptsKey(handle), 0, s.config.TTL)
	pipe.Set(ctx, resendKey(channel, target), 1, s.config.ResendWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store OTP in Redis: %w", err)
	}

	if err := s.deliver(channel, target, label, code); err != nil {
		// Clean up Redis entries if delivery fails
		s.redisClient.Del(ctx, otpKey(handle), attemptsKey(handle), resendKey(channel, target))
		return nil, fmt.Errorf("failed to send OTP: %w", err)
	}

	return &domain.OTPRequest{
		Handle:    handle,
		Channel:   channel,
		Target:    target,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *OTPServiceImpl) deliver(channel domain.Channel, target, label, code string) error {
	minutes := int(s.config.TTL.Minutes())
	if channel == domain.ChannelEmail {
		if label == "" {
			label = "Your verification code"
		}
		body := fmt.Sprintf("Your verification code is %s. It is valid for %d minutes.", code, minutes)
		return s.notificationSvc.SendEmail(target, label, body)
	}
	message := fmt.Sprintf("Your verification code is: %s. Valid for %d minutes.", code, minutes)
	return s.notificationSvc.SendSMS(target, message)
}

// Verify implements domain.OTPService with Redis persistence
func (s *OTPServiceImpl) Verify(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.OTPRequest, error) {
	raw, err := s.redisClient.Get(ctx, otpKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCodeExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get OTP from Redis: %w", err)
	}
	var rec otpRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.redisClient.Del(ctx, otpKey(handle), attemptsKey(handle))
		return nil, domain.ErrCodeExpired
	}

	// Increment attempts counter atomically
	attempts, err := s.redisClient.Incr(ctx, attemptsKey(handle)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to increment attempts: %w", err)
	}
	if attempts > int64(s.config.MaxAttempts) {
		s.redisClient.Del(ctx, otpKey(handle), attemptsKey(handle))
		return nil, domain.ErrCodeExpired
	}

	if !s.hasher.Verify(rec.Hash, code) {
		return nil, domain.ErrInvalidCode
	}

	// Success - clean up Redis entries
	s.redisClient.Del(ctx, otpKey(handle), attemptsKey(handle))
	return &domain.OTPRequest{
		Handle:    handle,
		Channel:   rec.Channel,
		Target:    rec.Target,
		ExpiresAt: rec.ExpiresAt,
		Attempts:  int(attempts),
	}, nil
}

// CanResend implements domain.OTPService with Redis-based throttling
func (s *OTPServiceImpl) CanResend(ctx context.Context, channel domain.Channel, target string) (bool, int64, error) {
	ttl, err := s.redisClient.TTL(ctx, resendKey(channel, target)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to check resend TTL: %w", err)
	}

	// If TTL <= 0, key doesn't exist or has expired - can resend
	if ttl <= 0 {
		return true, 0, nil
	}
	return false, int64(ttl.Seconds()), nil
}

// generateSecureCode generates a cryptographically secure OTP code
func (s *OTPServiceImpl) generateSecureCode() (string, error) {
	length := s.config.Length
	if length <= 0 {
		length = 6
	}
	digits := make([]byte, length)
	for i := range digits {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		digits[i] = byte('0' + num.Int64())
	}
	return string(digits), nil
}

var _ domain.OTPService = (*OTPServiceImpl)(nil)
