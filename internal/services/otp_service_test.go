package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/mocks"
)

var codePattern = regexp.MustCompile(`\d{6}`)

// createOTPServiceForTest creates an OTPService backed by miniredis and
// returns a pointer to the last code delivered
func createOTPServiceForTest(t *testing.T) (*OTPServiceImpl, *mocks.MockNotificationService, *miniredis.Miniredis, *string) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	var lastCode string
	notificationSvc := mocks.NewMockNotificationService()
	notificationSvc.SendSMSFunc = func(to, message string) error {
		lastCode = codePattern.FindString(message)
		return nil
	}
	notificationSvc.SendEmailFunc = func(to, subject, body string) error {
		lastCode = codePattern.FindString(body)
		return nil
	}

	svc := NewOTPService(notificationSvc, mocks.NewMockCodeHasher(), redisClient, createTestOTPConfig(t))
	return svc, notificationSvc, mr, &lastCode
}

// createTestOTPConfig creates a test OTP configuration
func createTestOTPConfig(t *testing.T) OTPConfig {
	t.Helper()

	return OTPConfig{
		Length:       6,
		TTL:          5 * time.Minute,
		MaxAttempts:  3,
		ResendWindow: 30 * time.Second,
	}
}

func TestOTPServiceImpl_Generate(t *testing.T) {
	tests := []struct {
		name      string
		channel   domain.Channel
		target    string
		sendError error
		preSetup  func(mr *miniredis.Miniredis)
		wantErr   error
		wantKeys  bool
	}{
		{
			name:     "phone code stored and sent",
			channel:  domain.ChannelPhone,
			target:   "+919812345678",
			wantKeys: true,
		},
		{
			name:     "email code stored and sent",
			channel:  domain.ChannelEmail,
			target:   "a@b.com",
			wantKeys: true,
		},
		{
			name:    "resend throttle active",
			channel: domain.ChannelPhone,
			target:  "+919812345678",
			preSetup: func(mr *miniredis.Miniredis) {
				mr.Set(resendKey(domain.ChannelPhone, "+919812345678"), "1")
				mr.SetTTL(resendKey(domain.ChannelPhone, "+919812345678"), 20*time.Second)
			},
			wantErr: domain.ErrRateLimited,
		},
		{
			name:      "delivery fails and keys are cleaned up",
			channel:   domain.ChannelPhone,
			target:    "+919812345678",
			sendError: errors.New("SMS service unavailable"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, notificationSvc, mr, lastCode := createOTPServiceForTest(t)
			if tt.sendError != nil {
				notificationSvc.SendSMSFunc = func(to, message string) error { return tt.sendError }
			}
			if tt.preSetup != nil {
				tt.preSetup(mr)
			}

			req, err := svc.Generate(context.Background(), tt.channel, tt.target, "Mimora login")

			if tt.sendError != nil {
				if !errors.Is(err, tt.sendError) {
					t.Fatalf("expected delivery error, got %v", err)
				}
				if keys := mr.Keys(); len(keys) != 0 {
					t.Errorf("expected no keys after failed delivery, got %v", keys)
				}
				if d := notificationSvc.Deliveries(); len(d) != 0 {
					t.Errorf("expected nothing recorded for a failed delivery, got %+v", d)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if req != nil {
					t.Error("expected nil request on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Target != tt.target || req.Channel != tt.channel {
				t.Errorf("unexpected request %+v", req)
			}
			if len(*lastCode) != 6 {
				t.Errorf("expected a 6 digit code to be delivered, got %q", *lastCode)
			}
			if got := notificationSvc.LastCode(tt.target); got != *lastCode {
				t.Errorf("expected %q delivered to %s, got %q", *lastCode, tt.target, got)
			}
			if d := notificationSvc.Deliveries(); len(d) != 1 || d[0].Channel != tt.channel {
				t.Errorf("expected one %s delivery, got %+v", tt.channel, d)
			}
			if !mr.Exists(otpKey(req.Handle)) {
				t.Error("OTP key should exist in Redis")
			}
			stored, _ := mr.Get(otpKey(req.Handle))
			if !strings.Contains(stored, "hashed_"+*lastCode) {
				t.Errorf("expected hashed code in record, got %s", stored)
			}
			if ttl := mr.TTL(resendKey(tt.channel, tt.target)); ttl != 30*time.Second {
				t.Errorf("expected resend window 30s, got %v", ttl)
			}
		})
	}
}

func TestOTPServiceImpl_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("correct code succeeds once", func(t *testing.T) {
		svc, _, mr, lastCode := createOTPServiceForTest(t)
		req, err := svc.Generate(ctx, domain.ChannelPhone, "+919812345678", "")
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		got, err := svc.Verify(ctx, req.Handle, *lastCode)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got.Target != "+919812345678" {
			t.Errorf("expected target to round trip, got %s", got.Target)
		}
		if mr.Exists(otpKey(req.Handle)) {
			t.Error("OTP key should be removed after success")
		}
		if _, err := svc.Verify(ctx, req.Handle, *lastCode); !errors.Is(err, domain.ErrCodeExpired) {
			t.Errorf("expected reuse to fail with ErrCodeExpired, got %v", err)
		}
	})

	t.Run("wrong code then lockout", func(t *testing.T) {
		svc, _, _, lastCode := createOTPServiceForTest(t)
		req, err := svc.Generate(ctx, domain.ChannelEmail, "a@b.com", "")
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		wrong := "000000"
		if *lastCode == wrong {
			wrong = "111111"
		}
		for i := 0; i < 3; i++ {
			if _, err := svc.Verify(ctx, req.Handle, wrong); !errors.Is(err, domain.ErrInvalidCode) {
				t.Fatalf("attempt %d: expected ErrInvalidCode, got %v", i+1, err)
			}
		}
		if _, err := svc.Verify(ctx, req.Handle, *lastCode); !errors.Is(err, domain.ErrCodeExpired) {
			t.Errorf("expected lockout after max attempts, got %v", err)
		}
	})

	t.Run("expired code", func(t *testing.T) {
		svc, _, mr, lastCode := createOTPServiceForTest(t)
		req, err := svc.Generate(ctx, domain.ChannelPhone, "+919812345678", "")
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		mr.FastForward(6 * time.Minute)
		if _, err := svc.Verify(ctx, req.Handle, *lastCode); !errors.Is(err, domain.ErrCodeExpired) {
			t.Errorf("expected ErrCodeExpired, got %v", err)
		}
	})
}

func TestOTPServiceImpl_CanResend(t *testing.T) {
	ctx := context.Background()
	svc, _, mr, _ := createOTPServiceForTest(t)

	ok, wait, err := svc.CanResend(ctx, domain.ChannelPhone, "+919812345678")
	if err != nil || !ok || wait != 0 {
		t.Fatalf("expected resend allowed, got ok=%v wait=%d err=%v", ok, wait, err)
	}

	if _, err := svc.Generate(ctx, domain.ChannelPhone, "+919812345678", ""); err != nil {
		t.Fatalf("generate: %v", err)
	}
	ok, wait, _ = svc.CanResend(ctx, domain.ChannelPhone, "+919812345678")
	if ok || wait <= 0 {
		t.Errorf("expected throttle after send, got ok=%v wait=%d", ok, wait)
	}

	mr.FastForward(31 * time.Second)
	ok, _, _ = svc.CanResend(ctx, domain.ChannelPhone, "+919812345678")
	if !ok {
		t.Error("expected resend allowed after the window")
	}
}
