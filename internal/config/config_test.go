package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		env      map[string]string
		wantErr  string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "full file",
			yaml: `
app: {port: 9090, gin_mode: debug}
jwt: {secret: s3cret, provider_ttl: 10m, session_ttl: 2h}
otp: {ttl: 3m, length: 6, max_attempts: 3, resend_window: 45s, client_cooldown: 30s}
session: {expiry_check_interval: 1m, expiry_warning: 5m}
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "9090", cfg.Port)
				assert.Equal(t, 10*time.Minute, cfg.ProviderTTL)
				assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
				assert.Equal(t, 45*time.Second, cfg.OTP_ResendWindow)
				assert.Equal(t, 30*time.Second, cfg.OTP_ClientCooldown)
				assert.Equal(t, 3, cfg.OTP_MaxAttempts)
				assert.Equal(t, time.Minute, cfg.ExpiryCheckInterval)
				assert.Equal(t, "mimora", cfg.AppName)
			},
		},
		{
			name: "defaults applied",
			yaml: `jwt: {secret: s3cret}`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 6, cfg.OTP_Length)
				assert.Equal(t, 30*time.Second, cfg.OTP_ClientCooldown)
				assert.Equal(t, 5*time.Minute, cfg.ExpiryCheckInterval)
				assert.Equal(t, "@every 1m", cfg.EvictionSchedule)
				assert.Equal(t, int64(5<<20), cfg.UploadMaxSizeBytes)
				assert.Contains(t, cfg.UploadAllowedTypes, "image/png")
				assert.Equal(t, "/uploads", cfg.UploadBaseURL)
			},
		},
		{
			name: "environment overrides",
			yaml: `
jwt: {secret: file-secret}
redis: {addr: "file:6379"}
`,
			env: map[string]string{"JWT_SECRET": "env-secret", "REDIS_ADDR": "env:6379", "REDIS_DB": "4", "ADMIN_API_KEY": "adm", "UPLOAD_BASE_URL": "https://cdn.example.com/"},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "env-secret", cfg.JWTSecret)
				assert.Equal(t, "adm", cfg.AdminAPIKey)
				assert.Equal(t, "https://cdn.example.com", cfg.UploadBaseURL)
				assert.Equal(t, "env:6379", cfg.RedisAddr)
				assert.Equal(t, 4, cfg.RedisDB)
			},
		},
		{
			name:    "bad duration",
			yaml:    `{jwt: {secret: s, session_ttl: soon}}`,
			wantErr: "invalid JWT session TTL",
		},
		{
			name:    "missing secret",
			yaml:    `app: {port: 1}`,
			wantErr: "jwt secret is required",
		},
		{
			name:    "wrong code length",
			yaml:    `{jwt: {secret: s}, otp: {length: 4}}`,
			wantErr: "otp length must be 6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadFile(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not read config file")
}
