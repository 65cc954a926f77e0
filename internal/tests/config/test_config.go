package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"

	"github.com/you/mimora/internal/config"
)

// LoadTestConfig loads the repository's config.yml with test overrides.
// Connection settings are ignored by the in-process suites.
func LoadTestConfig(t *testing.T) *config.Config {
	t.Helper()

	// Load test environment variables from .env.test
	if err := godotenv.Load(filepath.Join(GetProjectRoot(), ".env.test")); err != nil {
		t.Logf("Warning: Could not load .env.test file: %v", err)
	}
	SetupTestEnvironment(t)

	cfg, err := config.LoadFile(filepath.Join(GetProjectRoot(), "config", "config.yml"))
	if err != nil {
		t.Fatalf("Failed to load test configuration: %v", err)
	}
	cfg.UploadDir = t.TempDir()
	cfg.UploadBaseURL = "http://localhost/uploads"
	cfg.AdminAPIKey = GetTestAdminKey()
	if cfg.CasbinModelPath != "" && !filepath.IsAbs(cfg.CasbinModelPath) {
		cfg.CasbinModelPath = filepath.Join(GetProjectRoot(), cfg.CasbinModelPath)
	}
	return cfg
}

// GetTestJWTSecret returns a deterministic JWT secret for testing
func GetTestJWTSecret() string {
	return "test-jwt-secret-for-e2e"
}

// GetTestAdminKey returns the admin API key used by the suites
func GetTestAdminKey() string {
	return "test-admin-key"
}

// SetupTestEnvironment sets up environment variables for the test duration
func SetupTestEnvironment(t *testing.T) {
	t.Helper()

	testEnvVars := map[string]string{
		"GIN_MODE":           "test",
		"JWT_SECRET":         GetTestJWTSecret(),
		"NATS_URL":           "",
		"OIDC_CLIENT_ID":     "",
		"TWILIO_ACCOUNT_SID": "test_sid",
		"TWILIO_AUTH_TOKEN":  "test_token",
		"TWILIO_FROM_NUMBER": "+15551234567",
	}
	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}
}

// GetProjectRoot returns the project root directory for config files
func GetProjectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}

	// Navigate up to find the project root (where go.mod exists)
	for {
		if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
			return wd
		}

		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}

	return "."
}
