package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Name           string   `yaml:"name"`
	Port           int      `yaml:"port"`
	GinMode        string   `yaml:"gin_mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret"`
	Issuer      string `yaml:"issuer"`
	ProviderTTL string `yaml:"provider_ttl"`
	SessionTTL  string `yaml:"session_ttl"`
}

type OTPConfig struct {
	TTL            string `yaml:"ttl"`
	Length         int    `yaml:"length"`
	MaxAttempts    int    `yaml:"max_attempts"`
	ResendWindow   string `yaml:"resend_window"`
	ClientCooldown string `yaml:"client_cooldown"`
}

type SessionConfig struct {
	ExpiryCheckInterval string `yaml:"expiry_check_interval"`
	ExpiryWarning       string `yaml:"expiry_warning"`
	ClientIdleTTL       string `yaml:"client_idle_ttl"`
	EvictionSchedule    string `yaml:"eviction_schedule"`
	StoreTTL            string `yaml:"store_ttl"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type OIDCConfig struct {
	Issuer   string `yaml:"issuer"`
	ClientID string `yaml:"client_id"`
}

type UploadConfig struct {
	Dir          string   `yaml:"dir"`
	BaseURL      string   `yaml:"base_url"`
	MaxSizeBytes int64    `yaml:"max_size_bytes"`
	AllowedTypes []string `yaml:"allowed_types"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type CasbinConfig struct {
	ModelPath string `yaml:"model_path"`
}

type AdminConfig struct {
	APIKey string `yaml:"api_key"`
}

type ConfigFile struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	OTP      OTPConfig      `yaml:"otp"`
	Session  SessionConfig  `yaml:"session"`
	Twilio   TwilioConfig   `yaml:"twilio"`
	SendGrid SendGridConfig `yaml:"sendgrid"`
	OIDC     OIDCConfig     `yaml:"oidc"`
	Upload   UploadConfig   `yaml:"upload"`
	NATS     NATSConfig     `yaml:"nats"`
	Casbin   CasbinConfig   `yaml:"casbin"`
	Admin    AdminConfig    `yaml:"admin"`
}

type Config struct {
	AppName        string
	Port           string
	GinMode        string
	AllowedOrigins []string

	DSN         string
	AutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret   string
	JWTIssuer   string
	ProviderTTL time.Duration
	SessionTTL  time.Duration

	OTP_TTL            time.Duration
	OTP_Length         int
	OTP_MaxAttempts    int
	OTP_ResendWindow   time.Duration
	OTP_ClientCooldown time.Duration

	ExpiryCheckInterval time.Duration
	ExpiryWarning       time.Duration
	ClientIdleTTL       time.Duration
	EvictionSchedule    string
	StoreTTL            time.Duration

	TwilioSID   string
	TwilioToken string
	TwilioFrom  string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	OIDCIssuer   string
	OIDCClientID string

	UploadDir          string
	UploadBaseURL      string
	UploadMaxSizeBytes int64
	UploadAllowedTypes []string

	NATSURL     string
	NATSSubject string

	CasbinModelPath string
	AdminAPIKey     string
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads .env (optional), then the YAML file named by CONFIG_PATH
func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	return LoadFile(env("CONFIG_PATH", "config/config.yml"))
}

// LoadFile parses the YAML file at path and applies environment overrides
func LoadFile(path string) (*Config, error) {
	configFile, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return fromFile(configFile)
}

func fromFile(f *ConfigFile) (*Config, error) {
	d := durationParser{}
	providerTTL := d.parse("JWT provider TTL", f.JWT.ProviderTTL, 15*time.Minute)
	sessionTTL := d.parse("JWT session TTL", f.JWT.SessionTTL, 24*time.Hour)
	otpTTL := d.parse("OTP TTL", f.OTP.TTL, 5*time.Minute)
	resWnd := d.parse("OTP resend window", f.OTP.ResendWindow, 30*time.Second)
	cooldown := d.parse("OTP client cooldown", f.OTP.ClientCooldown, 30*time.Second)
	checkEvery := d.parse("session expiry check interval", f.Session.ExpiryCheckInterval, 5*time.Minute)
	warnWithin := d.parse("session expiry warning", f.Session.ExpiryWarning, 10*time.Minute)
	idleTTL := d.parse("client idle TTL", f.Session.ClientIdleTTL, 30*time.Minute)
	storeTTL := d.parse("store TTL", f.Session.StoreTTL, 30*24*time.Hour)
	if d.err != nil {
		return nil, d.err
	}

	cfg := &Config{
		AppName:            orDefault(f.App.Name, "mimora"),
		Port:               env("PORT", fmt.Sprintf("%d", f.App.Port)),
		GinMode:            env("GIN_MODE", f.App.GinMode),
		AllowedOrigins:     f.App.AllowedOrigins,
		DSN:                env("DATABASE_DSN", f.Database.DSN),
		AutoMigrate:        f.Database.AutoMigrate,
		RedisAddr:          env("REDIS_ADDR", f.Redis.Addr),
		RedisPassword:      env("REDIS_PASSWORD", f.Redis.Password),
		RedisDB:            f.Redis.DB,
		JWTSecret:          env("JWT_SECRET", f.JWT.Secret),
		JWTIssuer:          orDefault(f.JWT.Issuer, "mimora"),
		ProviderTTL:        providerTTL,
		SessionTTL:         sessionTTL,
		OTP_TTL:            otpTTL,
		OTP_Length:         f.OTP.Length,
		OTP_MaxAttempts:    f.OTP.MaxAttempts,
		OTP_ResendWindow:   resWnd,
		OTP_ClientCooldown: cooldown,

		ExpiryCheckInterval: checkEvery,
		ExpiryWarning:       warnWithin,
		ClientIdleTTL:       idleTTL,
		EvictionSchedule:    orDefault(f.Session.EvictionSchedule, "@every 1m"),
		StoreTTL:            storeTTL,

		TwilioSID:   env("TWILIO_ACCOUNT_SID", f.Twilio.AccountSID),
		TwilioToken: env("TWILIO_AUTH_TOKEN", f.Twilio.AuthToken),
		TwilioFrom:  env("TWILIO_FROM_NUMBER", f.Twilio.FromNumber),

		SendGridAPIKey:    env("SENDGRID_API_KEY", f.SendGrid.APIKey),
		SendGridFromEmail: f.SendGrid.FromEmail,
		SendGridFromName:  f.SendGrid.FromName,

		OIDCIssuer:   env("OIDC_ISSUER", f.OIDC.Issuer),
		OIDCClientID: env("OIDC_CLIENT_ID", f.OIDC.ClientID),

		UploadDir:          orDefault(f.Upload.Dir, "uploads"),
		UploadBaseURL:      strings.TrimRight(env("UPLOAD_BASE_URL", orDefault(f.Upload.BaseURL, "/uploads")), "/"),
		UploadMaxSizeBytes: f.Upload.MaxSizeBytes,
		UploadAllowedTypes: f.Upload.AllowedTypes,

		NATSURL:     env("NATS_URL", f.NATS.URL),
		NATSSubject: orDefault(f.NATS.Subject, "mimora.audit"),

		CasbinModelPath: f.Casbin.ModelPath,
		AdminAPIKey:     env("ADMIN_API_KEY", f.Admin.APIKey),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}
	if cfg.OTP_Length == 0 {
		cfg.OTP_Length = 6
	}
	if cfg.OTP_MaxAttempts == 0 {
		cfg.OTP_MaxAttempts = 5
	}
	if cfg.UploadMaxSizeBytes == 0 {
		cfg.UploadMaxSizeBytes = 5 << 20
	}
	if len(cfg.UploadAllowedTypes) == 0 {
		cfg.UploadAllowedTypes = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.OTP_Length != 6 {
		return fmt.Errorf("otp length must be 6, got %d", c.OTP_Length)
	}
	if c.ExpiryWarning <= 0 || c.ExpiryCheckInterval <= 0 {
		return fmt.Errorf("session expiry durations must be positive")
	}
	return nil
}

// durationParser keeps the first parse error
type durationParser struct {
	err error
}

func (d *durationParser) parse(name, value string, def time.Duration) time.Duration {
	if value == "" || d.err != nil {
		return def
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		d.err = fmt.Errorf("invalid %s: %w", name, err)
		return def
	}
	return v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func loadConfigFile(path string) (*ConfigFile, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("could not parse config yaml: %w", err)
	}

	return &config, nil
}
