package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/config"
	"github.com/you/mimora/internal/infrastructure/auth"
	"github.com/you/mimora/internal/infrastructure/database"
	"github.com/you/mimora/internal/infrastructure/events"
	"github.com/you/mimora/internal/infrastructure/identity"
	"github.com/you/mimora/internal/infrastructure/notifications"
	"github.com/you/mimora/internal/infrastructure/repositories"
	"github.com/you/mimora/internal/infrastructure/upload"
	"github.com/you/mimora/internal/services"
)

// Container holds all dependencies
type Container struct {
	// Config
	Config *config.Config
	Log    *logrus.Entry

	// Infrastructure
	DB        *gorm.DB
	Redis     *database.RedisClient
	Publisher *events.NATSPublisher

	// Services
	TokenSvc        domain.TokenService
	NotificationSvc domain.NotificationService
	OTPSvc          domain.OTPService
	IdentitySvc     domain.IdentityProvider
	ProfileSvc      domain.ProfileService
	PolicySvc       domain.PolicyService
	AuditLogger     domain.AuditLogger
	Uploader        domain.Uploader

	// Per-client state machines
	Registry *services.ClientRegistry
}

// NewContainer creates and initializes all dependencies
func NewContainer(ctx context.Context, cfg *config.Config, log *logrus.Entry) (*Container, error) {
	c := &Container{Config: cfg, Log: log}

	// Initialize infrastructure
	if err := c.initDatabase(); err != nil {
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}
	c.initEvents()

	// Initialize services
	if err := c.initServices(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.InitPolicies(); err != nil {
		c.Close()
		return nil, err
	}

	if err := c.InitRegistry(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) initDatabase() error {
	db, err := database.Open(c.Config.DSN, logger.Warn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	c.DB = db

	if c.Config.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return err
		}
		c.Log.Info("database migrated")
	}
	return nil
}

func (c *Container) initRedis(ctx context.Context) error {
	c.Redis = database.NewRedis(c.Config.RedisAddr, c.Config.RedisPassword, c.Config.RedisDB)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Redis.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

// initEvents connects the audit stream. Audit events are still logged when
// NATS is not configured or unreachable.
func (c *Container) initEvents() {
	var publisher domain.EventPublisher
	if c.Config.NATSURL != "" {
		p, err := events.NewNATSPublisher(c.Config.NATSURL, c.Config.AppName, c.Log)
		if err != nil {
			c.Log.WithError(err).Warn("audit events will not be published")
		} else {
			c.Publisher = p
			publisher = p
		}
	}
	c.AuditLogger = events.NewAuditLogger(c.Log, publisher, c.Config.NATSSubject)
}

func (c *Container) initServices(ctx context.Context) error {
	c.TokenSvc = auth.NewJWTService(
		c.Config.JWTSecret,
		c.Config.JWTIssuer,
		c.Config.ProviderTTL,
		c.Config.SessionTTL,
	)

	sms := notifications.NewTwilioService(c.Config.TwilioSID, c.Config.TwilioToken, c.Config.TwilioFrom, c.Log)
	email := notifications.NewSendGridService(c.Config.SendGridAPIKey, c.Config.SendGridFromEmail, c.Config.SendGridFromName, c.Log)
	c.NotificationSvc = notifications.NewDispatcher(sms, email)

	c.OTPSvc = services.NewOTPService(c.NotificationSvc, auth.NewCodeHasher(), c.Redis.Client, services.OTPConfig{
		Length:       c.Config.OTP_Length,
		TTL:          c.Config.OTP_TTL,
		MaxAttempts:  c.Config.OTP_MaxAttempts,
		ResendWindow: c.Config.OTP_ResendWindow,
	})

	var login identity.LoginVerifier
	if c.Config.OIDCClientID != "" {
		v, err := identity.NewOIDCVerifier(ctx, c.Config.OIDCIssuer, c.Config.OIDCClientID)
		if err != nil {
			return err
		}
		login = v
	} else {
		c.Log.Warn("OIDC client not configured; provider login disabled")
	}
	c.IdentitySvc = identity.NewProvider(c.OTPSvc, c.TokenSvc, login, c.Log)

	c.ProfileSvc = repositories.NewProfileService(c.DB, c.TokenSvc)
	c.Uploader = upload.NewLocalUploader(c.Config.UploadDir, c.Config.UploadBaseURL, upload.Policy{
		MaxSizeBytes: c.Config.UploadMaxSizeBytes,
		AllowedTypes: c.Config.UploadAllowedTypes,
	}, c.Log)
	return nil
}

// InitPolicies loads the casbin policy store and seeds the view policies
func (c *Container) InitPolicies() error {
	cas, err := auth.NewCasbinService(c.DB, c.Config.CasbinModelPath)
	if err != nil {
		return fmt.Errorf("failed to initialize casbin: %w", err)
	}
	c.PolicySvc = services.NewPolicyService(cas.E)
	if err := services.SeedViewPolicies(c.PolicySvc); err != nil {
		return fmt.Errorf("failed to seed view policies: %w", err)
	}
	return nil
}

// InitRegistry builds the per-client registry from the wired services and
// starts idle eviction
func (c *Container) InitRegistry() error {
	store := func(id string) domain.Store {
		return repositories.NewRedisStore(c.Redis.Client, id, c.Config.StoreTTL)
	}
	factory := services.NewClientFactory(store, services.SessionDeps{
		Identity: c.IdentitySvc,
		Profiles: c.ProfileSvc,
		Tokens:   c.TokenSvc,
		Audit:    c.AuditLogger,
		Clock:    services.SystemClock(),
		Log:      c.Log,
	}, c.Uploader, services.SessionConfig{
		ResendCooldown:      c.Config.OTP_ClientCooldown,
		ExpiryCheckInterval: c.Config.ExpiryCheckInterval,
		ExpiryWarning:       c.Config.ExpiryWarning,
		EmailLabel:          c.Config.AppName + " sign in",
	})

	c.Registry = services.NewClientRegistry(factory, services.SystemClock(), c.Config.ClientIdleTTL, c.Log)
	return c.Registry.StartEviction(c.Config.EvictionSchedule)
}

// Close closes all connections
func (c *Container) Close() error {
	if c.Registry != nil {
		c.Registry.Close()
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.Log.WithError(err).Warn("failed to drain nats connection")
		}
	}
	if c.Redis != nil {
		c.Redis.Close()
	}

	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}

	return nil
}
