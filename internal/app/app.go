package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/you/mimora/internal/config"
	httpx "github.com/you/mimora/internal/http"
	"github.com/you/mimora/internal/http/handlers"
	"github.com/you/mimora/internal/http/middleware"
	"github.com/you/mimora/internal/logging"
	"github.com/you/mimora/internal/services"
)

const shutdownTimeout = 10 * time.Second

// NewHandler builds the HTTP handler for a wired container
func NewHandler(c *Container) http.Handler {
	cfg := c.Config

	r := httpx.BuildRouter(httpx.Handlers{
		Session:    handlers.NewSessionHandlers(),
		Onboarding: handlers.NewOnboardingHandlers(cfg.UploadMaxSizeBytes),
		Views:      &handlers.ViewHandlers{},
		Policies:   &handlers.PolicyHandlers{Policies: c.PolicySvc},
	}, httpx.Middleware{
		Client:    middleware.NewClientMW(c.Registry),
		ViewGuard: middleware.NewViewGuardMW(services.NewRouteGuard(), c.PolicySvc, c.AuditLogger),
		Admin:     middleware.NewAdminMW(cfg.AdminAPIKey),
	})
	r.Static("/uploads", cfg.UploadDir)

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.ClientHeader},
		AllowCredentials: true,
	}).Handler(r)
}

// Run wires the service and serves until SIGINT or SIGTERM
func Run(cfg *config.Config) error {
	log := logging.Logger.WithField("component", "app")
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := NewContainer(ctx, cfg, logging.Logger.WithField("app", cfg.AppName))
	if err != nil {
		return err
	}
	defer c.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewHandler(c),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
