package di

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	apphttp "homesvc.app/client/internal/application/http"
	"homesvc.app/client/internal/application/services"
	"homesvc.app/client/internal/core/ports"
	"homesvc.app/client/internal/infrastructure/api"
	"homesvc.app/client/internal/infrastructure/auth"
	"homesvc.app/client/internal/infrastructure/config"
	httpinfra "homesvc.app/client/internal/infrastructure/http"
	"homesvc.app/client/internal/infrastructure/logging"
	"homesvc.app/client/internal/infrastructure/storage"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger zerolog.Logger

	// Infrastructure
	Storage    ports.KeyValueStorage
	TokenStore *auth.TokenStore
	Transport  *httpinfra.Client
	Backend    *apphttp.BackendClient
	Gateway    *api.AuthGateway
	BearerAuth *httpinfra.BearerAuth

	// Session
	Session *services.AuthSessionManager
}

// Options tweak container construction, mostly for tests
type Options struct {
	// LogOutput receives log lines; stderr when nil
	LogOutput io.Writer
	// Transport is the innermost round tripper; http.DefaultTransport when nil
	Transport http.RoundTripper
}

// NewContainer wires the session stack for cfg and starts the startup read.
// It does not wait for initialization; callers that need a settled session
// call Session.WaitForInitialization.
func NewContainer(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, opts.LogOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c := &Container{Config: cfg, Logger: logger}
	c.initializeComponents(ctx, opts)

	return c, nil
}

// initializeComponents builds the graph leaves first
func (c *Container) initializeComponents(ctx context.Context, opts Options) {
	cfg := c.Config

	// 1. Storage. Without it the session works for this process only.
	kv, err := storage.Open(ctx, storage.Options{
		Backend:  cfg.Storage,
		Dir:      cfg.StorageDir,
		RedisURL: cfg.RedisURL,
	}, c.Logger)
	if err != nil {
		c.Logger.Warn().Err(err).Str("backend", cfg.Storage).Msg("storage unavailable, session will not be persisted")
		kv = nil
	}
	c.Storage = kv
	c.TokenStore = auth.NewTokenStore(kv, auth.NewStoreKeys(cfg.StorageNamespace), c.Logger)

	// 2. HTTP client with everything except authentication
	c.Transport = httpinfra.NewClient(opts.Transport, cfg.RequestTimeout)
	c.Transport.Use(
		httpinfra.Logging(c.Logger),
		httpinfra.RequestID(),
		httpinfra.StaticHeaders(map[string]string{"User-Agent": cfg.UserAgent}),
	)
	if cfg.RateLimit > 0 {
		c.Transport.Use(httpinfra.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)))
	}
	c.Backend = apphttp.NewBackendClient(cfg.Endpoint(), c.Transport.HTTPClient())

	// 3. Gateway and session
	c.Gateway = api.NewAuthGateway(c.Backend, cfg.AuthPaths(), c.Logger)
	c.Session = services.NewAuthSessionManager(c.TokenStore, c.Gateway, c.Logger)

	// 4. Authentication goes last so it sits closest to the wire
	c.BearerAuth = httpinfra.NewBearerAuth(c.TokenStore, c.Session, cfg.AuthPaths(), cfg.RefreshTimeout, c.Logger)
	c.Transport.Use(c.BearerAuth.Interceptor())

	if c.Logger.GetLevel() <= zerolog.DebugLevel {
		updates, _ := c.Session.Subscribe(context.WithoutCancel(ctx))
		go logging.LogSessionEvents(c.Logger, updates)
	}

	c.Session.Start(ctx)
	c.Logger.Debug().Str("api_url", cfg.APIURL).Str("storage", cfg.Storage).Msg("container initialized")
}

// HealthCheck verifies that every component was built and the session settled
func (c *Container) HealthCheck(ctx context.Context) error {
	if c.TokenStore == nil {
		return fmt.Errorf("token store not initialized")
	}
	if c.Gateway == nil {
		return fmt.Errorf("auth gateway not initialized")
	}
	if c.Session == nil {
		return fmt.Errorf("session manager not initialized")
	}
	if err := c.Session.WaitForInitialization(ctx); err != nil {
		return fmt.Errorf("session did not initialize: %w", err)
	}
	return nil
}

// Shutdown ends subscriptions and closes storage
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error

	if c.Session != nil {
		c.Session.Close()
	}
	if c.Storage != nil {
		if err := c.Storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}

	c.Logger.Debug().Msg("shutdown complete")
	return errors.Join(errs...)
}
