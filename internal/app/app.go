// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/internal/api"
	"github.com/roelvdh/marktwatch/internal/cache"
	"github.com/roelvdh/marktwatch/internal/check"
	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/internal/extract"
	"github.com/roelvdh/marktwatch/internal/notify"
	"github.com/roelvdh/marktwatch/internal/ratelimit"
	"github.com/roelvdh/marktwatch/internal/realtime"
	"github.com/roelvdh/marktwatch/internal/session"
	"github.com/roelvdh/marktwatch/internal/store"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config       *config.Config
	Logger       *zerolog.Logger
	Store        store.Storage
	Cache        cache.Cache
	RateLimiter  ratelimit.RateLimiter
	Session      *session.Manager
	Extractor    *extract.Extractor
	Mailer       *notify.Mailer
	Hub          *realtime.Hub
	Orchestrator *check.Orchestrator
	Server       *api.Server
	startTime    time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Configures logging based on the provided config
//   - Opens the SQLite store and runs pending migrations
//   - Creates the in-memory cache and per-host rate limiter
//   - Creates the browser session manager (no browser is started yet)
//   - Wires the extractor, mailer, realtime hub, check orchestrator
//     and HTTP server together
//
// If any step fails, an error is returned and already-opened resources
// are released.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logLevel := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logWriter io.Writer
	if cfg.JSONLog {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.NewConsoleWriter()
	}
	logger := log.Output(logWriter).With().Timestamp().Logger()
	log.Logger = logger

	logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")

	st, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	logger.Debug().Str("db", cfg.DBPath).Msg("Store initialized")

	memCache := cache.NewMemoryCache(cfg.CacheMaxSizeBytes)
	logger.Debug().
		Int64("max_size_bytes", cfg.CacheMaxSizeBytes).
		Msg("Memory cache initialized")

	limiter := ratelimit.NewDomainLimiter(cfg.ProxyRateRPS, cfg.ProxyRateBurst)

	sess := session.NewManager(cfg)
	extractor := extract.New()
	mailer := notify.NewMailer()

	// The hub reports the next scheduled check to connecting clients; the
	// orchestrator publishes through the hub. Late-bind the deadline lookup
	// to break the cycle.
	var orch *check.Orchestrator
	hub := realtime.NewHub(func() time.Time {
		if orch == nil {
			return time.Time{}
		}
		return orch.Deadline()
	})
	orch = check.New(cfg, st, sess, extractor, mailer, hub)

	server := api.NewServer(cfg, st, orch, mailer, hub, memCache, limiter)

	app := &Application{
		Config:       cfg,
		Logger:       &logger,
		Store:        st,
		Cache:        memCache,
		RateLimiter:  limiter,
		Session:      sess,
		Extractor:    extractor,
		Mailer:       mailer,
		Hub:          hub,
		Orchestrator: orch,
		Server:       server,
		startTime:    time.Now(),
	}

	go hub.Run()

	logger.Info().Msg("Application initialized successfully")
	return app, nil
}

// Close gracefully shuts down the application and all its resources.
//
// Cleanup order: HTTP server first so no new work arrives, then the
// browser session, the realtime hub, the cache, and finally the store.
// Errors during shutdown are logged but do not prevent the remaining steps.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application")

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Error shutting down HTTP server")
		}
	}

	if a.Session != nil {
		a.Session.Close()
	}

	if a.Hub != nil {
		a.Hub.Close()
	}

	if a.Cache != nil {
		a.Cache.Close()
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing store")
		}
	}

	uptime := time.Since(a.startTime)
	a.Logger.Info().Dur("uptime", uptime).Msg("Application shutdown complete")
	return nil
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
