// Package api exposes the HTTP surface consumed by the dashboard: listings,
// configuration, manual check trigger, the image relay, email endpoints, and
// the websocket channel.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/internal/cache"
	"github.com/roelvdh/marktwatch/internal/check"
	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/internal/notify"
	"github.com/roelvdh/marktwatch/internal/realtime"
	"github.com/roelvdh/marktwatch/internal/ratelimit"
	"github.com/roelvdh/marktwatch/internal/store"
)

// Server wires the HTTP handlers to their collaborators.
type Server struct {
	cfg          *config.Config
	store        store.Storage
	orchestrator *check.Orchestrator
	mailer       *notify.Mailer
	hub          *realtime.Hub
	cache        cache.Cache
	limiter      ratelimit.RateLimiter
	httpClient   *http.Client

	srv *http.Server
}

// NewServer builds the HTTP server and its routes.
func NewServer(cfg *config.Config, st store.Storage, orch *check.Orchestrator,
	mailer *notify.Mailer, hub *realtime.Hub, c cache.Cache, limiter ratelimit.RateLimiter) *Server {

	s := &Server{
		cfg:          cfg,
		store:        st,
		orchestrator: orch,
		mailer:       mailer,
		hub:          hub,
		cache:        c,
		limiter:      limiter,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/items", s.handleItems).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handlePostConfig).Methods(http.MethodPost)
	api.HandleFunc("/check", s.handleCheck).Methods(http.MethodPost)
	api.HandleFunc("/proxy-image", s.handleProxyImage).Methods(http.MethodGet)
	api.Handle("/test-email", s.requireAPIKey(http.HandlerFunc(s.handleTestEmail))).Methods(http.MethodPost)
	api.Handle("/send-email", s.requireAPIKey(http.HandlerFunc(s.handleSendEmail))).Methods(http.MethodPost)
	api.HandleFunc("/ws", hub.ServeWS)

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.ListenAddr).Msg("HTTP server listening")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// logRequests is the zerolog request-logging middleware.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}

// requireAPIKey rejects requests whose X-Api-Key header doesn't match the
// configured key. With no key configured, the email endpoints are disabled
// outright rather than left open.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			writeError(w, http.StatusForbidden, "email endpoints disabled: no API key configured")
			return
		}
		if r.Header.Get("X-Api-Key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
