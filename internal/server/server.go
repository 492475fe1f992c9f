// Package server wires the chi router, middleware, and handlers into
// the HTTP control plane described in spec §6.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/unclebandit/relaycast/internal/config"
	"github.com/unclebandit/relaycast/internal/httpmw"
	"github.com/unclebandit/relaycast/internal/registry"
)

// New builds the fully wired router: request id, logging, panic
// recovery, gzip compression, CORS, security headers, and the three
// rate-limit tiers from spec §5, in front of the API handlers.
func New(reg *registry.Registry, cfg config.Config, logger zerolog.Logger) http.Handler {
	h := &Handlers{Registry: reg, Config: cfg, Log: logger, started: time.Now()}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(chimw.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(httpmw.SecurityHeaders)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitGenericPerWindow, cfg.RateLimitGenericWindow))
		r.Get("/api/health", h.Health)
		r.Get("/", h.Root)
		r.Get("/api/stats", h.Stats)
		r.Get("/api/campaign/{id}/status", h.CampaignStatus)
		r.Get("/api/campaign/{id}/smtp-rotation", h.CampaignRotation)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitSMTPTestPerWindow, cfg.RateLimitSMTPTestWindow))
		r.Post("/api/smtp/test", h.SMTPTest)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitCampaignStartPerHour, time.Hour))
		r.Post("/api/campaign/start", h.CampaignStart)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitGenericPerWindow, cfg.RateLimitGenericWindow))
		r.Post("/api/campaign/{id}/stop", h.CampaignStop)
	})

	r.NotFound(h.NotFound)

	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
