// Package router assembles the HTTP surface of the voice-agent API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-voice-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/clinic-voice-agent/internal/http/middleware"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	MetricsHandler      http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/conversations", func(r chi.Router) {
		r.Post("/inbound/start", cfg.ConversationHandler.StartInbound)
		r.Post("/inbound/message", cfg.ConversationHandler.InboundMessage)
		r.Post("/outbound/start", cfg.ConversationHandler.StartOutbound)
		r.Post("/outbound/message", cfg.ConversationHandler.OutboundMessage)
	})

	return r
}
