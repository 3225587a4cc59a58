package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lumenlabs/chat-starter/backend/internal/config"
	chatHandler "github.com/lumenlabs/chat-starter/backend/internal/handler/chat"
	"github.com/lumenlabs/chat-starter/backend/internal/handler/health"
	aiService "github.com/lumenlabs/chat-starter/backend/internal/service/ai"
)

// NewRouter wires HTTP routes to core services. aiSvc may be nil when the
// upstream credential is absent; the chat endpoint then answers 503.
func NewRouter(cfg *config.Config, aiSvc *aiService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.App.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	healthHandler := health.New()

	// Avoid a typed-nil interface value when the AI service is disabled.
	var replySvc chatHandler.ReplyService
	if aiSvc != nil {
		replySvc = aiSvc
	}
	chatH := chatHandler.New(replySvc, cfg.AI.IdleTimeout)

	r.Route("/api", func(api chi.Router) {
		healthHandler.RegisterRoutes(api)
		chatH.RegisterRoutes(api)
	})

	return r
}
