package api

import (
	"net/http"

	"github.com/dom/neighbor-group/internal/api/handlers"
	"github.com/dom/neighbor-group/internal/api/middleware"
	"github.com/dom/neighbor-group/internal/config"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/dom/neighbor-group/internal/service"
	"github.com/dom/neighbor-group/internal/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(services *service.Services, hub *websocket.Hub, metrics *observability.Metrics, cfg *config.Config, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(chiMiddleware.RequestLogger(observability.NewRequestLogFormatter(log)))
	r.Use(chiMiddleware.Recoverer)
	r.Use(observability.HTTPMiddleware(metrics))
	r.Use(middleware.Session(services.Auth, log))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	if cfg.MetricsEnabled && metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(services.Auth, cfg, log)
	groupHandler := handlers.NewGroupHandler(services.Groups, services.Membership, hub, log)
	wsHandler := handlers.NewWebSocketHandler(hub, services.Membership, log)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)

			// Password reset
			r.Post("/password", authHandler.StartPasswordReset)
			r.Post("/password/reset", authHandler.ChangePassword)
			r.Post("/password/{id}", authHandler.VerifyPasswordReset)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", groupHandler.List)
			r.Get("/{slug}", groupHandler.View)
			r.Get("/{slug}/ws", wsHandler.Handle)

			// Members only
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser)
				r.Post("/", groupHandler.Create)
				r.Post("/{slug}/join", groupHandler.Join)
				r.Post("/{slug}/leave", groupHandler.Leave)
				r.Post("/{slug}/messages", groupHandler.PostMessage)
			})
		})
	})

	return r
}
