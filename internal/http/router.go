package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/signalix/reverseotp/internal/http/handlers"
	"github.com/signalix/reverseotp/internal/middleware"
)

// Handlers groups the handlers mounted by NewRouter
type Handlers struct {
	OTP     *handlers.OTPHandler
	Webhook *handlers.WebhookHandler
	Health  *handlers.HealthHandler
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(h Handlers, credentials middleware.CredentialVerifier, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)

	r.NotFound(handlers.NotFound)
	r.Get("/health", h.Health.ServeHTTP)

	r.Get("/webhook", h.Webhook.HandleVerify)
	r.Post("/webhook", h.Webhook.HandleReceive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/reverse-otp", h.OTP.HandleCreateRequest)
		r.Get("/otp-status/{requestId}", h.OTP.HandleStatus)
		r.Post("/test-whatsapp", h.OTP.HandleTestMessage)

		// Protected routes (require a credential issued by a verification)
		r.Group(func(r chi.Router) {
			r.Use(middleware.CredentialAuth(credentials))
			r.Get("/session", h.OTP.HandleSession)
		})
	})

	return r
}
