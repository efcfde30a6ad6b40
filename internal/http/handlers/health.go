package handlers

import (
	"net/http"

	"github.com/signalix/reverseotp/internal/whatsapp"
)

// TransportStatus reports outbound transport readiness
type TransportStatus interface {
	Status() whatsapp.Status
}

// HealthHandler serves GET /health
type HealthHandler struct {
	transport TransportStatus
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(transport TransportStatus) *HealthHandler {
	return &HealthHandler{transport: transport}
}

type healthResponse struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	WhatsApp whatsapp.Status `json:"whatsapp"`
}

// ServeHTTP reports liveness and whether WhatsApp credentials are configured.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:   "OK",
		Message:  "WhatsApp Reverse OTP API is running",
		WhatsApp: h.transport.Status(),
	})
}
