package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/signalix/reverseotp/internal/auth"
	"github.com/signalix/reverseotp/internal/clock"
	"github.com/signalix/reverseotp/internal/logging"
	"github.com/signalix/reverseotp/internal/middleware"
	"github.com/signalix/reverseotp/internal/repo"
)

const maxRequestBody = 64 << 10

// RequestService is the request API consumed by OTPHandler
type RequestService interface {
	CreateRequest(ctx context.Context, phoneNumber, userID string, now time.Time) (auth.CreatedRequest, error)
	GetStatus(ctx context.Context, requestID string, now time.Time) (auth.Status, error)
}

// TemplateSender sends provider template messages
type TemplateSender interface {
	SendTemplate(ctx context.Context, to, name, languageCode string) error
}

// OTPHandler handles the reverse OTP endpoints
type OTPHandler struct {
	service RequestService
	sender  TemplateSender
	clock   clock.Clocker
	logger  *zap.Logger
}

// NewOTPHandler creates a new OTP handler
func NewOTPHandler(service RequestService, sender TemplateSender, clk clock.Clocker, logger *zap.Logger) *OTPHandler {
	return &OTPHandler{
		service: service,
		sender:  sender,
		clock:   clk,
		logger:  logger,
	}
}

// createRequestBody is the request body for POST /api/v1/reverse-otp
type createRequestBody struct {
	PhoneNumber string `json:"phoneNumber"`
	UserID      string `json:"userId"`
}

// createRequestResponse is the JSON response for reverse-otp
type createRequestResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	RequestID    string    `json:"requestId"`
	ExpiresIn    string    `json:"expiresIn"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Instructions string    `json:"instructions"`
}

// statusResponse is the JSON response for otp-status
type statusResponse struct {
	RequestID   string     `json:"requestId"`
	Verified    bool       `json:"verified"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	LoginURL    *string    `json:"loginUrl"`
	BearerToken *string    `json:"bearerToken"`
	VerifiedAt  *time.Time `json:"verifiedAt"`
}

// sessionResponse is the JSON response for GET /api/v1/session
type sessionResponse struct {
	UserID    string    `json:"userId"`
	RequestID string    `json:"requestId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleCreateRequest handles POST /api/v1/reverse-otp
func (h *OTPHandler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "body must be a JSON object")
		return
	}

	created, err := h.service.CreateRequest(r.Context(), req.PhoneNumber, req.UserID, h.clock.Now())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidArgument) {
			respondWithError(w, http.StatusBadRequest, "missing required fields", "phoneNumber and userId are required")
			return
		}
		h.logger.Error("failed to create reverse otp request", logging.Phone("phone", req.PhoneNumber), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "internal server error", "failed to generate OTP")
		return
	}

	respondJSON(w, http.StatusOK, createRequestResponse{
		Success:      true,
		Message:      created.Message,
		RequestID:    created.RequestID,
		ExpiresIn:    auth.HumanDuration(created.ExpiresIn),
		ExpiresAt:    created.ExpiresAt.UTC(),
		Instructions: "Send the OTP code to our WhatsApp number to complete verification",
	})
}

// HandleStatus handles GET /api/v1/otp-status/{requestId}
func (h *OTPHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	st, err := h.service.GetStatus(r.Context(), requestID, h.clock.Now())
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, auth.ErrInvalidArgument):
		respondWithError(w, http.StatusNotFound, "OTP not found", "invalid or expired request id")
		return
	case errors.Is(err, repo.ErrExpired):
		respondWithError(w, http.StatusGone, "OTP expired", "please request a new OTP")
		return
	default:
		h.logger.Error("failed to check otp status", zap.String("request_id", requestID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "internal server error", "failed to check OTP status")
		return
	}

	resp := statusResponse{
		RequestID: st.RequestID,
		Verified:  st.Verified,
		ExpiresAt: st.ExpiresAt.UTC(),
	}
	if st.Verified {
		resp.LoginURL = &st.LoginURL
		resp.BearerToken = &st.Credential
		resp.VerifiedAt = st.VerifiedAt
	}
	respondJSON(w, http.StatusOK, resp)
}

// testMessageBody is the request body for POST /api/v1/test-whatsapp
type testMessageBody struct {
	PhoneNumber string `json:"phoneNumber"`
}

// HandleTestMessage handles POST /api/v1/test-whatsapp by sending the hello_world template
func (h *OTPHandler) HandleTestMessage(w http.ResponseWriter, r *http.Request) {
	var req testMessageBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "body must be a JSON object")
		return
	}
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.PhoneNumber == "" {
		respondWithError(w, http.StatusBadRequest, "missing required field", "phoneNumber is required")
		return
	}

	if err := h.sender.SendTemplate(r.Context(), req.PhoneNumber, "hello_world", "en_US"); err != nil {
		h.logger.Error("failed to send test message", logging.Phone("phone", req.PhoneNumber), zap.Error(err))
		respondWithError(w, http.StatusBadGateway, "failed to send test message", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Test template message sent successfully",
	})
}

// HandleSession handles GET /api/v1/session (requires a verified credential)
func (h *OTPHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || claims == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	resp := sessionResponse{
		UserID:    claims.UserID,
		RequestID: claims.RequestID,
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.UTC()
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC()
	}
	respondJSON(w, http.StatusOK, resp)
}
