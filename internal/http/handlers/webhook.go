package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/signalix/reverseotp/internal/auth"
	"github.com/signalix/reverseotp/internal/clock"
	"github.com/signalix/reverseotp/internal/logging"
	"github.com/signalix/reverseotp/internal/whatsapp"
)

const (
	maxWebhookBody        = 1 << 20
	defaultWebhookTimeout = 30 * time.Second
)

// InboundProcessor handles messages users send to the business number
type InboundProcessor interface {
	OnInboundMessage(ctx context.Context, sender, text string, now time.Time) auth.InboundResult
}

// ChallengeVerifier answers the provider's webhook subscription handshake
type ChallengeVerifier interface {
	VerifyChallenge(mode, token, challenge string) (string, bool)
}

// WebhookHandler handles the WhatsApp webhook endpoints
type WebhookHandler struct {
	processor  InboundProcessor
	challenger ChallengeVerifier
	clock      clock.Clocker
	timeout    time.Duration
	logger     *zap.Logger
}

// NewWebhookHandler creates a new webhook handler. timeout bounds all processing of one
// delivery; a non-positive value falls back to 30s.
func NewWebhookHandler(processor InboundProcessor, challenger ChallengeVerifier, clk clock.Clocker, timeout time.Duration, logger *zap.Logger) *WebhookHandler {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookHandler{
		processor:  processor,
		challenger: challenger,
		clock:      clk,
		timeout:    timeout,
		logger:     logger,
	}
}

// HandleVerify handles GET /webhook (subscription handshake)
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, ok := h.challenger.VerifyChallenge(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		h.logger.Warn("webhook verification failed", zap.String("mode", q.Get("hub.mode")))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	h.logger.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

// HandleReceive handles POST /webhook. It always acknowledges with 200 so the provider does not
// retry; parse and processing failures are only logged.
func (h *WebhookHandler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic while processing webhook", zap.Any("panic", rec))
		}
		acknowledge(w)
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		return
	}

	msgs, err := whatsapp.ParseWebhook(body)
	if err != nil {
		h.logger.Error("error processing webhook", zap.Error(err), zap.Bool("malformed", errors.Is(err, whatsapp.ErrMalformedPayload)))
		return
	}

	// Replies must go out even if the provider drops the connection first, but the whole
	// envelope shares one deadline. Verifications commit before their reply is sent.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()
	for _, m := range msgs {
		h.logger.Info("received message", logging.Phone("from", m.From), zap.String("message_id", m.ID))
		res := h.processor.OnInboundMessage(ctx, m.From, m.Text, h.clock.Now())
		if res.NotifyErr != nil {
			h.logger.Warn("reply to inbound message not delivered",
				zap.String("outcome", res.Outcome.String()),
				zap.String("request_id", res.RequestID),
				zap.Error(res.NotifyErr),
			)
		}
	}
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")
}
