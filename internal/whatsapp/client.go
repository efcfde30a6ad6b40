package whatsapp

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/signalix/reverseotp/internal/logging"
)

const (
	subscribeMode    = "subscribe"
	retryBaseBackoff = 200 * time.Millisecond
	maxErrorBody     = 4 << 10
)

var (
	// ErrTransport wraps every failure to deliver an outbound message.
	ErrTransport = errors.New("whatsapp transport error")
	// ErrNotConfigured is returned when the access token or phone number id is missing.
	ErrNotConfigured = errors.New("whatsapp api is not configured")
)

// Config holds the Cloud API settings for a Client
type Config struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	APIURL        string
	APIVersion    string
	MaxRetries    uint64
	Timeout       time.Duration
}

// Status reports transport readiness for the health probe
type Status struct {
	Ready          bool `json:"ready"`
	HasCredentials bool `json:"hasCredentials"`
}

// Client sends messages through the WhatsApp Business Cloud API
type Client struct {
	cfg        Config
	httpClient *http.Client
	backoff    time.Duration
	logger     *zap.Logger
}

// NewClient creates a new Cloud API client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	c := &Client{cfg: cfg, httpClient: httpClient, backoff: retryBaseBackoff, logger: logger}
	if c.configured() {
		logger.Info("whatsapp business api configured")
	} else {
		logger.Warn("whatsapp api credentials missing; outbound messages will fail")
	}
	return c
}

func (c *Client) configured() bool {
	return c.cfg.AccessToken != "" && c.cfg.PhoneNumberID != ""
}

// Status reports whether the client can send messages.
func (c *Client) Status() Status {
	ok := c.configured()
	return Status{Ready: ok, HasCredentials: ok}
}

// VerifyChallenge implements the webhook subscription handshake. It returns the challenge
// only when mode is "subscribe" and token equals the configured verify token.
func (c *Client) VerifyChallenge(mode, token, challenge string) (string, bool) {
	if c.cfg.VerifyToken == "" || mode != subscribeMode {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(c.cfg.VerifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

type textBody struct {
	Body string `json:"body"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type template struct {
	Name     string           `json:"name"`
	Language templateLanguage `json:"language"`
}

type outboundMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *textBody `json:"text,omitempty"`
	Template         *template `json:"template,omitempty"`
}

// Send delivers a plain-text message to the user identified by to.
func (c *Client) Send(ctx context.Context, to, text string) error {
	return c.post(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

// SendTemplate delivers a pre-approved template message, e.g. "hello_world".
func (c *Client) SendTemplate(ctx context.Context, to, name, languageCode string) error {
	if languageCode == "" {
		languageCode = "en_US"
	}
	return c.post(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         &template{Name: name, Language: templateLanguage{Code: languageCode}},
	})
}

func (c *Client) post(ctx context.Context, msg outboundMessage) error {
	if !c.configured() {
		return fmt.Errorf("%w: %w", ErrTransport, ErrNotConfigured)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encode message: %w", ErrTransport, err)
	}
	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.cfg.APIURL, c.cfg.APIVersion, c.cfg.PhoneNumberID)

	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewExponential(c.backoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		return c.send(ctx, endpoint, payload)
	})
	if err != nil {
		c.logger.Error("failed to send whatsapp message",
			logging.Phone("to", msg.To),
			zap.String("type", msg.Type),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.logger.Info("whatsapp message sent", logging.Phone("to", msg.To), zap.String("type", msg.Type))
	return nil
}

// send performs one POST. Network errors, 429 and 5xx are retryable; other failures are final.
func (c *Client) send(ctx context.Context, endpoint string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retry.RetryableError(fmt.Errorf("post message: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := fmt.Errorf("cloud api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.RetryableError(statusErr)
	}
	return statusErr
}
