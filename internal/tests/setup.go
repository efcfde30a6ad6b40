package tests

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// SentMessage is one outbound message captured by FakeCloudAPI
type SentMessage struct {
	To       string
	Type     string
	Text     string
	Template string
}

// FakeCloudAPI stands in for the WhatsApp Cloud API messages endpoint.
type FakeCloudAPI struct {
	Server *httptest.Server

	mu     sync.Mutex
	sent   []SentMessage
	status int
}

// NewFakeCloudAPI starts a fake Cloud API that accepts every well-formed message with 200.
func NewFakeCloudAPI() *FakeCloudAPI {
	f := &FakeCloudAPI{status: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *FakeCloudAPI) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/messages") {
		http.NotFound(w, r)
		return
	}
	var body struct {
		To   string `json:"to"`
		Type string `json:"type"`
		Text *struct {
			Body string `json:"body"`
		} `json:"text"`
		Template *struct {
			Name string `json:"name"`
		} `json:"template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":{"message":"bad payload"}}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		_, _ = fmt.Fprintf(w, `{"error":{"code":%d}}`, f.status)
		return
	}
	msg := SentMessage{To: body.To, Type: body.Type}
	if body.Text != nil {
		msg.Text = body.Text.Body
	}
	if body.Template != nil {
		msg.Template = body.Template.Name
	}
	f.sent = append(f.sent, msg)
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.%d"}]}`, len(f.sent))
}

// FailWith makes subsequent sends answer with status. Pass http.StatusOK to recover.
func (f *FakeCloudAPI) FailWith(status int) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

// Sent returns a copy of the messages accepted so far.
func (f *FakeCloudAPI) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// Last returns the most recent accepted message, if any.
func (f *FakeCloudAPI) Last() (SentMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return SentMessage{}, false
	}
	return f.sent[len(f.sent)-1], true
}

// Close shuts the fake down.
func (f *FakeCloudAPI) Close() { f.Server.Close() }

// TextWebhook builds a minimal Cloud API webhook payload carrying one text message.
func TextWebhook(from, text string) []byte {
	payload := map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "biz-1",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messaging_product": "whatsapp",
					"messages": []any{map[string]any{
						"from":      from,
						"id":        "wamid.in-1",
						"timestamp": "1700000000",
						"type":      "text",
						"text":      map[string]any{"body": text},
					}},
				},
			}},
		}},
	}
	b, _ := json.Marshal(payload)
	return b
}

// TruncateAuditTables truncates the verification audit log for a clean test state.
func TruncateAuditTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "TRUNCATE TABLE verification_events RESTART IDENTITY")
	if err != nil {
		return fmt.Errorf("truncate audit tables: %w", err)
	}
	return nil
}
