package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
)

const businessAccountObject = "whatsapp_business_account"

// ErrMalformedPayload is returned when a webhook body is not a valid notification envelope
var ErrMalformedPayload = errors.New("malformed webhook payload")

// InboundMessage is one text message a user sent to the business number
type InboundMessage struct {
	ID   string
	From string
	Text string
}

type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					ID   string `json:"id"`
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook extracts text messages from a Cloud API notification. Notifications for other
// objects, status updates and non-text messages yield no messages and no error.
func ParseWebhook(body []byte) ([]InboundMessage, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if env.Object != businessAccountObject {
		return nil, nil
	}

	var out []InboundMessage
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			for _, m := range change.Value.Messages {
				if m.Text == nil || m.Text.Body == "" || m.From == "" {
					continue
				}
				out = append(out, InboundMessage{ID: m.ID, From: m.From, Text: m.Text.Body})
			}
		}
	}
	return out, nil
}
