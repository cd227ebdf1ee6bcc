package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const brevoAPIURL = "https://api.brevo.com/v3/smtp/email"

// BrevoMailer delivers mail through the Brevo transactional email API.
type BrevoMailer struct {
	apiKey   string
	from     string
	fromName string
	client   *http.Client
}

// NewBrevoMailer constructs a Brevo-backed mailer.
func NewBrevoMailer(apiKey, from, fromName string) (*BrevoMailer, error) {
	if apiKey == "" {
		return nil, errors.New("brevo api key required")
	}
	return &BrevoMailer{
		apiKey:   apiKey,
		from:     from,
		fromName: fromName,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type brevoSendRequest struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	TextContent string              `json:"textContent"`
}

// Send posts the message to the Brevo API.
func (m *BrevoMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(brevoSendRequest{
		Sender:      map[string]string{"email": m.from, "name": m.fromName},
		To:          []map[string]string{{"email": msg.To}},
		Subject:     msg.Subject,
		TextContent: msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal brevo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoAPIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build brevo request: %w", err)
	}
	req.Header.Set("api-key", m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("brevo dispatch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("brevo api status %d: %v", resp.StatusCode, apiErr)
	}
	return nil
}
