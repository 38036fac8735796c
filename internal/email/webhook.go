package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookSender delivers messages by POSTing them as JSON to a mail relay.
type WebhookSender struct {
	URL     string
	Headers map[string]string
	client  *http.Client
	logger  zerolog.Logger
}

func NewWebhookSender(url string, timeout time.Duration, logger zerolog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSender{
		URL:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type webhookPayload struct {
	To          string   `json:"to"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	IsHTML      bool     `json:"is_html"`
	Attachments []string `json:"attachments,omitempty"`
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	if s.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	payload, err := json.Marshal(webhookPayload(msg))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	// 4xx and 5xx are delivery failures
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook HTTP %d: %s", resp.StatusCode, string(body))
	}
	s.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Int("status", resp.StatusCode).Msg("email relayed")
	return nil
}
