package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"campusattend/internal/attendance"
)

// Sender delivers a transition to whoever is interested in it.
type Sender interface {
	Send(ctx context.Context, t attendance.Transition) error
}

// WebhookSender posts transitions as JSON to a fixed URL.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a sender posting to url.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{url: url, client: &http.Client{Timeout: timeout}}
}

// Send posts t and treats any non-2xx answer as a failure.
func (s *WebhookSender) Send(ctx context.Context, t attendance.Transition) error {
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// LogSender writes transitions to a logger. Used when no webhook is configured.
type LogSender struct {
	Logger *log.Logger
}

// Send logs t.
func (s LogSender) Send(_ context.Context, t attendance.Transition) error {
	logf := log.Printf
	if s.Logger != nil {
		logf = s.Logger.Printf
	}
	logf("transition %s student=%s session=%s date=%s event=%s day=%s",
		t.Type, t.StudentID, t.SessionID, t.Date, t.EventStatus, t.DayStatus)
	return nil
}
