package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Storefront-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string      `json:"type"` // "scrape.completed" or "scrape.failed"
	URL       string      `json:"url"`
	ScrapeID  int64       `json:"scrape_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// DefaultRetryDelays are the waits before each delivery attempt.
var DefaultRetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Sender delivers events over HTTP.
type Sender struct {
	client *http.Client
	delays []time.Duration
	wg     sync.WaitGroup
}

// NewSender creates a Sender. Nil delays use DefaultRetryDelays.
func NewSender(delays []time.Duration) *Sender {
	if delays == nil {
		delays = DefaultRetryDelays
	}
	return &Sender{
		client: &http.Client{Timeout: 10 * time.Second},
		delays: delays,
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends one event synchronously.
func (s *Sender) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Storefront-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync sends an event in the background, retrying on failure.
func (s *Sender) DeliverAsync(url, secret string, event *Event) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for attempt, delay := range s.delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.Deliver(ctx, url, secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", url,
					"event", event.Type,
					"store", event.URL,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"store", event.URL,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"store", event.URL,
		)
	}()
}

// Wait blocks until every pending async delivery has finished.
func (s *Sender) Wait() {
	s.wg.Wait()
}
