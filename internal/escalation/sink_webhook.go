package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// webhookBackoffs are the waits before the second and third attempt.
var webhookBackoffs = []time.Duration{100 * time.Millisecond, 300 * time.Millisecond}

// errPermanent marks a response that retrying cannot fix.
var errPermanent = errors.New("permanent webhook failure")

// WebhookSink POSTs escalation events as JSON. Transport errors, 429 and 5xx
// are retried with webhookBackoffs; other non-2xx answers fail immediately.
type WebhookSink struct {
	target  string
	host    string
	headers map[string]string
	client  *http.Client
}

func NewWebhookSink(target string, headers map[string]string, timeout time.Duration) (*WebhookSink, error) {
	if target == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("webhook url %q is invalid", target)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	hdr := make(map[string]string, len(headers))
	for k, v := range headers {
		hdr[k] = v
	}
	return &WebhookSink{
		target:  target,
		host:    u.Host,
		headers: hdr,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name omits the path and query, which may carry tokens.
func (s *WebhookSink) Name() string { return "webhook:" + s.host }

func (s *WebhookSink) Deliver(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(webhookBackoffs); attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(webhookBackoffs[attempt-1])
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		lastErr = s.post(ctx, ev.ID, payload)
		if lastErr == nil || errors.Is(lastErr, errPermanent) {
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", len(webhookBackoffs)+1, lastErr)
}

func (s *WebhookSink) post(ctx context.Context, eventID string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Triage-Event-Id", eventID)
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("status %d body=%q", resp.StatusCode, truncateBody(body))
	default:
		return fmt.Errorf("%w: status %d body=%q", errPermanent, resp.StatusCode, truncateBody(body))
	}
}

func (s *WebhookSink) Close(context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
