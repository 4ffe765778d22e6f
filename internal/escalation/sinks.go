package escalation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/straja-ai/triage/internal/config"
)

// NewSinks builds sinks from configuration. On error, sinks opened so far
// are closed.
func NewSinks(cfgs []config.SinkConfig, natsURL string) ([]Sink, error) {
	var sinks []Sink
	fail := func(err error) ([]Sink, error) {
		for _, s := range sinks {
			_ = s.Close(context.Background())
		}
		return nil, err
	}

	for i, c := range cfgs {
		switch strings.ToLower(strings.TrimSpace(c.Type)) {
		case "file_jsonl":
			s, err := NewFileSink(c.Path)
			if err != nil {
				return fail(fmt.Errorf("escalation sink %d: %w", i, err))
			}
			sinks = append(sinks, s)
		case "webhook":
			s, err := NewWebhookSink(c.URL, c.Headers, time.Duration(c.TimeoutMs)*time.Millisecond)
			if err != nil {
				return fail(fmt.Errorf("escalation sink %d: %w", i, err))
			}
			sinks = append(sinks, s)
		case "nats":
			url := c.URL
			if url == "" {
				url = natsURL
			}
			s, err := DialNATSSink(url, c.Subject)
			if err != nil {
				return fail(fmt.Errorf("escalation sink %d: %w", i, err))
			}
			sinks = append(sinks, s)
		default:
			return fail(fmt.Errorf("escalation sink %d has unknown type %q", i, c.Type))
		}
	}
	return sinks, nil
}
