package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes escalation events as JSON on a subject.
type NATSSink struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

// DialNATSSink connects to url and publishes on subject.
func DialNATSSink(url, subject string) (*NATSSink, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject is empty")
	}
	nc, err := nats.Connect(url,
		nats.Name("triage-escalation"),
		nats.Timeout(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSSink{pub: nc, subject: subject, conn: nc}, nil
}

// NewNATSSink publishes through an existing publisher. The caller owns its
// lifecycle.
func NewNATSSink(pub Publisher, subject string) *NATSSink {
	return &NATSSink{pub: pub, subject: subject}
}

func (s *NATSSink) Name() string { return "nats:" + s.subject }

func (s *NATSSink) Deliver(_ context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.pub.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish escalation event: %w", err)
	}
	return nil
}

func (s *NATSSink) Close(context.Context) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
