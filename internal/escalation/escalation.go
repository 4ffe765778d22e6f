// Package escalation hands high-confidence ambiguous results to humans. The
// classifier calls Notify on the request path; the Emitter queues the event
// and worker goroutines deliver it to the configured sinks.
package escalation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/rules"
)

// Notifier receives qualifying results. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, result evidence.AnalysisResult, input evidence.AnalysisInput)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, result evidence.AnalysisResult, input evidence.AnalysisInput)

func (f NotifierFunc) Notify(ctx context.Context, result evidence.AnalysisResult, input evidence.AnalysisInput) {
	f(ctx, result, input)
}

// InputSummary identifies the escalated input without its payload.
type InputSummary struct {
	ID       string             `json:"id"`
	Kind     evidence.Kind      `json:"kind"`
	Metadata *evidence.Metadata `json:"metadata,omitempty"`
}

// Event is what sinks receive.
type Event struct {
	ID        string                  `json:"id"`
	Timestamp time.Time               `json:"timestamp"`
	Result    evidence.AnalysisResult `json:"result"`
	Input     InputSummary            `json:"input"`
}

// NewEvent builds an event for result.
func NewEvent(result evidence.AnalysisResult, input evidence.AnalysisInput) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Result:    result,
		Input: InputSummary{
			ID:       input.ID,
			Kind:     input.Kind,
			Metadata: input.Metadata,
		},
	}
}

// ShouldEscalate reports whether result needs a human: flagged for review
// with confidence above the high threshold.
func ShouldEscalate(th rules.Thresholds, result evidence.AnalysisResult) bool {
	return result.Flag == evidence.FlagSuspicious && result.Confidence > th.High
}
