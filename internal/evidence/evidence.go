// Package evidence defines the inputs and results of the classification
// engine. Inputs carry a kind-specific payload variant; results carry the
// ternary flag, a confidence in [0,1], and a reasoning string.
package evidence

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind selects the extractor for an input.
type Kind string

const (
	KindFile        Kind = "file"
	KindText        Kind = "text"
	KindNetwork     Kind = "network"
	KindTransaction Kind = "transaction"
	KindMedia       Kind = "media"
	KindGeneric     Kind = "generic"
)

// Known reports whether k has a dedicated extractor.
func (k Kind) Known() bool {
	switch k {
	case KindFile, KindText, KindNetwork, KindTransaction, KindMedia, KindGeneric:
		return true
	}
	return false
}

// ErrPayloadMismatch is returned when a payload variant does not belong to
// the input kind.
var ErrPayloadMismatch = errors.New("payload does not match input kind")

// Metadata is optional provenance attached to an input.
type Metadata struct {
	Source   string `json:"source,omitempty"`
	FileType string `json:"fileType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Hash     string `json:"hash,omitempty"`
}

// AnalysisInput is one piece of evidence. It is not modified after
// submission.
type AnalysisInput struct {
	ID       string
	Kind     Kind
	Payload  Payload
	Metadata *Metadata
}

// NewInput builds an input with a generated ID.
func NewInput(kind Kind, payload Payload, meta *Metadata) AnalysisInput {
	return AnalysisInput{
		ID:       uuid.NewString(),
		Kind:     kind,
		Payload:  payload,
		Metadata: meta,
	}
}

// Flag is the ternary classification outcome.
type Flag string

const (
	FlagSafe       Flag = "+"
	FlagMalicious  Flag = "-"
	FlagSuspicious Flag = "="
)

// Valid reports whether f is one of the three symbols.
func (f Flag) Valid() bool {
	return f == FlagSafe || f == FlagMalicious || f == FlagSuspicious
}

// CategoryError marks results produced from an extraction failure.
const CategoryError = "error"

// AnalysisResult is produced once per input.
type AnalysisResult struct {
	ID               string    `json:"id"`
	InputID          string    `json:"input_id,omitempty"`
	Flag             Flag      `json:"flag"`
	Confidence       float64   `json:"confidence"`
	Reasoning        string    `json:"reasoning"`
	Category         string    `json:"category"`
	Indicators       []string  `json:"indicators,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	ProcessingTimeMs float64   `json:"processing_time_ms"`
}

// NewResult builds a result with a clamped confidence. Timing fields are
// filled in by the pipeline.
func NewResult(flag Flag, confidence float64, reasoning, category string, indicators []string) AnalysisResult {
	return AnalysisResult{
		ID:         uuid.NewString(),
		Flag:       flag,
		Confidence: Clamp(confidence),
		Reasoning:  reasoning,
		Category:   category,
		Indicators: indicators,
		Timestamp:  time.Now().UTC(),
	}
}

// ErrorResult converts an extraction failure into a low-confidence
// suspicious result.
func ErrorResult(err error) AnalysisResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return NewResult(FlagSuspicious, 0.2, "analysis failed: "+msg, CategoryError, nil)
}

// Clamp bounds v to [0,1]; NaN becomes 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Summary counts flags in a batch.
type Summary struct {
	Positive   int `json:"positive"`
	Negative   int `json:"negative"`
	Suspicious int `json:"suspicious"`
	Total      int `json:"total"`
}

// Add counts one result.
func (s *Summary) Add(f Flag) {
	switch f {
	case FlagSafe:
		s.Positive++
	case FlagMalicious:
		s.Negative++
	default:
		s.Suspicious++
	}
	s.Total++
}

// BatchResult holds results in submission order.
type BatchResult struct {
	Results []AnalysisResult `json:"results"`
	Summary Summary          `json:"summary"`
}

// Describe returns a short, content-free label for logging.
func (in AnalysisInput) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kind=%s", in.Kind)
	if in.ID != "" {
		fmt.Fprintf(&b, " id=%s", in.ID)
	}
	if in.Metadata != nil && in.Metadata.Source != "" {
		fmt.Fprintf(&b, " source=%s", in.Metadata.Source)
	}
	return b.String()
}
