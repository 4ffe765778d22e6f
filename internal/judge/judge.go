// Package judge is the client side of the external AI judgment service used
// by the text and media extractors. Backends share one contract: a Request
// in, a structured Judgment out, errors for every failure mode. Callers own
// the deadline through ctx.
package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Task selects the kind of judgment.
type Task string

const (
	TaskText  Task = "text"
	TaskMedia Task = "media"
)

// ThreatLevel is the text judgment scale.
type ThreatLevel string

const (
	ThreatNone   ThreatLevel = "none"
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

// ErrUnsupportedTask is returned by backends that cannot judge a task.
var ErrUnsupportedTask = errors.New("judge: unsupported task")

// ErrInvalidJudgment is returned when the service answers with something that
// does not satisfy the judgment contract.
var ErrInvalidJudgment = errors.New("judge: invalid judgment")

// Request is what the extractors send.
type Request struct {
	Task     Task              `json:"task"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Judgment is the structured answer.
type Judgment struct {
	ThreatLevel          ThreatLevel `json:"threat_level,omitempty"`
	ManipulationDetected bool        `json:"manipulation_detected,omitempty"`
	Confidence           float64     `json:"confidence"`
	Indicators           []string    `json:"indicators,omitempty"`
	Reasoning            string      `json:"reasoning"`
}

// Judge is implemented by every backend.
type Judge interface {
	Name() string
	Judge(ctx context.Context, req Request) (*Judgment, error)
}

// Normalize lower-cases the threat level, clamps confidence, and checks the
// fields the task needs.
func Normalize(task Task, j *Judgment) (*Judgment, error) {
	if j == nil {
		return nil, fmt.Errorf("%w: empty judgment", ErrInvalidJudgment)
	}
	out := *j
	out.ThreatLevel = ThreatLevel(strings.ToLower(strings.TrimSpace(string(j.ThreatLevel))))
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrInvalidJudgment, out.Confidence)
	}
	if task == TaskText {
		switch out.ThreatLevel {
		case ThreatNone, ThreatLow, ThreatMedium, ThreatHigh:
		default:
			return nil, fmt.Errorf("%w: unknown threat level %q", ErrInvalidJudgment, j.ThreatLevel)
		}
	}
	out.Indicators = normalizeIndicators(j.Indicators)
	out.Reasoning = strings.TrimSpace(out.Reasoning)
	return &out, nil
}

func normalizeIndicators(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		v := strings.ToLower(strings.TrimSpace(s))
		v = strings.ReplaceAll(v, " ", "_")
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
