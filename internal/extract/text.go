package extract

import (
	"context"
	"time"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/judge"
)

// TextExtractor asks the judgment service to rate free text.
type TextExtractor struct {
	judge    judge.Judge
	maxChars int
	timeout  time.Duration
}

func (e *TextExtractor) Category() string { return CategoryText }

func (e *TextExtractor) Extract(ctx context.Context, in evidence.AnalysisInput) (Outcome, error) {
	p, err := evidence.PayloadAs[evidence.TextPayload](in)
	if err != nil {
		return Outcome{}, err
	}

	j, err := judgeWithTimeout(ctx, e.judge, e.timeout, judge.Request{
		Task:     judge.TaskText,
		Content:  Truncate(p.Text, e.maxChars),
		Metadata: metadataFor(in),
	})
	if err != nil {
		return degraded(CategoryText, err), nil
	}

	var flag evidence.Flag
	switch j.ThreatLevel {
	case judge.ThreatHigh:
		flag = evidence.FlagMalicious
	case judge.ThreatMedium, judge.ThreatLow:
		flag = evidence.FlagSuspicious
	default:
		flag = evidence.FlagSafe
	}

	indicators := j.Indicators
	if len(indicators) == 0 {
		indicators = []string{"threat_level_" + string(j.ThreatLevel)}
	}
	return Direct(evidence.NewResult(flag, j.Confidence, j.Reasoning, CategoryText, indicators)), nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
