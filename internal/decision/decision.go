// Package decision turns vote-counted indicators into a ternary flag.
package decision

import (
	"fmt"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/rules"
)

// ReasonInsufficient is the reasoning of the indeterminate fallback.
const ReasonInsufficient = "insufficient data for conclusive analysis"

// Counts tallies indicators per polarity.
type Counts struct {
	Negative   int
	Suspicious int
	Positive   int
}

// Count classifies each indicator against the tables.
func Count(tables *rules.Tables, indicators []string) Counts {
	var c Counts
	for _, ind := range indicators {
		switch tables.Polarity(ind) {
		case rules.Negative:
			c.Negative++
		case rules.Suspicious:
			c.Suspicious++
		case rules.Positive:
			c.Positive++
		}
	}
	return c
}

// Decide applies the precedence negative > suspicious > positive >
// indeterminate. It has no side effects and is safe for concurrent use.
func Decide(tables *rules.Tables, indicators []string, confidence float64, category string) evidence.AnalysisResult {
	th := tables.Thresholds()
	c := Count(tables, indicators)
	conf := evidence.Clamp(confidence)

	var (
		flag   evidence.Flag
		reason string
	)
	switch {
	case c.Negative > 0 && confidence > th.Medium:
		flag = evidence.FlagMalicious
		reason = fmt.Sprintf("%d malicious indicator(s) detected with %.0f%% confidence", c.Negative, conf*100)
	case c.Suspicious > 0 || (c.Negative > 0 && confidence <= th.Medium):
		flag = evidence.FlagSuspicious
		reason = fmt.Sprintf("%d suspicious indicator(s) require investigation", c.Suspicious)
		if c.Negative > 0 {
			reason += fmt.Sprintf("; %d malicious indicator(s) below %.0f%% confidence", c.Negative, th.Medium*100)
		}
	case c.Positive > 0 && confidence > th.Low:
		flag = evidence.FlagSafe
		reason = fmt.Sprintf("%d safe indicator(s) detected with %.0f%% confidence", c.Positive, conf*100)
	default:
		flag = evidence.FlagSuspicious
		reason = ReasonInsufficient
	}

	inds := make([]string, len(indicators))
	copy(inds, indicators)
	return evidence.NewResult(flag, conf, reason, category, inds)
}
