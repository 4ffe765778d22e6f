package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/judge"
	"github.com/straja-ai/triage/internal/rules"
)

// MediaExtractor asks the judgment service whether a media artifact was
// manipulated and maps the answer onto a flag with the judgment bands.
type MediaExtractor struct {
	judge   judge.Judge
	bands   rules.JudgmentBands
	timeout time.Duration
}

func (e *MediaExtractor) Category() string { return CategoryMedia }

func (e *MediaExtractor) Extract(ctx context.Context, in evidence.AnalysisInput) (Outcome, error) {
	p, err := evidence.PayloadAs[evidence.MediaPayload](in)
	if err != nil {
		return Outcome{}, err
	}

	j, err := judgeWithTimeout(ctx, e.judge, e.timeout, judge.Request{
		Task:     judge.TaskMedia,
		Content:  describeMedia(p),
		Metadata: metadataFor(in),
	})
	if err != nil {
		return degraded(CategoryMedia, err), nil
	}

	flag := MediaFlag(e.bands, j.ManipulationDetected, j.Confidence)

	indicators := []string{"authentic_media"}
	if j.ManipulationDetected {
		indicators = []string{"manipulated_media"}
	}
	for _, ind := range j.Indicators {
		if ind != indicators[0] {
			indicators = append(indicators, ind)
		}
	}
	return Direct(evidence.NewResult(flag, j.Confidence, j.Reasoning, CategoryMedia, indicators)), nil
}

// MediaFlag maps a manipulation judgment onto a flag.
func MediaFlag(bands rules.JudgmentBands, detected bool, confidence float64) evidence.Flag {
	switch {
	case detected && confidence > bands.MediaNegative:
		return evidence.FlagMalicious
	case detected || confidence > bands.MediaSuspicious:
		return evidence.FlagSuspicious
	default:
		return evidence.FlagSafe
	}
}

// describeMedia renders the artifact facts the judgment service sees. Raw
// bytes are summarized, never sent.
func describeMedia(p evidence.MediaPayload) string {
	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "name: %s\n", p.Name)
	}
	if p.MediaType != "" {
		fmt.Fprintf(&b, "media_type: %s\n", p.MediaType)
	}
	if p.URL != "" {
		fmt.Fprintf(&b, "url: %s\n", p.URL)
	}
	if len(p.Content) > 0 {
		sum := sha256.Sum256(p.Content)
		fmt.Fprintf(&b, "size_bytes: %d\nsha256: %s\n", len(p.Content), hex.EncodeToString(sum[:]))
	}
	return strings.TrimSuffix(b.String(), "\n")
}
