// Package extract derives indicators from evidence, one extractor per kind.
// Most extractors vote: they return indicator names and a confidence that
// the decision engine turns into a flag. The text and media extractors
// return a finished result built from an AI judgment instead.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/judge"
	"github.com/straja-ai/triage/internal/redact"
	"github.com/straja-ai/triage/internal/reputation"
	"github.com/straja-ai/triage/internal/rules"
)

// Categories reported on results.
const (
	CategoryFile        = "file_analysis"
	CategoryText        = "text_analysis"
	CategoryNetwork     = "network_analysis"
	CategoryTransaction = "transaction_analysis"
	CategoryMedia       = "media_analysis"
	CategoryGeneric     = "generic_analysis"
)

// baseline is the starting confidence for vote-based extractors.
const baseline = 0.5

// degradedConfidence caps the confidence of a result produced when the
// judgment service fails.
const degradedConfidence = 0.3

// Outcome is what an extractor hands back: votes for the decision engine, or
// a direct result when Direct is set.
type Outcome struct {
	Indicators []string
	Confidence float64
	Category   string

	Direct *evidence.AnalysisResult
}

// Votes returns a vote-based outcome.
func Votes(category string, confidence float64, indicators ...string) Outcome {
	return Outcome{Indicators: indicators, Confidence: confidence, Category: category}
}

// Direct returns an outcome that bypasses the decision engine.
func Direct(r evidence.AnalysisResult) Outcome {
	return Outcome{Category: r.Category, Confidence: r.Confidence, Indicators: r.Indicators, Direct: &r}
}

// IsDirect reports whether the outcome carries a finished result.
func (o Outcome) IsDirect() bool { return o.Direct != nil }

// Extractor derives indicators from one kind of input.
type Extractor interface {
	Category() string
	Extract(ctx context.Context, in evidence.AnalysisInput) (Outcome, error)
}

// Limits are the numeric knobs of the rule-based extractors.
type Limits struct {
	NetworkByteThreshold int64
	BotnetConnections    int
	LaunderingAmount     float64
	LaunderingFrequency  int
	LargeAmount          float64
	MaxTextChars         int
	MaxDecompressedBytes int64
	JudgeTimeout         time.Duration
}

// DefaultLimits returns the stock values.
func DefaultLimits() Limits {
	return Limits{
		NetworkByteThreshold: 1_000_000,
		BotnetConnections:    5,
		LaunderingAmount:     10_000,
		LaunderingFrequency:  10,
		LargeAmount:          5_000,
		MaxTextChars:         3000,
		MaxDecompressedBytes: 32 << 20,
		JudgeTimeout:         15 * time.Second,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.NetworkByteThreshold <= 0 {
		l.NetworkByteThreshold = d.NetworkByteThreshold
	}
	if l.BotnetConnections <= 0 {
		l.BotnetConnections = d.BotnetConnections
	}
	if l.LaunderingAmount <= 0 {
		l.LaunderingAmount = d.LaunderingAmount
	}
	if l.LaunderingFrequency <= 0 {
		l.LaunderingFrequency = d.LaunderingFrequency
	}
	if l.LargeAmount <= 0 {
		l.LargeAmount = d.LargeAmount
	}
	if l.MaxTextChars <= 0 {
		l.MaxTextChars = d.MaxTextChars
	}
	if l.MaxDecompressedBytes <= 0 {
		l.MaxDecompressedBytes = d.MaxDecompressedBytes
	}
	if l.JudgeTimeout <= 0 {
		l.JudgeTimeout = d.JudgeTimeout
	}
	return l
}

// Deps are the collaborators the extractors consult.
type Deps struct {
	Tables    *rules.Tables
	Hashes    reputation.HashReputation
	Addresses reputation.AddressReputation
	IPs       reputation.IPReputation
	Filetypes reputation.FiletypeRisk
	Judge     judge.Judge
	Limits    Limits
}

// Registry maps kinds to extractors. Unknown kinds go to the generic one.
type Registry struct {
	byKind  map[evidence.Kind]Extractor
	generic Extractor
}

// NewRegistry wires the stock extractors. Missing reputation sources fall
// back to the built-in static lists; a missing judge fails text and media
// inputs with a degraded result.
func NewRegistry(d Deps) *Registry {
	if d.Tables == nil {
		d.Tables = rules.Default()
	}
	if d.Hashes == nil || d.Addresses == nil || d.IPs == nil || d.Filetypes == nil {
		static := reputation.NewStatic(reputation.DefaultLists())
		if d.Hashes == nil {
			d.Hashes = static
		}
		if d.Addresses == nil {
			d.Addresses = static
		}
		if d.IPs == nil {
			d.IPs = static
		}
		if d.Filetypes == nil {
			d.Filetypes = static
		}
	}
	d.Limits = d.Limits.withDefaults()

	return &Registry{
		byKind: map[evidence.Kind]Extractor{
			evidence.KindFile:        &FileExtractor{hashes: d.Hashes, filetypes: d.Filetypes, maxDecompressed: d.Limits.MaxDecompressedBytes},
			evidence.KindText:        &TextExtractor{judge: d.Judge, maxChars: d.Limits.MaxTextChars, timeout: d.Limits.JudgeTimeout},
			evidence.KindNetwork:     &NetworkExtractor{ips: d.IPs, byteThreshold: d.Limits.NetworkByteThreshold, botnetConnections: d.Limits.BotnetConnections},
			evidence.KindTransaction: &TransactionExtractor{addresses: d.Addresses, launderingAmount: d.Limits.LaunderingAmount, launderingFrequency: d.Limits.LaunderingFrequency, largeAmount: d.Limits.LargeAmount},
			evidence.KindMedia:       &MediaExtractor{judge: d.Judge, bands: d.Tables.JudgmentBands(), timeout: d.Limits.JudgeTimeout},
		},
		generic: GenericExtractor{},
	}
}

// For returns the extractor for kind.
func (r *Registry) For(kind evidence.Kind) Extractor {
	if ex, ok := r.byKind[kind]; ok {
		return ex
	}
	return r.generic
}

// Register replaces the extractor for kind.
func (r *Registry) Register(kind evidence.Kind, ex Extractor) {
	r.byKind[kind] = ex
}

// judgeWithTimeout bounds one judgment call.
func judgeWithTimeout(ctx context.Context, j judge.Judge, timeout time.Duration, req judge.Request) (*judge.Judgment, error) {
	if j == nil {
		return nil, fmt.Errorf("no judgment service configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return j.Judge(ctx, req)
}

// degraded builds the result for a failed judgment call.
func degraded(category string, err error) Outcome {
	return Direct(evidence.NewResult(
		evidence.FlagSuspicious,
		degradedConfidence,
		"judgment service unavailable: "+redact.Error(err),
		category,
		nil,
	))
}

func metadataFor(in evidence.AnalysisInput) map[string]string {
	if in.Metadata == nil {
		return nil
	}
	out := map[string]string{}
	if in.Metadata.Source != "" {
		out["source"] = in.Metadata.Source
	}
	if in.Metadata.FileType != "" {
		out["file_type"] = in.Metadata.FileType
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
