// Package classifier runs the single-item pipeline (extract, decide,
// escalate) and the batch processor built on it.
package classifier

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/straja-ai/triage/internal/decision"
	"github.com/straja-ai/triage/internal/escalation"
	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/extract"
	"github.com/straja-ai/triage/internal/logging"
	"github.com/straja-ai/triage/internal/metrics"
	"github.com/straja-ai/triage/internal/redact"
	"github.com/straja-ai/triage/internal/rules"
	"github.com/straja-ai/triage/internal/telemetry"
)

// DefaultParallel bounds concurrent items in a batch.
const DefaultParallel = 8

// Options wires an Engine. Only Registry is required.
type Options struct {
	Tables    *rules.Tables
	Registry  *extract.Registry
	Notifier  escalation.Notifier
	Metrics   *metrics.Metrics
	Telemetry *telemetry.Provider
	Parallel  int
	Logger    *zerolog.Logger
}

// Engine classifies evidence. It is safe for concurrent use.
type Engine struct {
	tables    *rules.Tables
	registry  *extract.Registry
	notifier  escalation.Notifier
	metrics   *metrics.Metrics
	telemetry *telemetry.Provider
	parallel  int
	logger    zerolog.Logger
}

// New builds an Engine.
func New(opts Options) *Engine {
	if opts.Tables == nil {
		opts.Tables = rules.Default()
	}
	if opts.Registry == nil {
		opts.Registry = extract.NewRegistry(extract.Deps{Tables: opts.Tables})
	}
	if opts.Parallel <= 0 {
		opts.Parallel = DefaultParallel
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Noop()
	}
	logger := logging.New("classifier")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Engine{
		tables:    opts.Tables,
		registry:  opts.Registry,
		notifier:  opts.Notifier,
		metrics:   opts.Metrics,
		telemetry: opts.Telemetry,
		parallel:  opts.Parallel,
		logger:    logger,
	}
}

// Classify runs one input through its extractor and the decision engine. It
// always returns a well-formed result; failures become error results.
func (e *Engine) Classify(ctx context.Context, in evidence.AnalysisInput) evidence.AnalysisResult {
	start := time.Now()
	ex := e.registry.For(in.Kind)

	ctx, span := e.telemetry.StartClassification(ctx, in)

	out, err := e.safeExtract(ctx, ex, in)

	var result evidence.AnalysisResult
	switch {
	case err != nil:
		e.metrics.IncrementExtractionErrors(ex.Category())
		e.logger.Warn().
			Str("input", in.Describe()).
			Str("extractor", ex.Category()).
			Str("error", redact.Error(err)).
			Msg("extraction failed")
		result = evidence.ErrorResult(err)
	case out.IsDirect():
		result = *out.Direct
	default:
		result = decision.Decide(e.tables, out.Indicators, out.Confidence, out.Category)
	}

	elapsed := time.Since(start)
	result.InputID = in.ID
	result.ProcessingTimeMs = float64(elapsed.Microseconds()) / 1000

	telemetry.EndClassification(span, result.Category, string(result.Flag), err != nil)
	e.telemetry.RecordClassification(string(in.Kind), result.Category, string(result.Flag), result.ProcessingTimeMs)
	e.metrics.ObserveClassification(result.Category, string(result.Flag), elapsed)

	e.logger.Debug().
		Str("input", in.Describe()).
		Str("flag", string(result.Flag)).
		Float64("confidence", result.Confidence).
		Str("category", result.Category).
		Msg("classified")

	if escalation.ShouldEscalate(e.tables.Thresholds(), result) {
		e.escalate(ctx, result, in)
	}
	return result
}

// ClassifyBatch classifies inputs concurrently and returns results in input
// order. Individual failures are already error results, so the batch itself
// never fails.
func (e *Engine) ClassifyBatch(ctx context.Context, inputs []evidence.AnalysisInput) evidence.BatchResult {
	results := make([]evidence.AnalysisResult, len(inputs))

	g := new(errgroup.Group)
	g.SetLimit(e.parallel)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			results[i] = e.Classify(ctx, in)
			return nil
		})
	}
	_ = g.Wait()

	var summary evidence.Summary
	for _, r := range results {
		summary.Add(r.Flag)
	}
	return evidence.BatchResult{Results: results, Summary: summary}
}

// Thresholds returns the engine's confidence cutoffs.
func (e *Engine) Thresholds() rules.Thresholds { return e.tables.Thresholds() }

func (e *Engine) escalate(ctx context.Context, result evidence.AnalysisResult, in evidence.AnalysisInput) {
	if e.notifier == nil {
		e.logger.Info().Str("result_id", result.ID).Str("input", in.Describe()).Msg("escalation skipped: no notifier configured")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("result_id", result.ID).Interface("panic", r).Msg("escalation notifier panicked")
		}
	}()
	e.notifier.Notify(ctx, result, in)
}

func (e *Engine) safeExtract(ctx context.Context, ex extract.Extractor, in evidence.AnalysisInput) (out extract.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Bytes("stack", debug.Stack()).Msg("extractor panic recovered")
			err = fmt.Errorf("extractor %s panicked: %v", ex.Category(), r)
		}
	}()
	return ex.Extract(ctx, in)
}
