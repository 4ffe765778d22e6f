package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/straja-ai/triage/internal/classifier"
	"github.com/straja-ai/triage/internal/config"
	"github.com/straja-ai/triage/internal/escalation"
	"github.com/straja-ai/triage/internal/extract"
	"github.com/straja-ai/triage/internal/judge"
	"github.com/straja-ai/triage/internal/metrics"
	"github.com/straja-ai/triage/internal/reputation"
	"github.com/straja-ai/triage/internal/telemetry"
)

// runtime holds everything a command needs to classify and the pieces that
// must be closed afterwards.
type runtime struct {
	engine    *classifier.Engine
	emitter   *escalation.Emitter
	telemetry *telemetry.Provider
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
}

func buildRuntime(ctx context.Context, c *config.Config) (*runtime, error) {
	tables, err := c.Rules.LoadRules()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	j, err := buildJudge(c.Judge)
	if err != nil {
		return nil, err
	}

	static := reputation.NewStatic(c.Reputation.Lists())
	var hashes reputation.HashReputation = static
	if c.Reputation.CacheSize > 0 {
		cached, err := reputation.NewCachedHashReputation(static, c.Reputation.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("hash reputation cache: %w", err)
		}
		hashes = cached
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  c.Telemetry.Enabled,
		Endpoint: c.Telemetry.Endpoint,
		Protocol: c.Telemetry.Protocol,
		Service:  "triage",
		Version:  version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	sinks, err := escalation.NewSinks(c.Escalation.Sinks, c.NATS.URL)
	if err != nil {
		tp.Shutdown(ctx)
		return nil, err
	}
	emitter := escalation.NewEmitter(escalation.EmitterConfig{
		QueueSize:       c.Escalation.QueueSize,
		Workers:         c.Escalation.Workers,
		ShutdownTimeout: c.Escalation.ShutdownTimeout(),
		Metrics:         m,
	}, sinks)

	registry := extract.NewRegistry(extract.Deps{
		Tables:    tables,
		Hashes:    hashes,
		Addresses: static,
		IPs:       static,
		Filetypes: static,
		Judge:     j,
		Limits: extract.Limits{
			NetworkByteThreshold: c.Extract.NetworkByteThreshold,
			BotnetConnections:    c.Extract.BotnetConnections,
			LaunderingAmount:     c.Extract.LaunderingAmount,
			LaunderingFrequency:  c.Extract.LaunderingFrequency,
			LargeAmount:          c.Extract.LargeAmount,
			MaxTextChars:         c.Judge.MaxTextChars,
			JudgeTimeout:         c.Judge.Timeout(),
		},
	})

	engine := classifier.New(classifier.Options{
		Tables:    tables,
		Registry:  registry,
		Notifier:  emitter,
		Metrics:   m,
		Telemetry: tp,
		Parallel:  c.Classifier.Parallel,
	})

	return &runtime{
		engine:    engine,
		emitter:   emitter,
		telemetry: tp,
		registry:  reg,
		metrics:   m,
	}, nil
}

// Close drains pending escalations and flushes telemetry.
func (rt *runtime) Close(ctx context.Context) {
	rt.emitter.Close(ctx)
	rt.telemetry.Shutdown(ctx)
}

func buildJudge(c config.JudgeConfig) (judge.Judge, error) {
	var (
		j   judge.Judge
		err error
	)
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "", "none":
		// Text and media then degrade to "=" at low confidence.
		return nil, nil
	case "fake":
		j = judge.NewFake(nil)
	case "openai":
		j = judge.NewOpenAI(judge.OpenAIConfig{
			BaseURL:          c.BaseURL,
			APIKey:           c.ResolveAPIKey(),
			Model:            c.Model,
			Timeout:          c.Timeout(),
			MaxResponseBytes: c.MaxResponseBytes,
		})
	case "azure":
		j, err = judge.NewAzureOpenAI(c.BaseURL, c.ResolveAPIKey(), c.Deployment)
	case "onnx":
		j, err = judge.NewONNX(c.BundleDir)
	default:
		return nil, fmt.Errorf("unknown judge provider %q", c.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s judge: %w", c.Provider, err)
	}

	if c.CacheSize > 0 {
		cached, err := judge.NewCached(j, c.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("judge cache: %w", err)
		}
		return cached, nil
	}
	return j, nil
}
