package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/triage/internal/classifier"
	"github.com/straja-ai/triage/internal/config"
	"github.com/straja-ai/triage/internal/escalation"
	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/judge"
	"github.com/straja-ai/triage/internal/mockjudge"
	"github.com/straja-ai/triage/internal/monitor"
)

func defaults(t *testing.T) *config.Config {
	t.Helper()
	c, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.NoError(t, err)
	return c
}

func TestLoadConfigLevelOverride(t *testing.T) {
	c, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Logging.Level)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  format: xml\n"), 0o600))

	_, err := loadConfig(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestBuildJudge(t *testing.T) {
	for _, provider := range []string{"", "none", " None "} {
		j, err := buildJudge(config.JudgeConfig{Provider: provider, CacheSize: 8})
		require.NoError(t, err)
		assert.Nil(t, j, "provider %q", provider)
	}

	j, err := buildJudge(config.JudgeConfig{Provider: "fake"})
	require.NoError(t, err)
	assert.Equal(t, "fake", j.Name())

	j, err = buildJudge(config.JudgeConfig{Provider: "fake", CacheSize: 8})
	require.NoError(t, err)
	assert.Equal(t, "fake+cache", j.Name())

	_, err = buildJudge(config.JudgeConfig{Provider: "oracle"})
	assert.Error(t, err)

	_, err = buildJudge(config.JudgeConfig{Provider: "onnx", BundleDir: t.TempDir()})
	assert.Error(t, err)
}

func TestBuildJudgeOpenAIAgainstMock(t *testing.T) {
	shutdown, baseURL, err := mockjudge.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	j, err := buildJudge(config.JudgeConfig{Provider: "openai", BaseURL: baseURL + "/v1", APIKey: "test", TimeoutMs: 2000})
	require.NoError(t, err)

	got, err := j.Judge(context.Background(), judge.Request{Task: judge.TaskText, Content: "Please send a wire transfer today"})
	require.NoError(t, err)
	assert.Equal(t, judge.ThreatHigh, got.ThreatLevel)
}

func TestRuntimeEscalatesToFileSink(t *testing.T) {
	c := defaults(t)
	path := filepath.Join(t.TempDir(), "escalations.jsonl")
	c.Escalation.Sinks = []config.SinkConfig{{Type: "file_jsonl", Path: path}}

	rt, err := buildRuntime(context.Background(), c)
	require.NoError(t, err)

	in := evidence.NewInput(evidence.KindNetwork, evidence.NetworkPayload{
		Connections:   []evidence.Connection{{IP: "198.51.100.4", Port: 22}},
		TrafficVolume: 5_000_000,
	}, nil)
	r := rt.engine.Classify(context.Background(), in)
	require.Equal(t, evidence.FlagSuspicious, r.Flag)

	rt.Close(context.Background())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var ev escalation.Event
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &ev))
	assert.Equal(t, in.ID, ev.Input.ID)
	assert.Equal(t, evidence.KindNetwork, ev.Input.Kind)
}

func TestClassifyInputs(t *testing.T) {
	engine := classifier.New(classifier.Options{})

	var out bytes.Buffer
	err := classifyInputs(context.Background(), engine,
		strings.NewReader(`{"id":"t1","kind":"transaction","payload":{"amount":15000,"frequency":25}}`), &out)
	require.NoError(t, err)
	var single evidence.AnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &single))
	assert.Equal(t, "t1", single.InputID)
	assert.Equal(t, evidence.FlagMalicious, single.Flag)

	out.Reset()
	err = classifyInputs(context.Background(), engine,
		strings.NewReader(` [{"kind":"mystery"},{"kind":"transaction","payload":{"amount":15000,"frequency":25}}]`), &out)
	require.NoError(t, err)
	var batch evidence.BatchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &batch))
	require.Len(t, batch.Results, 2)
	assert.NotEmpty(t, batch.Results[0].InputID)
	assert.Equal(t, evidence.Summary{Negative: 1, Suspicious: 1, Total: 2}, batch.Summary)

	assert.Error(t, classifyInputs(context.Background(), engine, strings.NewReader("  "), &out))
	assert.Error(t, classifyInputs(context.Background(), engine, strings.NewReader(`{"kind":`), &out))
}

func TestZeroConfigTextDegrades(t *testing.T) {
	rt, err := buildRuntime(context.Background(), defaults(t))
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close(context.Background()) })

	in := evidence.NewInput(evidence.KindText, evidence.TextPayload{
		Text: "URGENT: Your account will be suspended! Click here immediately!",
	}, nil)
	r := rt.engine.Classify(context.Background(), in)
	assert.Equal(t, evidence.FlagSuspicious, r.Flag)
	assert.LessOrEqual(t, r.Confidence, 0.3)
	assert.Equal(t, "text_analysis", r.Category)
	assert.Contains(t, r.Reasoning, "judgment service unavailable")
}

func TestRunMonitorStopsAfterCount(t *testing.T) {
	engine := classifier.New(classifier.Options{})
	mon := monitor.New(engine, monitor.NewSyntheticNetworkSource(7), 5*time.Millisecond)

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runMonitor(ctx, mon, 3, &out))
	assert.Equal(t, monitor.Stopped, mon.State())

	lines := 0
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var r evidence.AnalysisResult
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		assert.Equal(t, "network_analysis", r.Category)
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestRunBench(t *testing.T) {
	engine := classifier.New(classifier.Options{})
	var out bytes.Buffer
	require.NoError(t, runBench(context.Background(), engine, monitor.NewSyntheticNetworkSource(1), 50, &out))
	assert.Contains(t, out.String(), "bench: n=50")
}
