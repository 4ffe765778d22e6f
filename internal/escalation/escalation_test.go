package escalation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/straja-ai/triage/internal/config"
	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/metrics"
	"github.com/straja-ai/triage/internal/rules"
)

func testEvent(id string) *Event {
	in := evidence.NewInput(evidence.KindText, evidence.TextPayload{Text: "secret body"}, &evidence.Metadata{Source: "mailbox"})
	in.ID = id
	res := evidence.NewResult(evidence.FlagSuspicious, 0.9, "needs review", "text_analysis", []string{"phishing_content"})
	res.InputID = in.ID
	return NewEvent(res, in)
}

func TestShouldEscalate(t *testing.T) {
	th := rules.DefaultThresholds()
	cases := []struct {
		flag evidence.Flag
		conf float64
		want bool
	}{
		{evidence.FlagSuspicious, 0.9, true},
		{evidence.FlagSuspicious, 0.85, false},
		{evidence.FlagMalicious, 0.99, false},
		{evidence.FlagSafe, 0.99, false},
	}
	for _, tc := range cases {
		r := evidence.NewResult(tc.flag, tc.conf, "", "x", nil)
		if got := ShouldEscalate(th, r); got != tc.want {
			t.Fatalf("flag=%s conf=%v: expected %v, got %v", tc.flag, tc.conf, tc.want, got)
		}
	}
}

func TestEventOmitsPayload(t *testing.T) {
	ev := testEvent("in-1")
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "secret body") {
		t.Fatalf("event leaked payload: %s", data)
	}
	if !strings.Contains(string(data), `"source":"mailbox"`) {
		t.Fatalf("event missing metadata: %s", data)
	}
	if ev.ID == "" || ev.Input.ID != "in-1" || ev.Input.Kind != evidence.KindText {
		t.Fatalf("unexpected event identity: %+v", ev.Input)
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "events.jsonl")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("file sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("in-1")); err != nil {
		t.Fatalf("deliver 1: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("in-2")); err != nil {
		t.Fatalf("deliver 2: %v", err)
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var decoded Event
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal jsonl line: %v", err)
	}
	if decoded.Input.ID != "in-1" {
		t.Fatalf("expected input id in-1, got %s", decoded.Input.ID)
	}
}

func TestFileSinkZstdFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl.zst")

	for round := 0; round < 2; round++ {
		sink, err := NewFileSink(path)
		if err != nil {
			t.Fatalf("file sink: %v", err)
		}
		if err := sink.Deliver(context.Background(), testEvent("in")); err != nil {
			t.Fatalf("deliver: %v", err)
		}
		if err := sink.Close(context.Background()); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	scanner := bufio.NewScanner(dec)
	n := 0
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events across appends, got %d", n)
	}
}

func TestWebhookSinkRetriesThenSucceeds(t *testing.T) {
	shortBackoffs(t)
	var calls atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Triage-Event-Id") == "" {
			t.Errorf("missing event id header")
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	sink, err := NewWebhookSink(srv.URL+"/hook?token=abc", nil, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	if strings.Contains(sink.Name(), "token") {
		t.Fatalf("sink name leaks query: %s", sink.Name())
	}
	if err := sink.Deliver(context.Background(), testEvent("in")); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestWebhookSinkHandlesNon2xx(t *testing.T) {
	shortBackoffs(t)
	var calls atomic.Int32
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("fail"))
	}))

	sink, err := NewWebhookSink(srv.URL, map[string]string{"X-Test": "1"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	if err := sink.Deliver(context.Background(), testEvent("in")); err == nil {
		t.Fatalf("expected non-2xx to return error")
	} else if !strings.Contains(err.Error(), "status") {
		t.Fatalf("error should mention status, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx should not be retried, got %d calls", calls.Load())
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSinkPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	sink := NewNATSSink(pub, "triage.escalations")
	if sink.Name() != "nats:triage.escalations" {
		t.Fatalf("unexpected name %s", sink.Name())
	}
	if err := sink.Deliver(context.Background(), testEvent("in-7")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != "triage.escalations" {
		t.Fatalf("unexpected subjects %v", pub.subjects)
	}
	var ev Event
	if err := json.Unmarshal(pub.payloads[0], &ev); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if ev.Input.ID != "in-7" {
		t.Fatalf("unexpected input id %s", ev.Input.ID)
	}

	pub.err = errors.New("nats: connection closed")
	if err := sink.Deliver(context.Background(), testEvent("in-8")); err == nil {
		t.Fatalf("expected publish error")
	}
	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEmitterDropsWhenQueueFull(t *testing.T) {
	wait := make(chan struct{})
	sink := &blockingSink{wait: wait}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1, ShutdownTimeout: time.Second, Metrics: m}, []Sink{sink})

	ev := testEvent("in")
	em.Emit(context.Background(), ev)
	em.Emit(context.Background(), ev)
	em.Emit(context.Background(), ev)

	counters := em.CountersSnapshot()
	if counters.Dropped() == 0 {
		t.Fatalf("expected dropped events when queue is full")
	}
	if got := testutil.ToFloat64(m.EscalationsTotal.WithLabelValues(metrics.EscalationDropped)); got == 0 {
		t.Fatalf("expected dropped metric, got %v", got)
	}

	close(wait)
	em.Close(context.Background())
}

func TestEmitterNotifyDelivers(t *testing.T) {
	var (
		mu       sync.Mutex
		received []Event
	)
	srv := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			mu.Lock()
			received = append(received, ev)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))

	sink, err := NewWebhookSink(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("webhook sink: %v", err)
	}
	em := NewEmitter(EmitterConfig{QueueSize: 8, Workers: 2, ShutdownTimeout: time.Second}, []Sink{sink})

	in := evidence.NewInput(evidence.KindNetwork, evidence.NetworkPayload{}, nil)
	for i := 0; i < 5; i++ {
		res := evidence.NewResult(evidence.FlagSuspicious, 0.9, "review", "network_analysis", nil)
		em.Notify(context.Background(), res, in)
	}
	em.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 5 {
		t.Fatalf("expected 5 delivered events after drain, got %d", len(received))
	}
	counters := em.CountersSnapshot()
	if counters.SinkSuccess(sink.Name()) != 5 {
		t.Fatalf("expected 5 successes, got %d", counters.SinkSuccess(sink.Name()))
	}
	if counters.Dropped() != 0 {
		t.Fatalf("did not expect dropped events, got %d", counters.Dropped())
	}

	em.Emit(context.Background(), testEvent("late"))
	if em.CountersSnapshot().Dropped() != 1 {
		t.Fatalf("emit after close should count as dropped")
	}
}

func TestEmitterCountsSinkFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("down")}
	sink := NewNATSSink(pub, "s")
	em := NewEmitter(EmitterConfig{QueueSize: 2, Workers: 1}, []Sink{sink})
	em.Emit(context.Background(), testEvent("in"))
	em.Close(context.Background())

	if em.CountersSnapshot().SinkFailure(sink.Name()) != 1 {
		t.Fatalf("expected one failure")
	}
}

func TestNewSinks(t *testing.T) {
	dir := t.TempDir()
	sinks, err := NewSinks([]config.SinkConfig{
		{Type: "file_jsonl", Path: filepath.Join(dir, "e.jsonl")},
		{Type: "webhook", URL: "https://hooks.example.com/x"},
	}, "")
	if err != nil {
		t.Fatalf("new sinks: %v", err)
	}
	if len(sinks) != 2 {
		t.Fatalf("expected 2 sinks, got %d", len(sinks))
	}
	for _, s := range sinks {
		_ = s.Close(context.Background())
	}

	if _, err := NewSinks([]config.SinkConfig{{Type: "carrier_pigeon"}}, ""); err == nil {
		t.Fatalf("expected unknown sink type error")
	}
}

type blockingSink struct {
	wait chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(context.Context, *Event) error {
	<-s.wait
	return nil
}

func (s *blockingSink) Close(context.Context) error { return nil }

func shortBackoffs(t *testing.T) {
	t.Helper()
	prev := webhookBackoffs
	webhookBackoffs = []time.Duration{time.Millisecond, time.Millisecond}
	t.Cleanup(func() { webhookBackoffs = prev })
}

func newTestServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping: cannot open listener: %v", err)
	}
	srv := httptest.NewUnstartedServer(h)
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)
	return srv
}
