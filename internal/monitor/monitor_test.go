package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/metrics"
)

type classifierFunc func(ctx context.Context, in evidence.AnalysisInput) evidence.AnalysisResult

func (f classifierFunc) Classify(ctx context.Context, in evidence.AnalysisInput) evidence.AnalysisResult {
	return f(ctx, in)
}

func echoClassifier() classifierFunc {
	return func(_ context.Context, in evidence.AnalysisInput) evidence.AnalysisResult {
		r := evidence.NewResult(evidence.FlagSafe, 0.7, "ok", "network_analysis", nil)
		r.InputID = in.ID
		return r
	}
}

func networkInput() evidence.AnalysisInput {
	return evidence.NewInput(evidence.KindNetwork, evidence.NetworkPayload{}, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestLifecycle(t *testing.T) {
	m := New(echoClassifier(), NewSliceSource(networkInput()), 10*time.Millisecond)
	assert.Equal(t, Idle, m.State())

	require.NoError(t, m.Start(context.Background(), nil))
	assert.Equal(t, Running, m.State())
	assert.ErrorIs(t, m.Start(context.Background(), nil), ErrAlreadyStarted)

	m.Stop()
	assert.Equal(t, Stopped, m.State())
	m.Stop()
	assert.ErrorIs(t, m.Start(context.Background(), nil), ErrStopped)

	select {
	case <-m.Done():
	default:
		t.Fatal("done should be closed after Stop")
	}
}

func TestStopOnIdle(t *testing.T) {
	m := New(echoClassifier(), NewSliceSource(), time.Second)
	m.Stop()
	assert.Equal(t, Stopped, m.State())
	assert.ErrorIs(t, m.Start(context.Background(), nil), ErrStopped)
	<-m.Done()
}

func TestDeliversResults(t *testing.T) {
	var (
		mu  sync.Mutex
		got []evidence.AnalysisResult
	)
	m := New(echoClassifier(), NewSliceSource(networkInput(), networkInput()), 5*time.Millisecond)
	require.NoError(t, m.Start(context.Background(), func(r evidence.AnalysisResult) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	}))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 3
	})
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	seen := map[string]bool{}
	for _, r := range got {
		assert.False(t, seen[r.InputID], "input id reused")
		seen[r.InputID] = true
	}
}

func TestNoCallbackAfterStop(t *testing.T) {
	const interval = 10 * time.Millisecond
	var calls atomic.Int32
	first := make(chan struct{}, 1)

	m := New(echoClassifier(), NewSliceSource(networkInput()), interval)
	require.NoError(t, m.Start(context.Background(), func(evidence.AnalysisResult) {
		calls.Add(1)
		select {
		case first <- struct{}{}:
		default:
		}
	}))

	<-first
	m.Stop()
	atStop := calls.Load()
	assert.LessOrEqual(t, atStop, int32(2))

	time.Sleep(3 * interval)
	assert.Equal(t, atStop, calls.Load())
}

func TestInFlightClassificationCompletesButIsDiscarded(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.NewMetrics(reg)

	entered := make(chan struct{})
	var once sync.Once
	var completed atomic.Bool
	ctxErr := make(chan error, 1)
	slow := classifierFunc(func(ctx context.Context, in evidence.AnalysisInput) evidence.AnalysisResult {
		once.Do(func() { close(entered) })
		time.Sleep(50 * time.Millisecond)
		ctxErr <- ctx.Err()
		completed.Store(true)
		return evidence.NewResult(evidence.FlagSafe, 1, "done", "network_analysis", nil)
	})

	var calls atomic.Int32
	m := New(slow, NewSliceSource(networkInput()), 5*time.Millisecond, WithMetrics(met))
	require.NoError(t, m.Start(context.Background(), func(evidence.AnalysisResult) { calls.Add(1) }))

	<-entered
	m.Stop()

	assert.True(t, completed.Load(), "Stop returned before the in-flight classification finished")
	assert.NoError(t, <-ctxErr, "in-flight classification saw a cancelled context")
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(met.MonitorTicksTotal.WithLabelValues(metrics.TickDiscarded)))
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New(echoClassifier(), NewSliceSource(networkInput()), 5*time.Millisecond)
	require.NoError(t, m.Start(ctx, nil))

	cancel()
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not exit after context cancel")
	}
	assert.Equal(t, Stopped, m.State())
	m.Stop()
}

func TestStopFromCallback(t *testing.T) {
	var m *Monitor
	stopped := make(chan struct{})
	m = New(echoClassifier(), NewSliceSource(networkInput()), 5*time.Millisecond)
	require.NoError(t, m.Start(context.Background(), func(evidence.AnalysisResult) {
		m.Stop()
		select {
		case <-stopped:
		default:
			close(stopped)
		}
	}))

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}
	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not exit after Stop from callback")
	}
}

func TestSourceErrorsSkipTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.NewMetrics(reg)

	var pulls atomic.Int32
	src := FuncSource(func(context.Context) (evidence.AnalysisInput, error) {
		if pulls.Add(1) == 1 {
			return evidence.AnalysisInput{}, errors.New("sensor offline")
		}
		return networkInput(), nil
	})

	var calls atomic.Int32
	m := New(echoClassifier(), src, 5*time.Millisecond, WithMetrics(met))
	require.NoError(t, m.Start(context.Background(), func(evidence.AnalysisResult) { calls.Add(1) }))
	waitFor(t, func() bool { return calls.Load() >= 1 })
	m.Stop()

	assert.Equal(t, 1.0, testutil.ToFloat64(met.MonitorTicksTotal.WithLabelValues(metrics.TickSourceError)))
}

func TestBusyTicksAreDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	met := metrics.NewMetrics(reg)

	var inFlight, maxInFlight atomic.Int32
	slow := classifierFunc(func(ctx context.Context, in evidence.AnalysisInput) evidence.AnalysisResult {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return evidence.NewResult(evidence.FlagSafe, 0.7, "ok", "x", nil)
	})

	var calls atomic.Int32
	m := New(slow, NewSliceSource(networkInput()), 2*time.Millisecond, WithMetrics(met))
	require.NoError(t, m.Start(context.Background(), func(evidence.AnalysisResult) { calls.Add(1) }))
	waitFor(t, func() bool { return calls.Load() >= 3 })
	m.Stop()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Greater(t, testutil.ToFloat64(met.MonitorTicksTotal.WithLabelValues(metrics.TickSkipped)), 0.0)
}

func TestSyntheticSourceIsDeterministic(t *testing.T) {
	a := NewSyntheticNetworkSource(42)
	b := NewSyntheticNetworkSource(42)
	for i := 0; i < 10; i++ {
		x, err := a.Next(context.Background())
		require.NoError(t, err)
		y, err := b.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, evidence.KindNetwork, x.Kind)
		if diff := cmp.Diff(x.Payload, y.Payload); diff != "" {
			t.Fatalf("pull %d differs (-a +b):\n%s", i, diff)
		}
	}
}

func TestChannelSource(t *testing.T) {
	src := NewChannelSource(1)
	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, ErrNoInput)

	in := networkInput()
	require.NoError(t, src.Push(in))
	assert.ErrorIs(t, src.Push(in), ErrSourceFull)

	got, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
}

func TestNewSource(t *testing.T) {
	src, err := NewSource("synthetic", 1)
	require.NoError(t, err)
	assert.IsType(t, &SyntheticNetworkSource{}, src)

	_, err = NewSource("kafka", 1)
	assert.Error(t, err)
}
