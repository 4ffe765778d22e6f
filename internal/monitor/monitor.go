// Package monitor classifies a stream of inputs on a fixed interval until
// stopped.
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/logging"
	"github.com/straja-ai/triage/internal/metrics"
	"github.com/straja-ai/triage/internal/redact"
)

var (
	ErrAlreadyStarted = errors.New("monitor: already started")
	ErrStopped        = errors.New("monitor: stopped")
)

// DefaultInterval is used when New is given a non-positive interval.
const DefaultInterval = 5 * time.Second

// State is the lifecycle of a Monitor: Idle, Running, then Stopped for good.
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Classifier is the single-item pipeline.
type Classifier interface {
	Classify(ctx context.Context, in evidence.AnalysisInput) evidence.AnalysisResult
}

// Monitor pulls one input per tick from its source, classifies it and hands
// the result to the callback. Ticks that fire while a classification is in
// flight are dropped. A result still in flight when the monitor stops is
// discarded.
type Monitor struct {
	classifier Classifier
	source     Source
	interval   time.Duration
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	inCallback atomic.Bool
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithMetrics records tick outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mon *Monitor) { mon.metrics = m }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(mon *Monitor) { mon.logger = l }
}

// New returns an idle monitor.
func New(c Classifier, src Source, interval time.Duration, opts ...Option) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		classifier: c,
		source:     src,
		interval:   interval,
		logger:     logging.New("monitor"),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start begins ticking. onResult runs on the monitor goroutine, one result
// at a time. Cancelling ctx stops the monitor like Stop.
func (m *Monitor) Start(ctx context.Context, onResult func(evidence.AnalysisResult)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Running:
		return ErrAlreadyStarted
	case Stopped:
		return ErrStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.state = Running
	go m.run(runCtx, onResult)

	m.logger.Info().Dur("interval", m.interval).Msg("monitor started")
	return nil
}

// Stop halts the monitor and waits for the loop to exit, so no callback
// starts after Stop returns. A classification already running finishes and
// its result is dropped. It is idempotent, and safe to call from the
// callback.
func (m *Monitor) Stop() {
	m.mu.Lock()
	switch m.state {
	case Idle:
		m.state = Stopped
		close(m.done)
		m.mu.Unlock()
		return
	case Stopped:
		m.mu.Unlock()
		return
	}
	m.state = Stopped
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	if !m.inCallback.Load() {
		<-m.done
	}
	m.logger.Info().Msg("monitor stopped")
}

// Done is closed once the monitor loop has exited.
func (m *Monitor) Done() <-chan struct{} { return m.done }

func (m *Monitor) run(ctx context.Context, onResult func(evidence.AnalysisResult)) {
	defer close(m.done)
	defer func() {
		m.mu.Lock()
		m.state = Stopped
		m.mu.Unlock()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		m.tick(ctx, onResult)

		// Drop a tick that queued up while this one was busy.
		select {
		case <-ticker.C:
			m.metrics.IncrementMonitorTicks(metrics.TickSkipped)
			m.logger.Debug().Msg("tick dropped: previous classification still running")
		default:
		}
	}
}

// tick classifies one input. Stop interrupts a source that is waiting, but
// not a classification in flight; ctx only decides whether its result is
// still delivered.
func (m *Monitor) tick(ctx context.Context, onResult func(evidence.AnalysisResult)) {
	in, err := m.source.Next(ctx)
	if err != nil {
		if errors.Is(err, ErrNoInput) {
			m.metrics.IncrementMonitorTicks(metrics.TickSkipped)
			return
		}
		if ctx.Err() != nil {
			return
		}
		m.metrics.IncrementMonitorTicks(metrics.TickSourceError)
		m.logger.Warn().Str("error", redact.Error(err)).Msg("source error; tick skipped")
		return
	}

	result := m.classifier.Classify(context.WithoutCancel(ctx), in)
	if ctx.Err() != nil {
		m.metrics.IncrementMonitorTicks(metrics.TickDiscarded)
		m.logger.Debug().Str("input", in.Describe()).Msg("result discarded after stop")
		return
	}

	m.metrics.IncrementMonitorTicks(metrics.TickClassified)
	if onResult == nil {
		return
	}
	m.inCallback.Store(true)
	defer m.inCallback.Store(false)
	onResult(result)
}
