package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/logging"
	"github.com/straja-ai/triage/internal/metrics"
	"github.com/straja-ai/triage/internal/redact"
)

// Sink consumes escalation events (file, webhook, nats).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Counters holds delivery counters.
type Counters struct {
	enqueued uint64
	dropped  uint64

	sinkSuccess map[string]uint64
	sinkFailure map[string]uint64
}

// Snapshot copies the counters for observation/testing.
func (c *Counters) Snapshot() Counters {
	if c == nil {
		return Counters{}
	}
	out := Counters{
		enqueued:    c.enqueued,
		dropped:     c.dropped,
		sinkSuccess: make(map[string]uint64, len(c.sinkSuccess)),
		sinkFailure: make(map[string]uint64, len(c.sinkFailure)),
	}
	for k, v := range c.sinkSuccess {
		out.sinkSuccess[k] = v
	}
	for k, v := range c.sinkFailure {
		out.sinkFailure[k] = v
	}
	return out
}

func (c *Counters) Enqueued() uint64 { return c.enqueued }
func (c *Counters) Dropped() uint64  { return c.dropped }
func (c *Counters) SinkSuccess(name string) uint64 {
	if c == nil {
		return 0
	}
	return c.sinkSuccess[name]
}
func (c *Counters) SinkFailure(name string) uint64 {
	if c == nil {
		return 0
	}
	return c.sinkFailure[name]
}

// Emitter buffers and delivers escalation events to sinks. It implements
// Notifier.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	workers         int
	counters        *Counters
	metrics         *metrics.Metrics
	logger          zerolog.Logger
	shutdownTimeout time.Duration

	mu         sync.RWMutex
	countersMu sync.Mutex
	closed     bool
	wg         sync.WaitGroup
}

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
	Metrics         *metrics.Metrics
}

// NewEmitter starts background workers to deliver events to the provided sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	workerCount := cfg.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 2 * time.Second
	}

	c := &Counters{
		sinkSuccess: make(map[string]uint64, len(sinks)),
		sinkFailure: make(map[string]uint64, len(sinks)),
	}
	for _, s := range sinks {
		c.sinkSuccess[s.Name()] = 0
		c.sinkFailure[s.Name()] = 0
	}

	em := &Emitter{
		queue:           make(chan *Event, queueSize),
		sinks:           sinks,
		workers:         workerCount,
		counters:        c,
		metrics:         cfg.Metrics,
		logger:          logging.New("escalation"),
		shutdownTimeout: shutdownTimeout,
	}

	for i := 0; i < workerCount; i++ {
		em.wg.Add(1)
		go em.worker()
	}

	return em
}

// Notify wraps the result in an event and enqueues it.
func (e *Emitter) Notify(ctx context.Context, result evidence.AnalysisResult, input evidence.AnalysisInput) {
	e.Emit(ctx, NewEvent(result, input))
}

// Emit attempts to enqueue the event without blocking the caller.
func (e *Emitter) Emit(_ context.Context, ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.drop(ev, "emitter closed")
		return
	}

	select {
	case e.queue <- ev:
		e.countersMu.Lock()
		e.counters.enqueued++
		e.countersMu.Unlock()
		e.metrics.IncrementEscalations(metrics.EscalationEnqueued)
	default:
		e.drop(ev, "queue full")
	}
}

func (e *Emitter) drop(ev *Event, reason string) {
	e.countersMu.Lock()
	e.counters.dropped++
	e.countersMu.Unlock()
	e.metrics.IncrementEscalations(metrics.EscalationDropped)
	e.logger.Warn().Str("event_id", ev.ID).Str("result_id", ev.Result.ID).Str("reason", reason).Msg("escalation dropped")
}

// Close stops accepting new events and waits briefly to drain the queue.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	waitCtx := ctx
	if waitCtx == nil {
		waitCtx = context.Background()
	}
	if e.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, e.shutdownTimeout)
		defer cancel()
	}

	select {
	case <-done:
	case <-waitCtx.Done():
		e.logger.Warn().Msg("escalation queue not drained before shutdown timeout")
	}

	for _, s := range e.sinks {
		if err := s.Close(waitCtx); err != nil {
			e.logger.Error().Str("sink", s.Name()).Str("error", redact.Error(err)).Msg("sink close error")
		}
	}
}

// CountersSnapshot safely copies current counters.
func (e *Emitter) CountersSnapshot() Counters {
	if e == nil || e.counters == nil {
		return Counters{}
	}
	e.countersMu.Lock()
	defer e.countersMu.Unlock()
	return e.counters.Snapshot()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.deliver(ev)
	}
}

func (e *Emitter) deliver(ev *Event) {
	for _, s := range e.sinks {
		if err := s.Deliver(context.Background(), ev); err != nil {
			e.logger.Error().Str("sink", s.Name()).Str("event_id", ev.ID).Str("error", redact.Error(err)).Msg("sink delivery failed")
			e.countersMu.Lock()
			e.counters.sinkFailure[s.Name()]++
			e.countersMu.Unlock()
			e.metrics.IncrementEscalations(metrics.EscalationFailed)
			continue
		}
		e.countersMu.Lock()
		e.counters.sinkSuccess[s.Name()]++
		e.countersMu.Unlock()
		e.metrics.IncrementEscalations(metrics.EscalationDelivered)
	}
}
