package monitor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/straja-ai/triage/internal/evidence"
)

// ErrNoInput means the source had nothing for this tick.
var ErrNoInput = errors.New("monitor: no input available")

// ErrSourceFull is returned by ChannelSource.Push when the buffer is full.
var ErrSourceFull = errors.New("monitor: source buffer full")

// Source supplies one input per tick.
type Source interface {
	Next(ctx context.Context) (evidence.AnalysisInput, error)
}

// SyntheticNetworkSource fabricates network flow summaries from a seeded
// PRNG, so a given seed always yields the same sequence.
type SyntheticNetworkSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var (
	syntheticIPs = []string{
		"192.168.1.100", "10.0.0.50", "203.0.113.7",
		"198.51.100.20", "198.51.100.21", "172.16.4.2", "8.8.8.8", "1.1.1.1",
	}
	syntheticPorts = []int{22, 25, 53, 80, 443, 3389, 6667, 8080, 8443, 50051}
	protocols      = []string{"tcp", "udp"}
)

// NewSyntheticNetworkSource returns a source seeded with seed.
func NewSyntheticNetworkSource(seed int64) *SyntheticNetworkSource {
	return &SyntheticNetworkSource{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

func (s *SyntheticNetworkSource) Next(context.Context) (evidence.AnalysisInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := make([]evidence.Connection, s.rng.IntN(16))
	for i := range conns {
		conns[i] = evidence.Connection{
			IP:       syntheticIPs[s.rng.IntN(len(syntheticIPs))],
			Port:     syntheticPorts[s.rng.IntN(len(syntheticPorts))],
			Protocol: protocols[s.rng.IntN(len(protocols))],
		}
	}
	payload := evidence.NetworkPayload{
		Connections:   conns,
		TrafficVolume: s.rng.Int64N(3_000_000),
	}
	return evidence.NewInput(evidence.KindNetwork, payload, &evidence.Metadata{Source: "synthetic"}), nil
}

// ChannelSource yields inputs pushed by a producer. An empty buffer skips
// the tick instead of blocking it.
type ChannelSource struct {
	ch chan evidence.AnalysisInput
}

// NewChannelSource buffers up to size inputs.
func NewChannelSource(size int) *ChannelSource {
	if size <= 0 {
		size = 64
	}
	return &ChannelSource{ch: make(chan evidence.AnalysisInput, size)}
}

// Push queues in without blocking.
func (s *ChannelSource) Push(in evidence.AnalysisInput) error {
	select {
	case s.ch <- in:
		return nil
	default:
		return ErrSourceFull
	}
}

func (s *ChannelSource) Next(ctx context.Context) (evidence.AnalysisInput, error) {
	select {
	case in := <-s.ch:
		return in, nil
	case <-ctx.Done():
		return evidence.AnalysisInput{}, ctx.Err()
	default:
		return evidence.AnalysisInput{}, ErrNoInput
	}
}

// SliceSource cycles through a fixed set of inputs, giving each pull a fresh
// ID.
type SliceSource struct {
	mu     sync.Mutex
	inputs []evidence.AnalysisInput
	next   int
}

func NewSliceSource(inputs ...evidence.AnalysisInput) *SliceSource {
	return &SliceSource{inputs: inputs}
}

func (s *SliceSource) Next(context.Context) (evidence.AnalysisInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inputs) == 0 {
		return evidence.AnalysisInput{}, ErrNoInput
	}
	in := s.inputs[s.next%len(s.inputs)]
	s.next++
	in.ID = uuid.NewString()
	return in, nil
}

// FuncSource adapts a function to Source.
type FuncSource func(ctx context.Context) (evidence.AnalysisInput, error)

func (f FuncSource) Next(ctx context.Context) (evidence.AnalysisInput, error) { return f(ctx) }

// NewSource builds a named source. Only "synthetic" is known by name; the
// other sources are constructed in code.
func NewSource(name string, seed int64) (Source, error) {
	switch name {
	case "", "synthetic":
		return NewSyntheticNetworkSource(seed), nil
	default:
		return nil, fmt.Errorf("monitor: unknown source %q", name)
	}
}
