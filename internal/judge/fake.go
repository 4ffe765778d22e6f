package judge

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoJudgment is returned by a Fake with neither Judgment nor Error set.
var ErrNoJudgment = errors.New("judge: fake has no judgment configured")

// Fake returns a canned judgment or error. It honours ctx so tests can
// exercise deadlines with Delay.
type Fake struct {
	Judgment *Judgment
	Error    error
	Delay    time.Duration

	mu       sync.Mutex
	requests []Request
}

// NewFake returns a Fake answering j.
func NewFake(j *Judgment) *Fake {
	return &Fake{Judgment: j}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Judge(ctx context.Context, req Request) (*Judgment, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Error != nil {
		return nil, f.Error
	}
	if f.Judgment == nil {
		return nil, ErrNoJudgment
	}
	out := *f.Judgment
	return &out, nil
}

// Requests returns a copy of the requests seen so far.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}
