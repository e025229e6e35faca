package pipeline

import (
	"context"
	"time"
)

// StopSignal is the one-way shutdown flag shared by every worker of an
// invocation. Once set it stays set.
type StopSignal struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewStopSignal() *StopSignal {
	ctx, cancel := context.WithCancel(context.Background())
	return &StopSignal{ctx: ctx, cancel: cancel}
}

func (s *StopSignal) Set() {
	s.cancel()
}

func (s *StopSignal) IsSet() bool {
	return s.ctx.Err() != nil
}

func (s *StopSignal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context is cancelled when the signal is set. Blocking calls that should
// give up on shutdown, such as queue puts, take it.
func (s *StopSignal) Context() context.Context {
	return s.ctx
}

// Wait sleeps for d or until the signal is set, and reports whether the
// signal is set.
func (s *StopSignal) Wait(d time.Duration) bool {
	if d <= 0 {
		return s.IsSet()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return s.IsSet()
	case <-s.ctx.Done():
		return true
	}
}

// WithStop derives a context from ctx that is also cancelled once stop is
// set. Callers must call the returned cancel func.
func WithStop(ctx context.Context, stop *StopSignal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	release := context.AfterFunc(stop.ctx, cancel)
	return ctx, func() {
		release()
		cancel()
	}
}
