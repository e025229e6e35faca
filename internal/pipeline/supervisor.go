package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Worker is one stage of a pipeline. Run returns once the stage is finished,
// either because its input ended or because stop was set.
type Worker interface {
	Name() string
	Run(ctx context.Context, stop *StopSignal) error
}

// WorkerError records which worker failed.
type WorkerError struct {
	Worker string
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.Worker, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// Supervisor runs workers concurrently. The first failing worker sets the
// shared StopSignal so its siblings wind down, and Wait reports that failure.
type Supervisor struct {
	stop  *StopSignal
	group *errgroup.Group
	ctx   context.Context
}

// NewSupervisor ties the workers to ctx for network calls. Cancelling ctx
// also sets stop.
func NewSupervisor(ctx context.Context, stop *StopSignal) *Supervisor {
	s := &Supervisor{
		stop:  stop,
		group: &errgroup.Group{},
		ctx:   ctx,
	}
	go func() {
		select {
		case <-ctx.Done():
			stop.Set()
		case <-stop.Done():
		}
	}()
	return s
}

func (s *Supervisor) Go(w Worker) {
	s.group.Go(func() (err error) {
		logger := log.WithField("worker", w.Name())
		defer func() {
			if r := recover(); r != nil {
				err = &WorkerError{Worker: w.Name(), Err: fmt.Errorf("panic: %v", r)}
				logger.WithField("stack", string(debug.Stack())).Error("Worker panicked")
				s.stop.Set()
			}
		}()

		logger.Debug("Worker started")
		if runErr := w.Run(s.ctx, s.stop); runErr != nil {
			logger.WithError(runErr).Error("Worker failed, stopping pipeline")
			s.stop.Set()
			return &WorkerError{Worker: w.Name(), Err: runErr}
		}
		logger.Debug("Worker finished")
		return nil
	})
}

// Wait joins all workers and returns the first error any of them reported.
func (s *Supervisor) Wait() error {
	err := s.group.Wait()
	s.stop.Set()
	return err
}

// Run is a convenience for starting workers and waiting on them.
func Run(ctx context.Context, stop *StopSignal, workers ...Worker) error {
	sup := NewSupervisor(ctx, stop)
	for _, w := range workers {
		sup.Go(w)
	}
	return sup.Wait()
}
