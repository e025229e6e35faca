package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/markberger/kinesisctl/internal/metrics"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultMaxRetries     = 5
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
)

// Filter reports whether an error should be retried. A nil Filter retries
// every error.
type Filter func(error) bool

// ExhaustedError is returned once every attempt of an operation has failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s has failed after %d unsuccessful attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Filter         Filter
}

// Backoff runs operations with capped exponential backoff between failed
// attempts. The n-th retry (0-based) sleeps InitialBackoff * 2^n.
type Backoff struct {
	maxRetries int
	durations  *backoff.Backoff
	filter     Filter
	sleep      func(context.Context, time.Duration) error
	attempts   metric.Int64Counter
}

func New(cfg Config) (*Backoff, error) {
	if cfg.InitialBackoff <= 0 {
		return nil, fmt.Errorf("initial backoff must be larger than zero: %s", cfg.InitialBackoff)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	attempts, _ := metrics.Meter.Int64Counter("kinesisctl.retry.attempts")
	return &Backoff{
		maxRetries: cfg.MaxRetries,
		durations: &backoff.Backoff{
			Min:    cfg.InitialBackoff,
			Max:    cfg.MaxBackoff,
			Factor: 2,
		},
		filter:   cfg.Filter,
		sleep:    sleepContext,
		attempts: attempts,
	}, nil
}

// Delay returns the wait applied after the given failed attempt (0-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	return b.durations.ForAttempt(float64(attempt))
}

// Do calls fn until it succeeds, returns an error the filter rejects, or the
// retry budget is spent.
func (b *Backoff) Do(ctx context.Context, op string, fn func() error) error {
	var last error
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if b.filter != nil && !b.filter(err) {
			return err
		}
		last = err
		b.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))

		if attempt == b.maxRetries-1 {
			log.WithError(err).WithField("op", op).Error("Operation has failed for the last time")
			break
		}

		delay := b.Delay(attempt)
		log.WithError(err).WithFields(log.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"backoff": delay,
		}).Warn("Operation failed, backing off and retrying")

		if err := b.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: retry interrupted: %w", op, errors.Join(err, last))
		}
	}
	return &ExhaustedError{Op: op, Attempts: b.maxRetries, Last: last}
}

// Call is Do for operations that produce a value.
func Call[T any](ctx context.Context, b *Backoff, op string, fn func() (T, error)) (T, error) {
	var out T
	err := b.Do(ctx, op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
