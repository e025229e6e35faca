package push

import (
	"context"
	"io"
	"time"

	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/queue"
	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPushDelay = time.Second
	DefaultQueueSize = 10000
)

type Options struct {
	Publisher PublisherConfig
	DryRun    bool
	QueueSize int

	Input io.Reader
	// Output receives progress dots, or the would-be records in dry run.
	Output io.Writer
	Retry  *retry.Backoff
}

// Run pushes every line of opts.Input to the stream and returns once the
// input is exhausted or stop is set, and the last batch is flushed.
func Run(ctx context.Context, client stream.StreamClient, stop *pipeline.StopSignal, opts Options) error {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Publisher.PushDelay <= 0 {
		opts.Publisher.PushDelay = DefaultPushDelay
	}

	q := queue.New[UnitOfWork](opts.QueueSize)
	reader := NewReader(opts.Input, q, opts.DryRun, opts.Output)
	if opts.DryRun {
		log.Info("Dry run, records are printed instead of pushed")
		return pipeline.Run(ctx, stop, reader)
	}

	publisher := NewPublisher(client, q, opts.Publisher, opts.Retry, opts.Output)
	log.WithFields(log.Fields{
		"stream":        opts.Publisher.StreamName,
		"batch":         !opts.Publisher.DisableBatch,
		"push_delay_ms": opts.Publisher.PushDelay.Milliseconds(),
	}).Info("Pushing records")
	return pipeline.Run(ctx, stop, reader, publisher)
}
