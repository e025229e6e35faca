package pull

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/queue"
	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPullDelay = 5 * time.Second
	DefaultQueueSize = 1000
)

type Options struct {
	StreamName string
	ShardID    string
	From       stream.StartPosition
	PullDelay  time.Duration
	// RenderDelay defaults to PullDelay.
	RenderDelay time.Duration
	Duration    time.Duration
	QueueSize   int

	Output io.Writer
	Retry  *retry.Backoff
}

// Run resolves the starting cursor and then pulls and renders records until
// the duration expires, the shard closes or stop is set.
func Run(ctx context.Context, client stream.StreamClient, stop *pipeline.StopSignal, opts Options) error {
	if opts.PullDelay <= 0 {
		opts.PullDelay = DefaultPullDelay
	}
	if opts.RenderDelay <= 0 {
		opts.RenderDelay = opts.PullDelay
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.From == "" {
		opts.From = stream.Latest
	}

	cursor, err := retry.Call(ctx, opts.Retry, "GetShardIterator", func() (string, error) {
		return client.GetCursor(ctx, opts.StreamName, opts.ShardID, opts.From)
	})
	if err != nil {
		return fmt.Errorf("cannot retrieve cursor for stream [%s] / shard [%s]: %w", opts.StreamName, opts.ShardID, err)
	}

	log.WithFields(log.Fields{
		"stream":        opts.StreamName,
		"shard_id":      opts.ShardID,
		"from":          opts.From,
		"pull_delay_ms": opts.PullDelay.Milliseconds(),
	}).Info("Pulling records")

	q := queue.New[RecordBatch](opts.QueueSize)
	puller := NewPuller(client, q, cursor, PullerConfig{
		ShardID:   opts.ShardID,
		PullDelay: opts.PullDelay,
		Duration:  opts.Duration,
	}, opts.Retry)
	renderer := NewRenderer(q, opts.Output, opts.RenderDelay)
	return pipeline.Run(ctx, stop, puller, renderer)
}
