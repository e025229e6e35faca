package pull

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/markberger/kinesisctl/internal/metrics"
	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/queue"
	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
)

// RecordBatch holds the records of one fetch.
type RecordBatch struct {
	Records            []stream.Record
	MillisBehindLatest int64
}

type PullerConfig struct {
	ShardID   string
	PullDelay time.Duration
	// Duration bounds the whole pull. Negative means unbounded.
	Duration time.Duration
}

// Puller follows one shard from a starting cursor and hands every non-empty
// fetch to the renderer.
type Puller struct {
	client  stream.StreamClient
	out     *queue.BoundedQueue[RecordBatch]
	cursor  string
	cfg     PullerConfig
	backoff *retry.Backoff
	clock   clock.Clock

	records metric.Int64Counter
	fetches metric.Int64Counter
}

func NewPuller(
	client stream.StreamClient,
	out *queue.BoundedQueue[RecordBatch],
	cursor string,
	cfg PullerConfig,
	backoff *retry.Backoff,
) *Puller {
	records, _ := metrics.Meter.Int64Counter("kinesisctl.pull.records")
	fetches, _ := metrics.Meter.Int64Counter("kinesisctl.pull.fetches")
	return &Puller{
		client:  client,
		out:     out,
		cursor:  cursor,
		cfg:     cfg,
		backoff: backoff,
		clock:   clock.New(),
		records: records,
		fetches: fetches,
	}
}

func (p *Puller) Name() string {
	return "puller"
}

// Cursor is the position the next fetch reads from.
func (p *Puller) Cursor() string {
	return p.cursor
}

func (p *Puller) Run(ctx context.Context, stop *pipeline.StopSignal) error {
	bounded := p.cfg.Duration >= 0
	endTime := p.clock.Now().Add(p.cfg.Duration)
	if bounded {
		log.WithField("end_time", endTime.Format(time.RFC3339)).Debug("Pulling until end time")
	}

	for {
		if bounded && p.clock.Now().After(endTime) {
			log.Info("Pull duration expired")
			stop.Set()
		}
		if stop.Wait(p.cfg.PullDelay) {
			log.Debug("Puller is leaving")
			return nil
		}

		log.WithField("cursor", p.cursor).Debug("Getting records")
		out, err := p.fetch(ctx, stop)
		if err != nil {
			if stop.IsSet() && ctx.Err() == nil {
				log.WithError(err).Debug("Fetch interrupted by stop, puller is leaving")
				return nil
			}
			return fmt.Errorf("fetch records from %s: %w", p.cfg.ShardID, err)
		}
		p.fetches.Add(ctx, 1)

		if len(out.Records) == 0 {
			log.WithField("millis_behind_latest", out.MillisBehindLatest).Debug("No records read")
		} else {
			p.records.Add(ctx, int64(len(out.Records)))
			batch := RecordBatch{Records: out.Records, MillisBehindLatest: out.MillisBehindLatest}
			if err := p.out.Put(stop.Context(), batch); err != nil {
				if errors.Is(err, queue.ErrStopped) {
					return nil
				}
				return err
			}
		}

		p.cursor = out.NextCursor
		if p.cursor == "" {
			log.WithField("shard_id", p.cfg.ShardID).Info("Shard is closed, no more records to read")
			stop.Set()
			return nil
		}
	}
}

// fetch reads one batch, giving up on retries as soon as the stop signal is
// set.
func (p *Puller) fetch(ctx context.Context, stop *pipeline.StopSignal) (stream.FetchOutput, error) {
	fetchCtx, cancel := pipeline.WithStop(ctx, stop)
	defer cancel()
	return retry.Call(fetchCtx, p.backoff, "GetRecords", func() (stream.FetchOutput, error) {
		return p.client.FetchRecords(fetchCtx, p.cursor)
	})
}
