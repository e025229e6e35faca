package push

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/markberger/kinesisctl/internal/metrics"
	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/queue"
	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	MaxRecordSize      = 50 * 1024
	MaxTimeBetweenPuts = 5 * time.Second

	truncatedMarker       = "[TRUNCATED]"
	conflictingOperation  = "A conflicting operation is currently in progress"
	maxSequenceRecoveries = 10
)

var sequenceTokenPattern = regexp.MustCompile(`with sequenceToken: (\d+)`)

type PublisherConfig struct {
	StreamName string
	// PartitionKey is used for every record when set. Otherwise each record
	// is keyed by the MD5 of its payload.
	PartitionKey string
	DisableBatch bool
	// Ordered chains each put to the sequence number of the previous one.
	Ordered   bool
	PushDelay time.Duration
}

// Publisher drains units of work and puts them to the stream, merging them
// into batches of at most MaxRecordSize bytes unless batching is disabled.
type Publisher struct {
	client   stream.StreamClient
	in       *queue.BoundedQueue[UnitOfWork]
	cfg      PublisherConfig
	backoff  *retry.Backoff
	progress io.Writer
	clock    clock.Clock

	batch        []byte
	lastPut      time.Time
	lastSequence string

	records   metric.Int64Counter
	calls     metric.Int64Counter
	bytes     metric.Int64Counter
	truncated metric.Int64Counter
	duration  metric.Float64Histogram
}

func NewPublisher(
	client stream.StreamClient,
	in *queue.BoundedQueue[UnitOfWork],
	cfg PublisherConfig,
	backoff *retry.Backoff,
	progress io.Writer,
) *Publisher {
	records, _ := metrics.Meter.Int64Counter("kinesisctl.push.records")
	calls, _ := metrics.Meter.Int64Counter("kinesisctl.push.calls")
	bytes, _ := metrics.Meter.Int64Counter("kinesisctl.push.bytes", metric.WithUnit("By"))
	truncated, _ := metrics.Meter.Int64Counter("kinesisctl.push.truncated")
	duration, _ := metrics.Meter.Float64Histogram("kinesisctl.publish.duration", metric.WithUnit("s"))
	if progress == nil {
		progress = io.Discard
	}
	return &Publisher{
		client:    client,
		in:        in,
		cfg:       cfg,
		backoff:   backoff,
		progress:  progress,
		clock:     clock.New(),
		records:   records,
		calls:     calls,
		bytes:     bytes,
		truncated: truncated,
		duration:  duration,
	}
}

func (p *Publisher) Name() string {
	return "publisher"
}

// Run publishes until the queue is empty and stop is set, then flushes the
// pending batch. Puts use ctx so that the final flush still reaches the
// stream after stop.
func (p *Publisher) Run(ctx context.Context, stop *pipeline.StopSignal) error {
	p.lastPut = p.clock.Now()
	for {
		unit, ok := p.in.TryGet()
		if !ok {
			if stop.IsSet() {
				log.Debug("Publisher is leaving")
				return p.flush(ctx)
			}
			if err := p.flushIfIdle(ctx); err != nil {
				return err
			}
			unit, ok = p.in.Get(stop.Context(), p.cfg.PushDelay)
			if !ok {
				continue
			}
		}
		if err := p.handle(ctx, unit); err != nil {
			return err
		}
	}
}

func (p *Publisher) handle(ctx context.Context, unit UnitOfWork) error {
	p.records.Add(ctx, 1)

	if p.cfg.DisableBatch {
		data := strings.TrimRight(string(p.truncate(ctx, unit.Payload)), "\n")
		if len(data) == 0 {
			return nil
		}
		return p.publish(ctx, []byte(data))
	}

	if len(p.batch)+len(unit.Payload) > MaxRecordSize {
		if err := p.flush(ctx); err != nil {
			return err
		}
		p.batch = append([]byte(nil), p.truncate(ctx, unit.Payload)...)
		p.lastPut = p.clock.Now()
		return nil
	}

	p.batch = append(p.batch, unit.Payload...)
	if p.clock.Now().Sub(p.lastPut) > MaxTimeBetweenPuts {
		return p.flush(ctx)
	}
	return nil
}

// flushIfIdle publishes a pending batch that has waited longer than
// MaxTimeBetweenPuts while no new input arrived.
func (p *Publisher) flushIfIdle(ctx context.Context) error {
	if len(p.batch) == 0 || p.clock.Now().Sub(p.lastPut) <= MaxTimeBetweenPuts {
		return nil
	}
	return p.flush(ctx)
}

func (p *Publisher) flush(ctx context.Context) error {
	if len(p.batch) == 0 {
		return nil
	}
	batch := p.batch
	p.batch = nil
	if err := p.publish(ctx, batch); err != nil {
		return err
	}
	p.lastPut = p.clock.Now()
	return nil
}

func (p *Publisher) truncate(ctx context.Context, data []byte) []byte {
	if len(data) <= MaxRecordSize {
		return data
	}
	log.WithField("length", len(data)).Debug("Needed to truncate record")
	p.truncated.Add(ctx, 1)
	out := make([]byte, 0, MaxRecordSize)
	out = append(out, data[:MaxRecordSize-len(truncatedMarker)]...)
	return append(out, truncatedMarker...)
}

func (p *Publisher) partitionKey(data []byte) string {
	if p.cfg.PartitionKey != "" {
		return p.cfg.PartitionKey
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func (p *Publisher) publish(ctx context.Context, data []byte) error {
	in := stream.PutInput{
		StreamName:   p.cfg.StreamName,
		PartitionKey: p.partitionKey(data),
		Data:         data,
	}
	if p.cfg.Ordered {
		in.SequenceHint = p.lastSequence
	}

	start := p.clock.Now()
	out, err := retry.Call(ctx, p.backoff, "PutRecord", func() (stream.PutOutput, error) {
		return p.putRecord(ctx, in)
	})
	if err != nil {
		p.duration.Record(ctx, p.clock.Since(start).Seconds(), metric.WithAttributes(attribute.String("status", "error")))
		return fmt.Errorf("publish to %s: %w", p.cfg.StreamName, err)
	}
	p.duration.Record(ctx, p.clock.Since(start).Seconds(), metric.WithAttributes(attribute.String("status", "success")))
	p.calls.Add(ctx, 1)
	p.bytes.Add(ctx, int64(len(data)))

	log.WithFields(log.Fields{
		"shard_id":        out.ShardID,
		"sequence_number": out.SequenceNumber,
		"bytes":           len(data),
	}).Debug("Published record")

	if p.cfg.Ordered {
		p.lastSequence = out.SequenceNumber
	}
	_, err = io.WriteString(p.progress, ".")
	return err
}

// putRecord retries puts rejected for a stale sequence token or a concurrent
// modification.
func (p *Publisher) putRecord(ctx context.Context, in stream.PutInput) (stream.PutOutput, error) {
	conflicts := 0
	for attempt := 0; ; attempt++ {
		out, err := p.client.PutRecord(ctx, in)
		if err == nil {
			return out, nil
		}
		if attempt >= maxSequenceRecoveries {
			return stream.PutOutput{}, err
		}

		msg := err.Error()
		if strings.Contains(msg, conflictingOperation) {
			delay := p.backoff.Delay(conflicts)
			conflicts++
			log.WithError(err).WithField("delay", delay).Info("Conflicting operation in progress, retrying")
			if err := p.wait(ctx, delay); err != nil {
				return stream.PutOutput{}, err
			}
			continue
		}
		if m := sequenceTokenPattern.FindStringSubmatch(msg); m != nil {
			in.SequenceHint = m[1]
			log.WithField("sequence_token", in.SequenceHint).Info("Found sequence token, retrying")
			continue
		}
		return stream.PutOutput{}, err
	}
}

func (p *Publisher) wait(ctx context.Context, d time.Duration) error {
	timer := p.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
