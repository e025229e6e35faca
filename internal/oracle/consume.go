package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/pull"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// collector gathers the lines rendered for every shard and stops all pulls
// once the records of the run have been seen.
type collector struct {
	mu       sync.Mutex
	runID    string
	expected int
	seen     int
	records  map[string][]ConsumedRecord
	stops    []*pipeline.StopSignal
}

func (c *collector) add(shardID string, line []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records[shardID] = append(c.records[shardID], ConsumedRecord{
		ShardID:  shardID,
		Position: len(c.records[shardID]),
		Value:    line,
	})

	var payload recordPayload
	if json.Unmarshal(line, &payload) != nil || payload.Run != c.runID {
		return
	}
	c.seen++
	if c.seen == c.expected {
		for _, s := range c.stops {
			s.Set()
		}
	}
}

func (c *collector) progress() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen, c.seen >= c.expected
}

// shardWriter splits the rendered output of one shard into lines.
type shardWriter struct {
	shardID string
	partial []byte
	c       *collector
}

func (w *shardWriter) Write(p []byte) (int, error) {
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.c.add(w.shardID, append([]byte(nil), w.partial[:i]...))
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

func consumeAll(ctx context.Context, client stream.StreamClient, cfg Config, runID string, expected int) (map[string][]ConsumedRecord, error) {
	shardIDs, err := stream.ListAllShards(ctx, client, cfg.StreamName)
	if err != nil {
		return nil, err
	}

	c := &collector{
		runID:    runID,
		expected: expected,
		records:  make(map[string][]ConsumedRecord),
		stops:    make([]*pipeline.StopSignal, len(shardIDs)),
	}
	for i, shardID := range shardIDs {
		c.stops[i] = pipeline.NewStopSignal()
		c.records[shardID] = nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, shardID := range shardIDs {
		shardID, stop := shardID, c.stops[i]
		g.Go(func() error {
			return pull.Run(ctx, client, stop, pull.Options{
				StreamName: cfg.StreamName,
				ShardID:    shardID,
				From:       stream.TrimHorizon,
				PullDelay:  cfg.PullDelay,
				Duration:   cfg.ConsumeTimeout,
				Output:     &shardWriter{shardID: shardID, c: c},
				Retry:      cfg.Retry,
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for shardID, records := range c.records {
		log.WithFields(log.Fields{"shard_id": shardID, "records": len(records)}).Info("Shard consumed")
	}
	if seen, ok := c.progress(); !ok {
		return nil, fmt.Errorf("timeout after %s, got %d/%d records", cfg.ConsumeTimeout, seen, expected)
	}
	return c.records, nil
}
