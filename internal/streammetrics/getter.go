package streammetrics

import (
	"context"
	"fmt"

	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/statistics"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
)

// ShardMetricsGetter ranks the shards of a stream by one metric.
type ShardMetricsGetter struct {
	streams stream.StreamClient
	metrics statistics.MetricsClient
	backoff *retry.Backoff
}

func NewShardMetricsGetter(streams stream.StreamClient, metrics statistics.MetricsClient, backoff *retry.Backoff) *ShardMetricsGetter {
	return &ShardMetricsGetter{streams: streams, metrics: metrics, backoff: backoff}
}

// Get returns one sample per shard, highest average first.
func (g *ShardMetricsGetter) Get(ctx context.Context, q ShardQuery) ([]MetricSample, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	shardIDs, err := retry.Call(ctx, g.backoff, "ListShards", func() ([]string, error) {
		return stream.ListAllShards(ctx, g.streams, q.StreamName)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"stream": q.StreamName,
		"shards": len(shardIDs),
	}).Debug("Listed shards")

	samples := make([]MetricSample, 0, len(shardIDs))
	for _, shardID := range shardIDs {
		points, err := getStatistics(ctx, g.metrics, g.backoff, statistics.StatisticsQuery{
			Namespace:  Namespace,
			MetricName: q.MetricName,
			Start:      q.Start,
			End:        q.End,
			Period:     Period,
			Statistic:  q.Statistic,
			Dimensions: []statistics.Dimension{
				{Name: "StreamName", Value: q.StreamName},
				{Name: "ShardId", Value: shardID},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("shard %s: %w", shardID, err)
		}

		sample := NewMetricSample(shardID, q.Statistic, points)
		if !sample.HasData() && !q.IncludeEmpty {
			log.WithField("shard_id", shardID).Debug("No datapoints, shard omitted")
			continue
		}
		samples = append(samples, sample)
	}

	SortByAverage(samples)
	return samples, nil
}

// StreamMetricsGetter fetches stream level metrics, one sample per metric
// name in the order requested.
type StreamMetricsGetter struct {
	metrics statistics.MetricsClient
	backoff *retry.Backoff
}

func NewStreamMetricsGetter(metrics statistics.MetricsClient, backoff *retry.Backoff) *StreamMetricsGetter {
	return &StreamMetricsGetter{metrics: metrics, backoff: backoff}
}

func (g *StreamMetricsGetter) Get(ctx context.Context, q StreamQuery) ([]MetricSample, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	samples := make([]MetricSample, 0, len(q.MetricNames))
	for _, name := range q.MetricNames {
		points, err := getStatistics(ctx, g.metrics, g.backoff, statistics.StatisticsQuery{
			Namespace:  Namespace,
			MetricName: name,
			Start:      q.Start,
			End:        q.End,
			Period:     Period,
			Statistic:  q.Statistic,
			Dimensions: []statistics.Dimension{{Name: "StreamName", Value: q.StreamName}},
		})
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", name, err)
		}

		sample := NewMetricSample(name, q.Statistic, points)
		if !sample.HasData() && !q.IncludeEmpty {
			log.WithField("metric_name", name).Debug("No datapoints, metric omitted")
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func getStatistics(ctx context.Context, metrics statistics.MetricsClient, backoff *retry.Backoff, q statistics.StatisticsQuery) ([]statistics.Datapoint, error) {
	return retry.Call(ctx, backoff, "GetMetricStatistics", func() ([]statistics.Datapoint, error) {
		return metrics.GetStatistics(ctx, q)
	})
}
