package statistics

import (
	"context"
	"time"
)

// Statistic is an aggregation applied by the metrics service to each period.
type Statistic string

const (
	Average     Statistic = "Average"
	Sum         Statistic = "Sum"
	SampleCount Statistic = "SampleCount"
	Minimum     Statistic = "Minimum"
	Maximum     Statistic = "Maximum"
)

type Dimension struct {
	Name  string
	Value string
}

type StatisticsQuery struct {
	Namespace  string
	MetricName string
	Start      time.Time
	End        time.Time
	Period     time.Duration
	Statistic  Statistic
	Dimensions []Dimension
}

type Datapoint struct {
	Timestamp time.Time
	Value     float64
}

// MetricsClient fetches one statistic series. Datapoints are returned in
// whatever order the service produces them.
type MetricsClient interface {
	GetStatistics(ctx context.Context, q StatisticsQuery) ([]Datapoint, error)
}
