package streammetrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/markberger/kinesisctl/internal/statistics"
)

const (
	Namespace = "AWS/Kinesis"
	Period    = 60 * time.Second

	DefaultShardMetric     = "IncomingRecords"
	DefaultShardStatistic  = statistics.Sum
	DefaultStreamStatistic = statistics.Average
	DefaultWindow          = 10 * time.Minute
)

// ShardMetricNames are the metrics published per shard by enhanced
// monitoring.
var ShardMetricNames = []string{
	"IncomingBytes",
	"IncomingRecords",
	"IteratorAgeMilliseconds",
	"OutgoingBytes",
	"OutgoingRecords",
	"ReadProvisionedThroughputExceeded",
	"WriteProvisionedThroughputExceeded",
}

var StreamMetricNames = []string{
	"IncomingBytes",
	"IncomingRecords",
	"PutRecord.Bytes",
	"PutRecord.Latency",
	"PutRecord.Success",
	"PutRecords.Bytes",
	"PutRecords.Latency",
	"PutRecords.Records",
	"PutRecords.Success",
	"ReadProvisionedThroughputExceeded",
	"WriteProvisionedThroughputExceeded",
	"GetRecords.Bytes",
	"GetRecords.IteratorAge",
	"GetRecords.IteratorAgeMilliseconds",
	"GetRecords.Latency",
	"GetRecords.Records",
	"GetRecords.Success",
}

var AllowedStatistics = []statistics.Statistic{
	statistics.Average,
	statistics.Sum,
	statistics.SampleCount,
	statistics.Minimum,
	statistics.Maximum,
}

// ValidationError is returned for a query that cannot be sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseStatistic matches s against the allowed statistics, ignoring case.
func ParseStatistic(s string) (statistics.Statistic, error) {
	for _, stat := range AllowedStatistics {
		if strings.EqualFold(string(stat), s) {
			return stat, nil
		}
	}
	return "", &ValidationError{
		Field:   "statistic",
		Message: fmt.Sprintf("%q is not one of %v", s, AllowedStatistics),
	}
}

type ShardQuery struct {
	StreamName string
	MetricName string
	Statistic  statistics.Statistic
	Start      time.Time
	End        time.Time
	// IncludeEmpty keeps shards that returned no datapoints.
	IncludeEmpty bool
}

func (q ShardQuery) Validate() error {
	if q.StreamName == "" {
		return &ValidationError{Field: "stream name", Message: "must not be empty"}
	}
	if !contains(ShardMetricNames, q.MetricName) {
		return &ValidationError{
			Field:   "metric name",
			Message: fmt.Sprintf("%q is not one of %v", q.MetricName, ShardMetricNames),
		}
	}
	return validateCommon(q.Statistic, q.Start, q.End)
}

type StreamQuery struct {
	StreamName   string
	MetricNames  []string
	Statistic    statistics.Statistic
	Start        time.Time
	End          time.Time
	IncludeEmpty bool
}

func (q StreamQuery) Validate() error {
	if q.StreamName == "" {
		return &ValidationError{Field: "stream name", Message: "must not be empty"}
	}
	if len(q.MetricNames) == 0 {
		return &ValidationError{Field: "metric names", Message: "at least one metric name is required"}
	}
	for _, name := range q.MetricNames {
		if !contains(StreamMetricNames, name) {
			return &ValidationError{
				Field:   "metric name",
				Message: fmt.Sprintf("%q is not one of %v", name, StreamMetricNames),
			}
		}
	}
	return validateCommon(q.Statistic, q.Start, q.End)
}

func validateCommon(stat statistics.Statistic, start, end time.Time) error {
	if _, err := ParseStatistic(string(stat)); err != nil {
		return err
	}
	if start.After(end) {
		return &ValidationError{
			Field:   "time range",
			Message: fmt.Sprintf("start time %s is after end time %s", start.Format(time.RFC3339), end.Format(time.RFC3339)),
		}
	}
	return nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
