package streammetrics

import (
	"sort"
	"time"

	"github.com/markberger/kinesisctl/internal/statistics"
)

// MetricSample is the series of one statistic for one shard or one metric
// name, ordered by timestamp.
type MetricSample struct {
	EntityID   string
	Statistic  statistics.Statistic
	Timestamps []time.Time
	Values     []float64
}

func NewMetricSample(entityID string, stat statistics.Statistic, points []statistics.Datapoint) MetricSample {
	sorted := append([]statistics.Datapoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	s := MetricSample{
		EntityID:   entityID,
		Statistic:  stat,
		Timestamps: make([]time.Time, len(sorted)),
		Values:     make([]float64, len(sorted)),
	}
	for i, p := range sorted {
		s.Timestamps[i] = p.Timestamp
		s.Values[i] = p.Value
	}
	return s
}

func (s MetricSample) HasData() bool {
	return len(s.Values) > 0
}

// Average is 0 for an empty sample.
func (s MetricSample) Average() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.Values {
		sum += v
	}
	return sum / float64(len(s.Values))
}

func (s MetricSample) Min() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	m := s.Values[0]
	for _, v := range s.Values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func (s MetricSample) Max() float64 {
	if len(s.Values) == 0 {
		return 0
	}
	m := s.Values[0]
	for _, v := range s.Values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// SortByAverage orders samples by average, highest first. Samples with equal
// averages keep their relative order.
func SortByAverage(samples []MetricSample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Average() > samples[j].Average()
	})
}
