package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/markberger/kinesisctl/internal/statistics"
	"github.com/markberger/kinesisctl/internal/streammetrics"
	"github.com/markberger/kinesisctl/internal/timeutil"
)

type Format string

const (
	JSON  Format = "json"
	Table Format = "table"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case JSON:
		return JSON, nil
	case Table:
		return Table, nil
	}
	return "", fmt.Errorf("unsupported output format %q, expected %s or %s", s, JSON, Table)
}

// Report is a shard or stream report.
type Report interface {
	table() table.Writer
}

// Write renders r to w in the given format.
func Write(w io.Writer, format Format, r Report) error {
	switch format {
	case Table:
		_, err := fmt.Fprintln(w, r.table().Render())
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
}

type ShardEntry struct {
	ShardID string  `json:"shard_id"`
	Average float64 `json:"average"`
	// PerSecond is only set for Sum, where it is the average per period
	// spread over the period.
	PerSecond  *float64 `json:"per_second,omitempty"`
	Min        float64  `json:"min"`
	Max        float64  `json:"max"`
	Datapoints int      `json:"datapoints"`
	HasData    bool     `json:"has_data"`
}

type ShardReport struct {
	Description  string       `json:"description"`
	StreamName   string       `json:"stream_name"`
	StartTime    string       `json:"start_time"`
	EndTime      string       `json:"end_time"`
	MetricName   string       `json:"metric_name"`
	Statistic    string       `json:"statistic"`
	ShardMetrics []ShardEntry `json:"shard_metrics"`
}

func NewShardReport(q streammetrics.ShardQuery, samples []streammetrics.MetricSample) ShardReport {
	r := ShardReport{
		Description: fmt.Sprintf("Shards of %s ranked by the %s of %s over %s periods",
			q.StreamName, q.Statistic, q.MetricName, streammetrics.Period),
		StreamName:   q.StreamName,
		StartTime:    timeutil.Format(q.Start),
		EndTime:      timeutil.Format(q.End),
		MetricName:   q.MetricName,
		Statistic:    string(q.Statistic),
		ShardMetrics: make([]ShardEntry, 0, len(samples)),
	}
	for _, s := range samples {
		entry := ShardEntry{
			ShardID:    s.EntityID,
			Average:    round2(s.Average()),
			Min:        s.Min(),
			Max:        s.Max(),
			Datapoints: len(s.Values),
			HasData:    s.HasData(),
		}
		if q.Statistic == statistics.Sum {
			perSecond := round2(s.Average() / streammetrics.Period.Seconds())
			entry.PerSecond = &perSecond
		}
		r.ShardMetrics = append(r.ShardMetrics, entry)
	}
	return r
}

func (r ShardReport) table() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s %s (%s) %s - %s", r.StreamName, r.MetricName, r.Statistic, r.StartTime, r.EndTime))
	t.AppendHeader(table.Row{"#", "Shard", "Average", "Per second", "Min", "Max", "Datapoints"})
	for i, e := range r.ShardMetrics {
		perSecond := "-"
		if e.PerSecond != nil {
			perSecond = fmt.Sprintf("%.2f", *e.PerSecond)
		}
		if !e.HasData {
			t.AppendRow(table.Row{i + 1, e.ShardID, "no data", "-", "-", "-", 0})
			continue
		}
		t.AppendRow(table.Row{i + 1, e.ShardID, e.Average, perSecond, e.Min, e.Max, e.Datapoints})
	}
	return t
}

type DatapointEntry struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

type StreamEntry struct {
	MetricName string           `json:"metric_name"`
	Average    float64          `json:"average"`
	Min        float64          `json:"min"`
	Max        float64          `json:"max"`
	HasData    bool             `json:"has_data"`
	Datapoints []DatapointEntry `json:"datapoints"`
}

type StreamReport struct {
	Description string        `json:"description"`
	StreamName  string        `json:"stream_name"`
	StartTime   string        `json:"start_time"`
	EndTime     string        `json:"end_time"`
	Statistic   string        `json:"statistic"`
	Metrics     []StreamEntry `json:"metrics"`
}

func NewStreamReport(q streammetrics.StreamQuery, samples []streammetrics.MetricSample) StreamReport {
	r := StreamReport{
		Description: fmt.Sprintf("Stream metrics of %s, %s over %s periods", q.StreamName, q.Statistic, streammetrics.Period),
		StreamName:  q.StreamName,
		StartTime:   timeutil.Format(q.Start),
		EndTime:     timeutil.Format(q.End),
		Statistic:   string(q.Statistic),
		Metrics:     make([]StreamEntry, 0, len(samples)),
	}
	for _, s := range samples {
		entry := StreamEntry{
			MetricName: s.EntityID,
			Average:    round2(s.Average()),
			Min:        s.Min(),
			Max:        s.Max(),
			HasData:    s.HasData(),
			Datapoints: make([]DatapointEntry, len(s.Values)),
		}
		for i, v := range s.Values {
			entry.Datapoints[i] = DatapointEntry{Timestamp: timeutil.Format(s.Timestamps[i]), Value: v}
		}
		r.Metrics = append(r.Metrics, entry)
	}
	return r
}

func (r StreamReport) table() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s (%s) %s - %s", r.StreamName, r.Statistic, r.StartTime, r.EndTime))
	t.AppendHeader(table.Row{"Metric", "Average", "Min", "Max", "Datapoints"})
	for _, e := range r.Metrics {
		if !e.HasData {
			t.AppendRow(table.Row{e.MetricName, "no data", "-", "-", 0})
			continue
		}
		t.AppendRow(table.Row{e.MetricName, e.Average, e.Min, e.Max, len(e.Datapoints)})
	}
	return t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
