package cli

import (
	"github.com/markberger/kinesisctl/internal/report"
	"github.com/markberger/kinesisctl/internal/streammetrics"
	"github.com/markberger/kinesisctl/internal/timeutil"
	"github.com/spf13/cobra"
)

func (a *app) shardMetricsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-shard-metrics",
		Short: "Rank the shards of a stream by one metric",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			streamName, _ := flags.GetString("stream-name")
			metricName, _ := flags.GetString("metric-name")
			statName, _ := flags.GetString("statistic")
			startTime, _ := flags.GetString("start-time")
			endTime, _ := flags.GetString("end-time")
			includeEmpty, _ := flags.GetBool("include-empty")

			format, err := report.ParseFormat(a.cfg.Output)
			if err != nil {
				return err
			}
			stat, err := streammetrics.ParseStatistic(statName)
			if err != nil {
				return err
			}
			start, end, err := timeutil.Window(startTime, endTime, a.clock.Now(), streammetrics.DefaultWindow)
			if err != nil {
				return err
			}
			q := streammetrics.ShardQuery{
				StreamName:   streamName,
				MetricName:   metricName,
				Statistic:    stat,
				Start:        start,
				End:          end,
				IncludeEmpty: includeEmpty,
			}
			if err := q.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			streams, closeStreams, err := a.clients.Stream(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer closeStreams()
			metricsClient, err := a.clients.Metrics(ctx, a.cfg)
			if err != nil {
				return err
			}

			b, err := a.backoff()
			if err != nil {
				return err
			}
			samples, err := streammetrics.NewShardMetricsGetter(streams, metricsClient, b).Get(ctx, q)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), format, report.NewShardReport(q, samples))
		},
	}

	flags := cmd.Flags()
	flags.String("stream-name", "", "Stream to inspect")
	flags.String("metric-name", streammetrics.DefaultShardMetric, "Shard level metric to rank by")
	flags.String("statistic", string(streammetrics.DefaultShardStatistic), "Statistic: Average|Sum|SampleCount|Minimum|Maximum")
	flags.String("start-time", "", "Start of the window (default: 10 minutes ago)")
	flags.String("end-time", "", "End of the window (default: now)")
	flags.Bool("include-empty", false, "Keep shards without datapoints")
	_ = cmd.MarkFlagRequired("stream-name")
	return cmd
}

func (a *app) streamMetricsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-stream-metrics",
		Short: "Summarize stream level metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			streamName, _ := flags.GetString("stream-name")
			metricNames, _ := flags.GetStringSlice("metric-names")
			statName, _ := flags.GetString("statistic")
			startTime, _ := flags.GetString("start-time")
			endTime, _ := flags.GetString("end-time")
			includeEmpty, _ := flags.GetBool("include-empty")

			format, err := report.ParseFormat(a.cfg.Output)
			if err != nil {
				return err
			}
			stat, err := streammetrics.ParseStatistic(statName)
			if err != nil {
				return err
			}
			start, end, err := timeutil.Window(startTime, endTime, a.clock.Now(), streammetrics.DefaultWindow)
			if err != nil {
				return err
			}
			q := streammetrics.StreamQuery{
				StreamName:   streamName,
				MetricNames:  metricNames,
				Statistic:    stat,
				Start:        start,
				End:          end,
				IncludeEmpty: includeEmpty,
			}
			if err := q.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			metricsClient, err := a.clients.Metrics(ctx, a.cfg)
			if err != nil {
				return err
			}
			b, err := a.backoff()
			if err != nil {
				return err
			}
			samples, err := streammetrics.NewStreamMetricsGetter(metricsClient, b).Get(ctx, q)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), format, report.NewStreamReport(q, samples))
		},
	}

	flags := cmd.Flags()
	flags.String("stream-name", "", "Stream to inspect")
	flags.StringSlice("metric-names", streammetrics.StreamMetricNames, "Stream level metrics to fetch")
	flags.String("statistic", string(streammetrics.DefaultStreamStatistic), "Statistic: Average|Sum|SampleCount|Minimum|Maximum")
	flags.String("start-time", "", "Start of the window (default: 10 minutes ago)")
	flags.String("end-time", "", "End of the window (default: now)")
	flags.Bool("include-empty", false, "Keep metrics without datapoints")
	_ = cmd.MarkFlagRequired("stream-name")
	return cmd
}
