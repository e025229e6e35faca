package main

import (
	"context"
	"fmt"
	"os"

	"github.com/markberger/kinesisctl/internal/cli"
	"github.com/markberger/kinesisctl/internal/config"
	"github.com/markberger/kinesisctl/internal/oracle"
	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	cfg := oracle.DefaultConfig()
	var createTopic bool
	var partitions int

	cmd := &cobra.Command{
		Use:          "oracle",
		Short:        "Push generated records through a stream and verify they come back intact",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if lvl, err := log.ParseLevel(appCfg.LogLevel); err == nil {
				log.SetLevel(lvl)
			}

			b, err := retry.New(retry.Config{
				MaxRetries:     appCfg.Retry.MaxRetries,
				InitialBackoff: appCfg.Retry.InitialBackoff(),
				MaxBackoff:     appCfg.Retry.MaxBackoff(),
				Filter:         stream.IsTransient,
			})
			if err != nil {
				return err
			}
			cfg.Retry = b

			ctx := cmd.Context()
			if createTopic && appCfg.Backend == config.BackendKafka {
				if err := oracle.CreateKafkaTopic(ctx, appCfg.Kafka.Brokers, cfg.StreamName, partitions); err != nil {
					return fmt.Errorf("failed to create topic: %w", err)
				}
			}

			client, closeClient, err := cli.BackendClients{}.Stream(ctx, appCfg)
			if err != nil {
				return err
			}
			defer closeClient()

			result, err := oracle.Run(ctx, client, cfg)
			if err != nil {
				return fmt.Errorf("oracle failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d records verified across %d shards from %d producers (run %s)\n",
				result.TotalRecords, result.NumShards, result.NumProducers, result.RunID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.StreamName, "stream-name", cfg.StreamName, "stream (or kafka topic) to write to")
	flags.IntVar(&cfg.NumProducers, "producers", cfg.NumProducers, "number of concurrent producers")
	flags.IntVar(&cfg.RecordsPerProducer, "records", cfg.RecordsPerProducer, "records per producer")
	flags.DurationVar(&cfg.PullDelay, "pull-delay", cfg.PullDelay, "delay between two fetches")
	flags.DurationVar(&cfg.ConsumeTimeout, "consume-timeout", cfg.ConsumeTimeout, "timeout for reading back all records")
	flags.StringVar(&cfg.DataDir, "data-dir", "", "directory for the oracle SQLite DB (temp dir if empty)")
	flags.BoolVar(&createTopic, "create-topic", false, "create the topic first (kafka backend)")
	flags.IntVar(&partitions, "partitions", 3, "partitions of the created topic")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		log.WithError(err).Error("oracle failed")
		os.Exit(1)
	}
}
