package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/markberger/kinesisctl/internal/push"
	"github.com/markberger/kinesisctl/internal/stream"
	"github.com/spf13/cobra"
)

func (a *app) pushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Push lines from stdin or a file to a stream",
		Long: "Reads newline-delimited records and publishes them to a stream. " +
			"Lines are batched into records of up to 50 KiB unless --disable-batch is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			streamName, _ := flags.GetString("stream-name")
			partitionKey, _ := flags.GetString("partition-key")
			disableBatch, _ := flags.GetBool("disable-batch")
			dryRun, _ := flags.GetBool("dry-run")
			ordered, _ := flags.GetBool("ordered")
			file, _ := flags.GetString("file")

			delayMs := a.cfg.Push.DelayMs
			if flags.Changed("push-delay") {
				delayMs, _ = flags.GetInt("push-delay")
			}
			if delayMs <= 0 {
				return fmt.Errorf("--push-delay must be positive, got %d", delayMs)
			}

			var input io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}

			b, err := a.backoff()
			if err != nil {
				return err
			}

			ctx, stop, release := withInterrupts(cmd.Context())
			defer release()

			var client stream.StreamClient
			if !dryRun {
				c, closeClient, err := a.clients.Stream(ctx, a.cfg)
				if err != nil {
					return err
				}
				defer closeClient()
				client = c
			}

			return push.Run(ctx, client, stop, push.Options{
				Publisher: push.PublisherConfig{
					StreamName:   streamName,
					PartitionKey: partitionKey,
					DisableBatch: disableBatch,
					Ordered:      ordered,
					PushDelay:    millis(delayMs),
				},
				DryRun:    dryRun,
				QueueSize: a.cfg.Push.QueueSize,
				Input:     input,
				Output:    cmd.OutOrStdout(),
				Retry:     b,
			})
		},
	}

	flags := cmd.Flags()
	flags.String("stream-name", "", "Stream to push to")
	flags.String("partition-key", "", "Partition key for every record (default: md5 of the record)")
	flags.Int("push-delay", int(push.DefaultPushDelay.Milliseconds()), "Delay in ms between two puts")
	flags.Bool("disable-batch", false, "Publish one record per line")
	flags.Bool("dry-run", false, "Print the records instead of pushing them")
	flags.String("file", "", "Read from this file instead of stdin")
	flags.Bool("ordered", false, "Chain each put to the previous sequence number")
	_ = cmd.MarkFlagRequired("stream-name")
	return cmd
}
