package cli

import (
	"fmt"
	"time"

	"github.com/markberger/kinesisctl/internal/pull"
	"github.com/markberger/kinesisctl/internal/stream"
	"github.com/spf13/cobra"
)

func (a *app) pullCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Print the records of one shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			streamName, _ := flags.GetString("stream-name")
			shardID, _ := flags.GetString("shard-id")
			iteratorType, _ := flags.GetString("iterator-type")
			durationSec, _ := flags.GetInt("duration")
			renderDelayMs, _ := flags.GetInt("render-delay")

			from, err := stream.ParseStartPosition(iteratorType)
			if err != nil {
				return err
			}

			delayMs := a.cfg.Pull.DelayMs
			if flags.Changed("pull-delay") {
				delayMs, _ = flags.GetInt("pull-delay")
			}
			if delayMs <= 0 {
				return fmt.Errorf("--pull-delay must be positive, got %d", delayMs)
			}

			duration := time.Duration(-1)
			if durationSec >= 0 {
				duration = time.Duration(durationSec) * time.Second
			}

			b, err := a.backoff()
			if err != nil {
				return err
			}

			ctx, stop, release := withInterrupts(cmd.Context())
			defer release()

			client, closeClient, err := a.clients.Stream(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer closeClient()

			return pull.Run(ctx, client, stop, pull.Options{
				StreamName:  streamName,
				ShardID:     shardID,
				From:        from,
				PullDelay:   millis(delayMs),
				RenderDelay: millis(renderDelayMs),
				Duration:    duration,
				QueueSize:   a.cfg.Pull.QueueSize,
				Output:      cmd.OutOrStdout(),
				Retry:       b,
			})
		},
	}

	flags := cmd.Flags()
	flags.String("stream-name", "", "Stream to pull from")
	flags.String("shard-id", "", "Shard to pull from")
	flags.Int("pull-delay", int(pull.DefaultPullDelay.Milliseconds()), "Delay in ms between two fetches")
	flags.Int("render-delay", 0, "Delay in ms the renderer waits for records (default: --pull-delay)")
	flags.Int("duration", -1, "Stop after this many seconds, -1 to pull forever")
	flags.String("iterator-type", string(stream.Latest), "Where to start: LATEST|TRIM_HORIZON")
	_ = cmd.MarkFlagRequired("stream-name")
	_ = cmd.MarkFlagRequired("shard-id")
	return cmd
}
