// Package cli wires the kinesisctl commands onto the push, pull and metrics
// pipelines.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/markberger/kinesisctl/internal/config"
	"github.com/markberger/kinesisctl/internal/metrics"
	"github.com/markberger/kinesisctl/internal/report"
	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	clients Clients
	clock   clock.Clock
	cfg     config.Config

	shutdownMetrics func(context.Context) error
}

// Execute runs kinesisctl with the given arguments and streams.
func Execute(ctx context.Context, clients Clients, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{clients: clients, clock: clock.New()}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.shutdownMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := a.shutdownMetrics(shutdownCtx); serr != nil {
			log.WithError(serr).Warn("Failed to shut down metrics")
		}
	}
	return err
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kinesisctl",
		Short:         "Push, pull and inspect Kinesis streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("region", "", "AWS region")
	flags.String("endpoint-url", "", "Override the service endpoint, e.g. for LocalStack")
	flags.String("backend", config.BackendKinesis, "Stream backend: kinesis|kafka")
	flags.String("log-level", "info", "Log level")
	flags.String("output", string(report.JSON), "Report format: json|table")

	root.AddCommand(
		a.pushCommand(),
		a.pullCommand(),
		a.shardMetricsCommand(),
		a.streamMetricsCommand(),
	)
	return root
}

// setup loads the environment config, applies flag overrides and starts
// logging and metrics.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("region") {
		cfg.AWS.Region, _ = flags.GetString("region")
	}
	if flags.Changed("endpoint-url") {
		cfg.AWS.Endpoint, _ = flags.GetString("endpoint-url")
	}
	if flags.Changed("backend") {
		cfg.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("output") {
		cfg.Output, _ = flags.GetString("output")
	}
	a.cfg = cfg

	runID, err := setupLogging(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"command": cmd.Name(),
		"backend": cfg.Backend,
		"run_id":  runID,
	}).Debug("Starting")

	shutdown, err := metrics.Init(cmd.Context(), cfg.Metrics)
	if err != nil {
		return err
	}
	a.shutdownMetrics = shutdown
	return nil
}

func (a *app) backoff() (*retry.Backoff, error) {
	return retry.New(retry.Config{
		MaxRetries:     a.cfg.Retry.MaxRetries,
		InitialBackoff: a.cfg.Retry.InitialBackoff(),
		MaxBackoff:     a.cfg.Retry.MaxBackoff(),
		Filter:         stream.IsTransient,
	})
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
