package cli

import (
	"context"
	"fmt"

	"github.com/markberger/kinesisctl/internal/aws_client"
	"github.com/markberger/kinesisctl/internal/config"
	"github.com/markberger/kinesisctl/internal/statistics"
	"github.com/markberger/kinesisctl/internal/stream"
)

// Clients builds the service clients a command talks to. Tests substitute
// their own implementation.
type Clients interface {
	Stream(ctx context.Context, cfg config.Config) (stream.StreamClient, func() error, error)
	Metrics(ctx context.Context, cfg config.Config) (statistics.MetricsClient, error)
}

// BackendClients creates clients for the backend selected in the config.
type BackendClients struct{}

func (BackendClients) Stream(ctx context.Context, cfg config.Config) (stream.StreamClient, func() error, error) {
	switch cfg.Backend {
	case config.BackendKinesis:
		api, err := aws_client.CreateKinesisClient(ctx, cfg.AWS)
		if err != nil {
			return nil, nil, err
		}
		return stream.NewKinesisClient(api), func() error { return nil }, nil
	case config.BackendKafka:
		client, err := stream.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (BackendClients) Metrics(ctx context.Context, cfg config.Config) (statistics.MetricsClient, error) {
	if cfg.Backend != config.BackendKinesis {
		return nil, fmt.Errorf("metrics are only available for the %s backend", config.BackendKinesis)
	}
	api, err := aws_client.CreateCloudWatchClient(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	return statistics.NewCloudWatchClient(api), nil
}
