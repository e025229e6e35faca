package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/markberger/kinesisctl/internal/aws_client"
)

const (
	BackendKinesis = "kinesis"
	BackendKafka   = "kafka"
)

type Config struct {
	Backend   string `env:"KINESISCTL_BACKEND"    envDefault:"kinesis"`
	Output    string `env:"KINESISCTL_OUTPUT"     envDefault:"json"`
	LogLevel  string `env:"KINESISCTL_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"KINESISCTL_LOG_FORMAT" envDefault:"text"`

	Push PushConfig `envPrefix:""`
	Pull PullConfig `envPrefix:""`

	Retry   RetryConfig                `envPrefix:""`
	Metrics MetricsConfig              `envPrefix:""`
	Kafka   KafkaConfig                `envPrefix:""`
	AWS     aws_client.AWSClientConfig `envPrefix:""`
}

type PushConfig struct {
	DelayMs   int `env:"KINESISCTL_PUSH_DELAY_MS"   envDefault:"1000"`
	QueueSize int `env:"KINESISCTL_PUSH_QUEUE_SIZE" envDefault:"10000"`
}

type PullConfig struct {
	DelayMs   int `env:"KINESISCTL_PULL_DELAY_MS"   envDefault:"5000"`
	QueueSize int `env:"KINESISCTL_PULL_QUEUE_SIZE" envDefault:"1000"`
}

type RetryConfig struct {
	MaxRetries       int `env:"KINESISCTL_RETRY_MAX"            envDefault:"5"`
	InitialBackoffMs int `env:"KINESISCTL_RETRY_INITIAL_MS"     envDefault:"1000"`
	MaxBackoffMs     int `env:"KINESISCTL_RETRY_MAX_BACKOFF_MS" envDefault:"30000"`
}

func (c RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

func (c RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

type MetricsConfig struct {
	Enabled bool   `env:"KINESISCTL_METRICS_ENABLED" envDefault:"false"`
	Addr    string `env:"KINESISCTL_METRICS_ADDR"    envDefault:":9464"`
	Path    string `env:"KINESISCTL_METRICS_PATH"    envDefault:"/metrics"`
}

type KafkaConfig struct {
	Brokers  []string `env:"KINESISCTL_KAFKA_BROKERS"   envDefault:"localhost:9092" envSeparator:","`
	ClientID string   `env:"KINESISCTL_KAFKA_CLIENT_ID" envDefault:"kinesisctl"`
}

func Load() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
