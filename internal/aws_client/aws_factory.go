package aws_client

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	log "github.com/sirupsen/logrus"
)

// AWSClientConfig holds the settings shared by the Kinesis and CloudWatch
// clients. Empty values fall back to the SDK's default resolution chain.
type AWSClientConfig struct {
	Region          string `env:"KINESISCTL_AWS_REGION"`
	Endpoint        string `env:"KINESISCTL_AWS_ENDPOINT"`
	Profile         string `env:"KINESISCTL_AWS_PROFILE"`
	AccessKeyID     string `env:"KINESISCTL_AWS_ACCESS_KEY"`
	SecretAccessKey string `env:"KINESISCTL_AWS_SECRET_KEY"`
	SessionToken    string `env:"KINESISCTL_AWS_SESSION_TOKEN"`
	MaxAttempts     int    `env:"KINESISCTL_AWS_MAX_ATTEMPTS" envDefault:"3"`
}

// LoadAWSConfig resolves an aws.Config from the given settings
func LoadAWSConfig(ctx context.Context, cfg AWSClientConfig) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load aws config: %w", err)
	}
	return awsCfg, nil
}

// CreateKinesisClient creates a raw *kinesis.Client from the given configuration
func CreateKinesisClient(ctx context.Context, cfg AWSClientConfig) (*kinesis.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"region": awsCfg.Region, "endpoint": cfg.Endpoint}).Debug("Creating Kinesis client")
	return kinesis.NewFromConfig(awsCfg, func(o *kinesis.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// CreateCloudWatchClient creates a raw *cloudwatch.Client from the given configuration
func CreateCloudWatchClient(ctx context.Context, cfg AWSClientConfig) (*cloudwatch.Client, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"region": awsCfg.Region, "endpoint": cfg.Endpoint}).Debug("Creating CloudWatch client")
	return cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}
