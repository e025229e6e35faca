//go:build integration

package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/docker/go-connections/nat"
	"github.com/markberger/kinesisctl/internal/aws_client"
	log "github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/localstack"
)

const (
	localstackImage = "localstack/localstack:3.8"
	edgePort        = nat.Port("4566/tcp")
	region          = "us-east-1"
)

// Establish a singleton LocalStack container shared by every test
var lsContainer *localstack.LocalStackContainer
var once sync.Once

func GetTestContainer() *localstack.LocalStackContainer {
	once.Do(func() {
		ctx := context.Background()
		container, err := localstack.Run(ctx, localstackImage,
			testcontainers.WithEnv(map[string]string{"SERVICES": "kinesis,cloudwatch"}),
		)
		if err != nil {
			log.Fatalf("failed to start localstack container: %v", err)
		}
		lsContainer = container
	})
	return lsContainer
}

func GetEndpoint() (string, error) {
	container := GetTestContainer()
	ctx := context.Background()
	if container == nil {
		return "", fmt.Errorf("test container is nil after initialization attempt")
	}
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, edgePort)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

// AWSConfig points the AWS clients at the container.
func AWSConfig() (aws_client.AWSClientConfig, error) {
	endpoint, err := GetEndpoint()
	if err != nil {
		return aws_client.AWSClientConfig{}, err
	}
	return aws_client.AWSClientConfig{
		Region:          region,
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxAttempts:     3,
	}, nil
}

func Terminate() {
	if lsContainer == nil {
		return
	}
	if err := lsContainer.Terminate(context.Background()); err != nil {
		log.WithError(err).Warn("failed to terminate localstack container")
	}
}
