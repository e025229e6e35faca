//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/markberger/kinesisctl/internal/cli"
	"github.com/markberger/kinesisctl/internal/stream"
)

func (s *IntegrationTestsSuite) execute(stdin string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	err := cli.Execute(context.Background(), cli.BackendClients{}, args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func (s *IntegrationTestsSuite) TestCLIPushThenPull() {
	s.SetEnv()
	streamName := s.NewStream(1)

	_, err := s.execute("abc\n", "push", "--stream-name", streamName, "--push-delay", "100")
	s.Require().NoError(err)

	shardIDs, err := stream.ListAllShards(context.Background(), s.StreamClient(), streamName)
	s.Require().NoError(err)

	out, err := s.execute("", "pull", "--stream-name", streamName, "--shard-id", shardIDs[0],
		"--iterator-type", "TRIM_HORIZON", "--pull-delay", "200", "--duration", "2")
	s.Require().NoError(err)
	// Batched records keep their line terminator and the renderer adds one more
	s.Equal("abc\n\n", out)
}

func (s *IntegrationTestsSuite) TestCLIShardMetrics() {
	s.SetEnv()
	streamName := s.NewStream(2)
	ctx := context.Background()

	shardIDs, err := stream.ListAllShards(ctx, s.StreamClient(), streamName)
	s.Require().NoError(err)

	now := time.Now().UTC().Truncate(time.Minute)
	values := map[string]float64{shardIDs[0]: 5, shardIDs[1]: 50}
	for shardID, v := range values {
		_, err := s.cloudwatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace: aws.String("AWS/Kinesis"),
			MetricData: []cwtypes.MetricDatum{{
				MetricName: aws.String("IncomingRecords"),
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("StreamName"), Value: aws.String(streamName)},
					{Name: aws.String("ShardId"), Value: aws.String(shardID)},
				},
				Timestamp: aws.Time(now.Add(-2 * time.Minute)),
				Value:     aws.Float64(v),
				Unit:      cwtypes.StandardUnitCount,
			}},
		})
		s.Require().NoError(err)
	}

	out, err := s.execute("", "get-shard-metrics", "--stream-name", streamName,
		"--start-time", "-10m", "--end-time", "now", "--include-empty")
	s.Require().NoError(err)

	var report struct {
		ShardMetrics []struct {
			ShardID string  `json:"shard_id"`
			Average float64 `json:"average"`
		} `json:"shard_metrics"`
	}
	s.Require().NoError(json.Unmarshal([]byte(out), &report))
	s.Require().Len(report.ShardMetrics, 2)
	s.Equal(shardIDs[1], report.ShardMetrics[0].ShardID)
	s.Equal(50.0, report.ShardMetrics[0].Average)
}
