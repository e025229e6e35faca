//go:build integration

package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/pull"
	"github.com/markberger/kinesisctl/internal/push"
	"github.com/markberger/kinesisctl/internal/stream"
)

func (s *IntegrationTestsSuite) TestPushPullRoundTrip() {
	streamName := s.NewStream(2)
	client := s.StreamClient()
	ctx := context.Background()

	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, fmt.Sprintf("record-%02d", i))
	}

	err := push.Run(ctx, client, pipeline.NewStopSignal(), push.Options{
		Publisher: push.PublisherConfig{
			StreamName:   streamName,
			DisableBatch: true,
			PushDelay:    100 * time.Millisecond,
		},
		Input:  strings.NewReader(strings.Join(lines, "\n") + "\n"),
		Output: io.Discard,
		Retry:  s.Backoff(),
	})
	s.Require().NoError(err)

	shardIDs, err := stream.ListAllShards(ctx, client, streamName)
	s.Require().NoError(err)
	s.Require().Len(shardIDs, 2)

	var got []string
	for _, shardID := range shardIDs {
		var out bytes.Buffer
		err := pull.Run(ctx, client, pipeline.NewStopSignal(), pull.Options{
			StreamName: streamName,
			ShardID:    shardID,
			From:       stream.TrimHorizon,
			PullDelay:  200 * time.Millisecond,
			Duration:   2 * time.Second,
			Output:     &out,
			Retry:      s.Backoff(),
		})
		s.Require().NoError(err)
		got = append(got, strings.Fields(out.String())...)
	}

	sort.Strings(got)
	s.Equal(lines, got)
}

func (s *IntegrationTestsSuite) TestOrderedPushKeepsOrderWithinShard() {
	streamName := s.NewStream(1)
	client := s.StreamClient()
	ctx := context.Background()

	err := push.Run(ctx, client, pipeline.NewStopSignal(), push.Options{
		Publisher: push.PublisherConfig{
			StreamName:   streamName,
			PartitionKey: "same",
			DisableBatch: true,
			Ordered:      true,
			PushDelay:    100 * time.Millisecond,
		},
		Input:  strings.NewReader("a\nb\nc\nd\n"),
		Output: io.Discard,
		Retry:  s.Backoff(),
	})
	s.Require().NoError(err)

	shardIDs, err := stream.ListAllShards(ctx, client, streamName)
	s.Require().NoError(err)

	var out bytes.Buffer
	err = pull.Run(ctx, client, pipeline.NewStopSignal(), pull.Options{
		StreamName: streamName,
		ShardID:    shardIDs[0],
		From:       stream.TrimHorizon,
		PullDelay:  200 * time.Millisecond,
		Duration:   2 * time.Second,
		Output:     &out,
		Retry:      s.Backoff(),
	})
	s.Require().NoError(err)
	s.Equal("a\nb\nc\nd\n", out.String())
}

func (s *IntegrationTestsSuite) TestUnknownShardFailsToGetCursor() {
	streamName := s.NewStream(1)

	err := pull.Run(context.Background(), s.StreamClient(), pipeline.NewStopSignal(), pull.Options{
		StreamName: streamName,
		ShardID:    "shardId-000000000042",
		PullDelay:  100 * time.Millisecond,
		Duration:   time.Second,
		Output:     io.Discard,
		Retry:      s.Backoff(),
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "cannot retrieve cursor")
}
