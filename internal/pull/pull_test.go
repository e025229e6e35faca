package pull

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/push"
	"github.com/markberger/kinesisctl/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPushThenPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := stream.NewMemoryStreamClient(2)

	var progress bytes.Buffer
	err := push.Run(ctx, client, pipeline.NewStopSignal(), push.Options{
		Publisher: push.PublisherConfig{StreamName: "orders", DisableBatch: true, PushDelay: time.Millisecond},
		Input:     strings.NewReader("abc\n"),
		Output:    &progress,
		Retry:     testBackoff(t),
	})
	require.NoError(t, err)
	require.Equal(t, ".", progress.String())

	// Default partition key is the MD5 of the payload
	shard := client.ShardFor("900150983cd24fb0d6963f7d28e17f72")

	var out bytes.Buffer
	err = Run(ctx, client, pipeline.NewStopSignal(), Options{
		StreamName: "orders",
		ShardID:    shard,
		From:       stream.TrimHorizon,
		PullDelay:  time.Millisecond,
		Duration:   50 * time.Millisecond,
		Output:     &out,
		Retry:      testBackoff(t),
	})
	require.NoError(t, err)
	assert.Equal(t, "abc\n", out.String())
}

func TestRunFailsWithoutCursor(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("GetCursor", mock.Anything, "orders", "shardId-9", stream.Latest).
		Return("", errors.New("ResourceNotFoundException"))

	err := Run(context.Background(), client, pipeline.NewStopSignal(), Options{
		StreamName: "orders",
		ShardID:    "shardId-9",
		Output:     &bytes.Buffer{},
		Retry:      testBackoff(t),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot retrieve cursor")
	client.AssertNotCalled(t, "FetchRecords", mock.Anything, mock.Anything)
}
