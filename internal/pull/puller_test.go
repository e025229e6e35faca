package pull

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/benbjohnson/clock"
	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/queue"
	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testBackoff(t *testing.T) *retry.Backoff {
	t.Helper()
	b, err := retry.New(retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, Filter: stream.IsTransient})
	require.NoError(t, err)
	return b
}

func records(data ...string) []stream.Record {
	out := make([]stream.Record, len(data))
	for i, d := range data {
		out[i] = stream.Record{Data: []byte(d)}
	}
	return out
}

func runPuller(t *testing.T, p *Puller) (*pipeline.StopSignal, error) {
	t.Helper()
	stop := pipeline.NewStopSignal()
	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), stop)
	}()
	select {
	case err := <-done:
		return stop, err
	case <-time.After(5 * time.Second):
		t.Fatal("puller did not finish")
		return nil, nil
	}
}

func TestPullerFollowsCursorAndSkipsEmptyFetches(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("FetchRecords", mock.Anything, "c0").
		Return(stream.FetchOutput{Records: records("a", "b"), NextCursor: "c1"}, nil).Once()
	client.On("FetchRecords", mock.Anything, "c1").
		Return(stream.FetchOutput{NextCursor: "c2"}, nil).Once()
	client.On("FetchRecords", mock.Anything, "c2").
		Return(stream.FetchOutput{Records: records("c"), NextCursor: ""}, nil).Once()

	q := queue.New[RecordBatch](10)
	p := NewPuller(client, q, "c0", PullerConfig{ShardID: "shardId-0", PullDelay: time.Millisecond, Duration: -1}, testBackoff(t))

	stop, err := runPuller(t, p)
	require.NoError(t, err)
	assert.True(t, stop.IsSet(), "closed shard stops the pipeline")
	client.AssertExpectations(t)

	require.Equal(t, 2, q.Len(), "empty fetches are not enqueued")
	first, _ := q.TryGet()
	second, _ := q.TryGet()
	assert.Equal(t, records("a", "b"), first.Records)
	assert.Equal(t, records("c"), second.Records)
}

func TestPullerStopsWhenDurationExpires(t *testing.T) {
	mockClock := clock.NewMock()
	client := &stream.MockStreamClient{}
	client.On("FetchRecords", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { mockClock.Add(4 * time.Second) }).
		Return(stream.FetchOutput{NextCursor: "next"}, nil)

	q := queue.New[RecordBatch](10)
	p := NewPuller(client, q, "c0", PullerConfig{PullDelay: time.Millisecond, Duration: 10 * time.Second}, testBackoff(t))
	p.clock = mockClock

	stop, err := runPuller(t, p)
	require.NoError(t, err)
	assert.True(t, stop.IsSet())
	// Fetches at +0s, +4s and +8s; the check at +12s is past the end time.
	client.AssertNumberOfCalls(t, "FetchRecords", 3)
	assert.Equal(t, "next", p.Cursor())
}

func TestPullerLeavesWhenStopped(t *testing.T) {
	client := &stream.MockStreamClient{}
	q := queue.New[RecordBatch](10)
	p := NewPuller(client, q, "c0", PullerConfig{PullDelay: time.Hour, Duration: -1}, testBackoff(t))

	stop := pipeline.NewStopSignal()
	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), stop)
	}()
	stop.Set()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("puller did not observe stop during pull delay")
	}
	client.AssertNotCalled(t, "FetchRecords", mock.Anything, mock.Anything)
}

func TestPullerRetriesTransientErrors(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("FetchRecords", mock.Anything, "c0").
		Return(stream.FetchOutput{}, &types.ProvisionedThroughputExceededException{}).Once()
	client.On("FetchRecords", mock.Anything, "c0").
		Return(stream.FetchOutput{Records: records("a")}, nil).Once()

	q := queue.New[RecordBatch](10)
	p := NewPuller(client, q, "c0", PullerConfig{PullDelay: time.Millisecond, Duration: -1}, testBackoff(t))

	_, err := runPuller(t, p)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())
	client.AssertNumberOfCalls(t, "FetchRecords", 2)
}

func TestPullerFailsOnFatalError(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("FetchRecords", mock.Anything, "c0").
		Return(stream.FetchOutput{}, errors.New("ExpiredIteratorException")).Once()

	q := queue.New[RecordBatch](10)
	p := NewPuller(client, q, "c0", PullerConfig{ShardID: "shardId-0", PullDelay: time.Millisecond, Duration: -1}, testBackoff(t))

	_, err := runPuller(t, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shardId-0")
	assert.Equal(t, "c0", p.Cursor())
}

func TestPullerLeavesWhenStoppedDuringBackoff(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("FetchRecords", mock.Anything, "c0").
		Return(stream.FetchOutput{}, &types.ProvisionedThroughputExceededException{})
	b, err := retry.New(retry.Config{MaxRetries: 5, InitialBackoff: time.Second, Filter: stream.IsTransient})
	require.NoError(t, err)

	q := queue.New[RecordBatch](10)
	p := NewPuller(client, q, "c0", PullerConfig{ShardID: "shardId-0", PullDelay: 10 * time.Millisecond, Duration: -1}, b)

	stop := pipeline.NewStopSignal()
	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- p.Run(context.Background(), stop)
	}()
	time.Sleep(100 * time.Millisecond)
	stop.Set()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 900*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("puller did not observe stop during retry backoff")
	}
	client.AssertNumberOfCalls(t, "FetchRecords", 1)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, "c0", p.Cursor())
}
