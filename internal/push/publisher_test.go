package push

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
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

// recordPuts makes client accept every put and returns the captured inputs.
func recordPuts(client *stream.MockStreamClient) *[]stream.PutInput {
	var puts []stream.PutInput
	client.On("PutRecord", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			puts = append(puts, args.Get(1).(stream.PutInput))
		}).
		Return(stream.PutOutput{ShardID: "shardId-000000000000", SequenceNumber: "1"}, nil)
	return &puts
}

func payloads(puts []stream.PutInput) []string {
	out := make([]string, len(puts))
	for i, p := range puts {
		out[i] = string(p.Data)
	}
	return out
}

func newTestPublisher(t *testing.T, client stream.StreamClient, cfg PublisherConfig, units ...string) (*Publisher, *bytes.Buffer) {
	t.Helper()
	q := queue.New[UnitOfWork](len(units) + 1)
	for _, u := range units {
		require.NoError(t, q.Put(context.Background(), UnitOfWork{Payload: []byte(u)}))
	}
	if cfg.StreamName == "" {
		cfg.StreamName = "orders"
	}
	if cfg.PushDelay == 0 {
		cfg.PushDelay = 10 * time.Millisecond
	}
	var progress bytes.Buffer
	return NewPublisher(client, q, cfg, testBackoff(t), &progress), &progress
}

func runUntilDrained(t *testing.T, p *Publisher) error {
	t.Helper()
	stop := pipeline.NewStopSignal()
	stop.Set()
	return p.Run(context.Background(), stop)
}

func TestNonBatchPublishesEachLine(t *testing.T) {
	client := &stream.MockStreamClient{}
	puts := recordPuts(client)

	var units []string
	var want []string
	for i := 1; i <= 10; i++ {
		units = append(units, fmt.Sprintf("%d\n", i))
		want = append(want, fmt.Sprintf("%d", i))
	}
	p, progress := newTestPublisher(t, client, PublisherConfig{DisableBatch: true}, units...)

	require.NoError(t, runUntilDrained(t, p))
	assert.Equal(t, want, payloads(*puts))
	assert.Equal(t, strings.Repeat(".", 10), progress.String())
}

func TestThreeHalfSizeUnitsMakeTwoPublishes(t *testing.T) {
	client := &stream.MockStreamClient{}
	puts := recordPuts(client)

	half := strings.Repeat("a", MaxRecordSize/2)
	p, progress := newTestPublisher(t, client, PublisherConfig{}, half, half, half)

	require.NoError(t, runUntilDrained(t, p))
	require.Len(t, *puts, 2)
	assert.Len(t, (*puts)[0].Data, MaxRecordSize)
	assert.Len(t, (*puts)[1].Data, MaxRecordSize/2)
	assert.Equal(t, "..", progress.String())
}

func TestBatchesNeverExceedMaxRecordSize(t *testing.T) {
	client := &stream.MockStreamClient{}
	puts := recordPuts(client)

	var units []string
	var input strings.Builder
	for i := 0; i < 60; i++ {
		size := 1 + (i*7919)%(MaxRecordSize/3)
		u := strings.Repeat(string(rune('a'+i%26)), size-1) + "\n"
		units = append(units, u)
		input.WriteString(u)
	}
	p, _ := newTestPublisher(t, client, PublisherConfig{}, units...)

	require.NoError(t, runUntilDrained(t, p))
	require.NotEmpty(t, *puts)

	var published strings.Builder
	for _, put := range *puts {
		assert.LessOrEqual(t, len(put.Data), MaxRecordSize)
		published.Write(put.Data)
	}
	assert.Equal(t, input.String(), published.String(), "every line appears once, in order")
}

func TestOversizedUnitIsTruncated(t *testing.T) {
	for _, disable := range []bool{true, false} {
		t.Run(fmt.Sprintf("disable_batch=%v", disable), func(t *testing.T) {
			client := &stream.MockStreamClient{}
			puts := recordPuts(client)

			big := strings.Repeat("z", MaxRecordSize+100)
			p, _ := newTestPublisher(t, client, PublisherConfig{DisableBatch: disable}, big)

			require.NoError(t, runUntilDrained(t, p))
			require.Len(t, *puts, 1)
			data := string((*puts)[0].Data)
			assert.Len(t, data, MaxRecordSize)
			assert.True(t, strings.HasSuffix(data, truncatedMarker))
		})
	}
}

func TestPartitionKey(t *testing.T) {
	client := &stream.MockStreamClient{}
	puts := recordPuts(client)

	p, _ := newTestPublisher(t, client, PublisherConfig{DisableBatch: true}, "abc\n")
	require.NoError(t, runUntilDrained(t, p))
	require.Len(t, *puts, 1)
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", (*puts)[0].PartitionKey)

	p, _ = newTestPublisher(t, client, PublisherConfig{DisableBatch: true, PartitionKey: "fixed"}, "abc\n")
	require.NoError(t, runUntilDrained(t, p))
	require.Len(t, *puts, 2)
	assert.Equal(t, "fixed", (*puts)[1].PartitionKey)
}

func TestTimeThresholdPublishesOnAppend(t *testing.T) {
	client := &stream.MockStreamClient{}
	puts := recordPuts(client)
	mockClock := clock.NewMock()

	p, _ := newTestPublisher(t, client, PublisherConfig{})
	p.clock = mockClock
	p.lastPut = mockClock.Now()
	ctx := context.Background()

	require.NoError(t, p.handle(ctx, UnitOfWork{Payload: []byte("a\n")}))
	assert.Empty(t, *puts)

	mockClock.Add(MaxTimeBetweenPuts + time.Second)
	require.NoError(t, p.handle(ctx, UnitOfWork{Payload: []byte("b\n")}))
	assert.Equal(t, []string{"a\nb\n"}, payloads(*puts))
	assert.Empty(t, p.batch)
}

func TestIdleBatchIsFlushed(t *testing.T) {
	client := &stream.MockStreamClient{}
	puts := recordPuts(client)
	mockClock := clock.NewMock()

	p, _ := newTestPublisher(t, client, PublisherConfig{})
	p.clock = mockClock
	p.lastPut = mockClock.Now()
	ctx := context.Background()

	require.NoError(t, p.handle(ctx, UnitOfWork{Payload: []byte("a\n")}))
	require.NoError(t, p.flushIfIdle(ctx))
	assert.Empty(t, *puts)

	mockClock.Add(MaxTimeBetweenPuts + time.Second)
	require.NoError(t, p.flushIfIdle(ctx))
	assert.Equal(t, []string{"a\n"}, payloads(*puts))
}

func TestOrderedChainsSequenceNumbers(t *testing.T) {
	client := &stream.MockStreamClient{}
	var hints []string
	capture := func(args mock.Arguments) {
		hints = append(hints, args.Get(1).(stream.PutInput).SequenceHint)
	}
	for _, seq := range []string{"101", "102", "103"} {
		client.On("PutRecord", mock.Anything, mock.Anything).
			Run(capture).
			Return(stream.PutOutput{SequenceNumber: seq}, nil).Once()
	}

	p, _ := newTestPublisher(t, client, PublisherConfig{DisableBatch: true, Ordered: true}, "a\n", "b\n", "c\n")
	require.NoError(t, runUntilDrained(t, p))
	assert.Equal(t, []string{"", "101", "102"}, hints)
}

func TestSequenceTokenRecovery(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("PutRecord", mock.Anything, mock.MatchedBy(func(in stream.PutInput) bool {
		return in.SequenceHint == ""
	})).Return(stream.PutOutput{}, errors.New("InvalidSequenceTokenException: rejected with sequenceToken: 4567")).Once()
	client.On("PutRecord", mock.Anything, mock.MatchedBy(func(in stream.PutInput) bool {
		return in.SequenceHint == "4567"
	})).Return(stream.PutOutput{SequenceNumber: "4568"}, nil).Once()

	p, progress := newTestPublisher(t, client, PublisherConfig{DisableBatch: true}, "a\n")
	require.NoError(t, runUntilDrained(t, p))
	assert.Equal(t, ".", progress.String())
	client.AssertExpectations(t)
}

func TestConflictingOperationIsRetried(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{}, errors.New("OperationAbortedException: A conflicting operation is currently in progress")).Twice()
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{SequenceNumber: "1"}, nil).Once()

	p, progress := newTestPublisher(t, client, PublisherConfig{DisableBatch: true}, "a\n")
	require.NoError(t, runUntilDrained(t, p))
	assert.Equal(t, ".", progress.String())
	client.AssertNumberOfCalls(t, "PutRecord", 3)
}

func TestConflictingOperationWaitsBetweenAttempts(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{}, errors.New("OperationAbortedException: A conflicting operation is currently in progress")).Twice()
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{SequenceNumber: "1"}, nil).Once()

	p, _ := newTestPublisher(t, client, PublisherConfig{DisableBatch: true})
	b, err := retry.New(retry.Config{MaxRetries: 3, InitialBackoff: 40 * time.Millisecond, Filter: stream.IsTransient})
	require.NoError(t, err)
	p.backoff = b

	start := time.Now()
	out, err := p.putRecord(context.Background(), stream.PutInput{StreamName: "orders", Data: []byte("a\n")})
	require.NoError(t, err)
	assert.Equal(t, "1", out.SequenceNumber)
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond, "waits 40ms then 80ms")
	client.AssertNumberOfCalls(t, "PutRecord", 3)
}

func TestConflictingOperationWaitHonorsContext(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{}, errors.New("OperationAbortedException: A conflicting operation is currently in progress"))

	p, _ := newTestPublisher(t, client, PublisherConfig{DisableBatch: true})
	b, err := retry.New(retry.Config{MaxRetries: 3, InitialBackoff: time.Hour, Filter: stream.IsTransient})
	require.NoError(t, err)
	p.backoff = b

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.putRecord(ctx, stream.PutInput{StreamName: "orders", Data: []byte("a\n")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	client.AssertNumberOfCalls(t, "PutRecord", 1)
}

func TestTransientErrorIsRetriedWithBackoff(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{}, &types.ProvisionedThroughputExceededException{}).Once()
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{SequenceNumber: "1"}, nil).Once()

	p, progress := newTestPublisher(t, client, PublisherConfig{DisableBatch: true}, "a\n")
	require.NoError(t, runUntilDrained(t, p))
	assert.Equal(t, ".", progress.String())
	client.AssertNumberOfCalls(t, "PutRecord", 2)
}

func TestUnrecognisedErrorFailsPublisher(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{}, errors.New("AccessDeniedException: not allowed")).Once()

	p, progress := newTestPublisher(t, client, PublisherConfig{DisableBatch: true}, "a\n")
	err := runUntilDrained(t, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDeniedException")
	assert.Empty(t, progress.String())
	client.AssertNumberOfCalls(t, "PutRecord", 1)
}

func TestExhaustedRetriesFailPublisher(t *testing.T) {
	client := &stream.MockStreamClient{}
	client.On("PutRecord", mock.Anything, mock.Anything).
		Return(stream.PutOutput{}, &types.ProvisionedThroughputExceededException{})

	p, _ := newTestPublisher(t, client, PublisherConfig{DisableBatch: true}, "a\n")
	err := runUntilDrained(t, p)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}
