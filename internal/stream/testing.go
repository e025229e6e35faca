package stream

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// MockStreamClient implements StreamClient
type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) ListShards(ctx context.Context, streamName, exclusiveStartID string) (ShardPage, error) {
	args := m.Called(ctx, streamName, exclusiveStartID)
	return args.Get(0).(ShardPage), args.Error(1)
}

func (m *MockStreamClient) GetCursor(ctx context.Context, streamName, shardID string, from StartPosition) (string, error) {
	args := m.Called(ctx, streamName, shardID, from)
	return args.String(0), args.Error(1)
}

func (m *MockStreamClient) FetchRecords(ctx context.Context, cursor string) (FetchOutput, error) {
	args := m.Called(ctx, cursor)
	return args.Get(0).(FetchOutput), args.Error(1)
}

func (m *MockStreamClient) PutRecord(ctx context.Context, in PutInput) (PutOutput, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(PutOutput), args.Error(1)
}

// MemoryStreamClient is an in-process StreamClient with a fixed number of
// shards per stream. Records are routed by a hash of their partition key.
type MemoryStreamClient struct {
	mu       sync.Mutex
	nShards  int
	streams  map[string][][]Record
	pageSize int
}

func NewMemoryStreamClient(nShards int) *MemoryStreamClient {
	return &MemoryStreamClient{
		nShards:  nShards,
		streams:  make(map[string][][]Record),
		pageSize: 100,
	}
}

func memoryShardID(i int) string {
	return fmt.Sprintf("shardId-%012d", i)
}

func (m *MemoryStreamClient) shards(streamName string) [][]Record {
	s, ok := m.streams[streamName]
	if !ok {
		s = make([][]Record, m.nShards)
		m.streams[streamName] = s
	}
	return s
}

func (m *MemoryStreamClient) shardIndex(shardID string) (int, error) {
	for i := 0; i < m.nShards; i++ {
		if memoryShardID(i) == shardID {
			return i, nil
		}
	}
	return 0, fmt.Errorf("shard %s not found", shardID)
}

func (m *MemoryStreamClient) ListShards(_ context.Context, streamName, exclusiveStartID string) (ShardPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shards(streamName)

	start := 0
	if exclusiveStartID != "" {
		i, err := m.shardIndex(exclusiveStartID)
		if err != nil {
			return ShardPage{}, err
		}
		start = i + 1
	}
	page := ShardPage{}
	for i := start; i < m.nShards && len(page.ShardIDs) < m.pageSize; i++ {
		page.ShardIDs = append(page.ShardIDs, memoryShardID(i))
	}
	page.HasMore = start+len(page.ShardIDs) < m.nShards
	return page, nil
}

func (m *MemoryStreamClient) GetCursor(_ context.Context, streamName, shardID string, from StartPosition) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.shardIndex(shardID)
	if err != nil {
		return "", err
	}
	pos := 0
	if from == Latest {
		pos = len(m.shards(streamName)[i])
	}
	return fmt.Sprintf("%s|%d|%d", streamName, i, pos), nil
}

func (m *MemoryStreamClient) FetchRecords(_ context.Context, cursor string) (FetchOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := strings.Split(cursor, "|")
	if len(parts) != 3 {
		return FetchOutput{}, fmt.Errorf("malformed cursor %q", cursor)
	}
	shard, err1 := strconv.Atoi(parts[1])
	pos, err2 := strconv.Atoi(parts[2])
	if err := errors.Join(err1, err2); err != nil {
		return FetchOutput{}, fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}

	records := m.shards(parts[0])[shard]
	end := len(records)
	out := FetchOutput{Records: append([]Record(nil), records[pos:end]...)}
	out.NextCursor = fmt.Sprintf("%s|%d|%d", parts[0], shard, end)
	return out, nil
}

func (m *MemoryStreamClient) PutRecord(_ context.Context, in PutInput) (PutOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := fnv.New32a()
	_, _ = h.Write([]byte(in.PartitionKey))
	shard := int(h.Sum32() % uint32(m.nShards))

	shards := m.shards(in.StreamName)
	seq := strconv.Itoa(len(shards[shard]))
	shards[shard] = append(shards[shard], Record{
		Data:           append([]byte(nil), in.Data...),
		PartitionKey:   in.PartitionKey,
		SequenceNumber: seq,
		ArrivalTime:    time.Now(),
	})
	return PutOutput{ShardID: memoryShardID(shard), SequenceNumber: seq}, nil
}

// ShardFor reports which shard a partition key routes to.
func (m *MemoryStreamClient) ShardFor(partitionKey string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(partitionKey))
	return memoryShardID(int(h.Sum32() % uint32(m.nShards)))
}
