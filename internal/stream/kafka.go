package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

const (
	kafkaPollTimeout    = 2 * time.Second
	kafkaMaxPollRecords = 500

	listOffsetsLatest   = -1
	listOffsetsEarliest = -2
)

// KafkaClient serves the stream operations from a Kafka cluster. A stream is
// a topic, a shard is one of its partitions and a cursor is the next offset
// to read, encoded as "topic/partition/offset".
type KafkaClient struct {
	opts     []kgo.Opt
	producer *kgo.Client

	mu          sync.Mutex
	consumer    *kgo.Client
	consumerPos string
}

func NewKafkaClient(brokers []string, clientID string) (*KafkaClient, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
	}
	producer, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaClient{opts: opts, producer: producer}, nil
}

func (c *KafkaClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumer != nil {
		c.consumer.Close()
		c.consumer = nil
	}
	c.producer.Close()
	return nil
}

// ListShards returns every partition of the topic after exclusiveStartID in
// a single page.
func (c *KafkaClient) ListShards(ctx context.Context, streamName, exclusiveStartID string) (ShardPage, error) {
	after := int32(-1)
	if exclusiveStartID != "" {
		p, err := strconv.ParseInt(exclusiveStartID, 10, 32)
		if err != nil {
			return ShardPage{}, fmt.Errorf("invalid shard id %q: %w", exclusiveStartID, err)
		}
		after = int32(p)
	}

	req := kmsg.NewMetadataRequest()
	topic := kmsg.NewMetadataRequestTopic()
	topic.Topic = kmsg.StringPtr(streamName)
	req.Topics = append(req.Topics, topic)

	resp, err := req.RequestWith(ctx, c.producer)
	if err != nil {
		return ShardPage{}, err
	}
	if len(resp.Topics) != 1 {
		return ShardPage{}, fmt.Errorf("metadata for %s: expected 1 topic, got %d", streamName, len(resp.Topics))
	}
	if err := kerr.ErrorForCode(resp.Topics[0].ErrorCode); err != nil {
		return ShardPage{}, fmt.Errorf("metadata for %s: %w", streamName, err)
	}

	partitions := make([]int32, 0, len(resp.Topics[0].Partitions))
	for _, p := range resp.Topics[0].Partitions {
		if p.Partition > after {
			partitions = append(partitions, p.Partition)
		}
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	page := ShardPage{ShardIDs: make([]string, len(partitions))}
	for i, p := range partitions {
		page.ShardIDs[i] = strconv.Itoa(int(p))
	}
	return page, nil
}

func (c *KafkaClient) GetCursor(ctx context.Context, streamName, shardID string, from StartPosition) (string, error) {
	partition, err := strconv.ParseInt(shardID, 10, 32)
	if err != nil {
		return "", fmt.Errorf("invalid shard id %q: %w", shardID, err)
	}

	req := kmsg.NewListOffsetsRequest()
	topic := kmsg.NewListOffsetsRequestTopic()
	topic.Topic = streamName
	p := kmsg.NewListOffsetsRequestTopicPartition()
	p.Partition = int32(partition)
	p.Timestamp = listOffsetsLatest
	if from == TrimHorizon {
		p.Timestamp = listOffsetsEarliest
	}
	topic.Partitions = append(topic.Partitions, p)
	req.Topics = append(req.Topics, topic)

	resp, err := req.RequestWith(ctx, c.producer)
	if err != nil {
		return "", err
	}
	for _, t := range resp.Topics {
		for _, rp := range t.Partitions {
			if rp.Partition != int32(partition) {
				continue
			}
			if err := kerr.ErrorForCode(rp.ErrorCode); err != nil {
				return "", fmt.Errorf("list offsets %s/%d: %w", streamName, partition, err)
			}
			return formatCursor(streamName, int32(partition), rp.Offset), nil
		}
	}
	return "", fmt.Errorf("list offsets %s/%d: partition missing from response", streamName, partition)
}

// FetchRecords polls the partition named by cursor. The consumer client is
// kept between calls as long as each call continues from the previous one.
func (c *KafkaClient) FetchRecords(ctx context.Context, cursor string) (FetchOutput, error) {
	topic, partition, offset, err := parseCursor(cursor)
	if err != nil {
		return FetchOutput{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consumer == nil || c.consumerPos != cursor {
		if c.consumer != nil {
			c.consumer.Close()
		}
		opts := append([]kgo.Opt{
			kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
				topic: {partition: kgo.NewOffset().At(offset)},
			}),
		}, c.opts...)
		consumer, err := kgo.NewClient(opts...)
		if err != nil {
			c.consumer = nil
			return FetchOutput{}, fmt.Errorf("create kafka consumer: %w", err)
		}
		c.consumer = consumer
	}

	pollCtx, cancel := context.WithTimeout(ctx, kafkaPollTimeout)
	fetches := c.consumer.PollRecords(pollCtx, kafkaMaxPollRecords)
	cancel()

	for _, fe := range fetches.Errors() {
		if errors.Is(fe.Err, context.DeadlineExceeded) || errors.Is(fe.Err, context.Canceled) {
			if ctx.Err() != nil {
				return FetchOutput{}, ctx.Err()
			}
			continue
		}
		return FetchOutput{}, fmt.Errorf("fetch %s/%d: %w", fe.Topic, fe.Partition, fe.Err)
	}

	out := FetchOutput{}
	next := offset
	fetches.EachRecord(func(r *kgo.Record) {
		if r.Topic != topic || r.Partition != partition {
			return
		}
		out.Records = append(out.Records, Record{
			Data:           r.Value,
			PartitionKey:   string(r.Key),
			SequenceNumber: strconv.FormatInt(r.Offset, 10),
			ArrivalTime:    r.Timestamp,
		})
		next = r.Offset + 1
	})

	out.NextCursor = formatCursor(topic, partition, next)
	c.consumerPos = out.NextCursor
	return out, nil
}

// PutRecord produces synchronously. Records with the same key land on the
// same partition, which already keeps them ordered, so SequenceHint is not
// needed.
func (c *KafkaClient) PutRecord(ctx context.Context, in PutInput) (PutOutput, error) {
	record := &kgo.Record{
		Topic: in.StreamName,
		Key:   []byte(in.PartitionKey),
		Value: in.Data,
	}
	produced, err := c.producer.ProduceSync(ctx, record).First()
	if err != nil {
		return PutOutput{}, err
	}
	return PutOutput{
		ShardID:        strconv.Itoa(int(produced.Partition)),
		SequenceNumber: strconv.FormatInt(produced.Offset, 10),
	}, nil
}

func formatCursor(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("%s/%d/%d", topic, partition, offset)
}

func parseCursor(cursor string) (string, int32, int64, error) {
	// Topic names cannot contain '/', so split from the right.
	last := strings.LastIndex(cursor, "/")
	if last <= 0 {
		return "", 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}
	mid := strings.LastIndex(cursor[:last], "/")
	if mid <= 0 {
		return "", 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}

	partition, err := strconv.ParseInt(cursor[mid+1:last], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}
	offset, err := strconv.ParseInt(cursor[last+1:], 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("malformed cursor %q: %w", cursor, err)
	}
	return cursor[:mid], int32(partition), offset, nil
}
