package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

// KinesisAPI is the part of the Kinesis SDK client the adapter calls.
type KinesisAPI interface {
	DescribeStream(ctx context.Context, params *kinesis.DescribeStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, params *kinesis.GetShardIteratorInput, optFns ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *kinesis.GetRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error)
	PutRecord(ctx context.Context, params *kinesis.PutRecordInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordOutput, error)
}

type KinesisClient struct {
	api KinesisAPI
}

func NewKinesisClient(api KinesisAPI) *KinesisClient {
	return &KinesisClient{api: api}
}

func (c *KinesisClient) ListShards(ctx context.Context, streamName, exclusiveStartID string) (ShardPage, error) {
	in := &kinesis.DescribeStreamInput{StreamName: aws.String(streamName)}
	if exclusiveStartID != "" {
		in.ExclusiveStartShardId = aws.String(exclusiveStartID)
	}
	out, err := c.api.DescribeStream(ctx, in)
	if err != nil {
		return ShardPage{}, err
	}
	if out.StreamDescription == nil {
		return ShardPage{}, fmt.Errorf("describe stream %s: empty description", streamName)
	}

	desc := out.StreamDescription
	page := ShardPage{
		ShardIDs: make([]string, 0, len(desc.Shards)),
		HasMore:  aws.ToBool(desc.HasMoreShards),
	}
	for _, shard := range desc.Shards {
		page.ShardIDs = append(page.ShardIDs, aws.ToString(shard.ShardId))
	}
	return page, nil
}

func (c *KinesisClient) GetCursor(ctx context.Context, streamName, shardID string, from StartPosition) (string, error) {
	iteratorType := types.ShardIteratorTypeLatest
	if from == TrimHorizon {
		iteratorType = types.ShardIteratorTypeTrimHorizon
	}
	out, err := c.api.GetShardIterator(ctx, &kinesis.GetShardIteratorInput{
		StreamName:        aws.String(streamName),
		ShardId:           aws.String(shardID),
		ShardIteratorType: iteratorType,
	})
	if err != nil {
		return "", err
	}
	if out.ShardIterator == nil {
		return "", errors.New("get shard iterator: no iterator returned")
	}
	return *out.ShardIterator, nil
}

func (c *KinesisClient) FetchRecords(ctx context.Context, cursor string) (FetchOutput, error) {
	out, err := c.api.GetRecords(ctx, &kinesis.GetRecordsInput{ShardIterator: aws.String(cursor)})
	if err != nil {
		return FetchOutput{}, err
	}

	records := make([]Record, 0, len(out.Records))
	for _, r := range out.Records {
		records = append(records, Record{
			Data:           r.Data,
			PartitionKey:   aws.ToString(r.PartitionKey),
			SequenceNumber: aws.ToString(r.SequenceNumber),
			ArrivalTime:    aws.ToTime(r.ApproximateArrivalTimestamp),
		})
	}
	return FetchOutput{
		Records:            records,
		NextCursor:         aws.ToString(out.NextShardIterator),
		MillisBehindLatest: aws.ToInt64(out.MillisBehindLatest),
	}, nil
}

func (c *KinesisClient) PutRecord(ctx context.Context, in PutInput) (PutOutput, error) {
	req := &kinesis.PutRecordInput{
		StreamName:   aws.String(in.StreamName),
		PartitionKey: aws.String(in.PartitionKey),
		Data:         in.Data,
	}
	if in.SequenceHint != "" {
		req.SequenceNumberForOrdering = aws.String(in.SequenceHint)
	}
	out, err := c.api.PutRecord(ctx, req)
	if err != nil {
		return PutOutput{}, err
	}
	return PutOutput{
		ShardID:        aws.ToString(out.ShardId),
		SequenceNumber: aws.ToString(out.SequenceNumber),
	}, nil
}
