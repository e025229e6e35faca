package stream

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StartPosition selects where a new cursor begins within a shard.
type StartPosition string

const (
	Latest      StartPosition = "LATEST"
	TrimHorizon StartPosition = "TRIM_HORIZON"
)

func ParseStartPosition(s string) (StartPosition, error) {
	switch StartPosition(strings.ToUpper(s)) {
	case Latest:
		return Latest, nil
	case TrimHorizon:
		return TrimHorizon, nil
	}
	return "", fmt.Errorf("unsupported iterator type %q, expected %s or %s", s, Latest, TrimHorizon)
}

type Record struct {
	Data           []byte
	PartitionKey   string
	SequenceNumber string
	ArrivalTime    time.Time
}

// ShardPage is one page of a shard listing.
type ShardPage struct {
	ShardIDs []string
	HasMore  bool
}

type FetchOutput struct {
	Records []Record
	// NextCursor is empty once the shard is closed and fully read.
	NextCursor         string
	MillisBehindLatest int64
}

type PutInput struct {
	StreamName   string
	PartitionKey string
	Data         []byte
	// SequenceHint orders this record after the given sequence number.
	SequenceHint string
}

type PutOutput struct {
	ShardID        string
	SequenceNumber string
}

// StreamClient is the subset of a partitioned log service used by the push,
// pull and metrics commands. Implementations are safe for concurrent use.
type StreamClient interface {
	ListShards(ctx context.Context, streamName, exclusiveStartID string) (ShardPage, error)
	GetCursor(ctx context.Context, streamName, shardID string, from StartPosition) (string, error)
	FetchRecords(ctx context.Context, cursor string) (FetchOutput, error)
	PutRecord(ctx context.Context, in PutInput) (PutOutput, error)
}

// ListAllShards walks the paginated shard listing, passing the last shard id
// seen as the exclusive start of the next page.
func ListAllShards(ctx context.Context, client StreamClient, streamName string) ([]string, error) {
	var (
		shardIDs []string
		start    string
	)
	for {
		page, err := client.ListShards(ctx, streamName, start)
		if err != nil {
			return nil, fmt.Errorf("list shards of %s: %w", streamName, err)
		}
		shardIDs = append(shardIDs, page.ShardIDs...)
		if !page.HasMore || len(page.ShardIDs) == 0 {
			return shardIDs, nil
		}
		start = page.ShardIDs[len(page.ShardIDs)-1]
	}
}
