//go:build integration

package integration

import (
	"context"
	"time"

	"github.com/markberger/kinesisctl/internal/oracle"
)

func (s *IntegrationTestsSuite) TestConcurrentProducerOracle() {
	streamName := s.NewStream(2)

	cfg := oracle.DefaultConfig()
	cfg.StreamName = streamName
	cfg.NumProducers = 5
	cfg.RecordsPerProducer = 20
	cfg.ConsumeTimeout = 30 * time.Second
	cfg.DataDir = s.T().TempDir()
	cfg.Retry = s.Backoff()

	result, err := oracle.Run(context.Background(), s.StreamClient(), cfg)
	s.Require().NoError(err)
	s.T().Logf("Total records verified: %d across %d shards from %d producers",
		result.TotalRecords, result.NumShards, result.NumProducers)
}
