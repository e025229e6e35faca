package oracle

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"

	"github.com/markberger/kinesisctl/internal/pipeline"
	"github.com/markberger/kinesisctl/internal/push"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// produce runs one push pipeline per producer. Every producer uses its own
// partition key so its records share a shard and keep their order.
func produce(ctx context.Context, client stream.StreamClient, cfg Config, runID string, oracleDB *sql.DB) error {
	var oracleMu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	for pid := 0; pid < cfg.NumProducers; pid++ {
		producerID := pid
		g.Go(func() error {
			key := fmt.Sprintf("%s-p%d", runID, producerID)

			var input bytes.Buffer
			for seq := 0; seq < cfg.RecordsPerProducer; seq++ {
				value := generateRecordValue(runID, producerID, seq)
				if err := insertOracleRecord(oracleDB, &oracleMu, runID, producerID, seq, key, value); err != nil {
					return fmt.Errorf("producer %d seq %d: oracle insert: %w", producerID, seq, err)
				}
				input.Write(value)
				input.WriteByte('\n')
			}

			err := push.Run(ctx, client, pipeline.NewStopSignal(), push.Options{
				Publisher: push.PublisherConfig{
					StreamName:   cfg.StreamName,
					PartitionKey: key,
					DisableBatch: true,
					PushDelay:    cfg.PushDelay,
				},
				Input:  &input,
				Output: io.Discard,
				Retry:  cfg.Retry,
			})
			if err != nil {
				return fmt.Errorf("producer %d: %w", producerID, err)
			}
			log.WithField("producer", producerID).Debug("Producer finished")
			return nil
		})
	}
	return g.Wait()
}
