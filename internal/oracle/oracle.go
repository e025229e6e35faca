package oracle

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/markberger/kinesisctl/internal/retry"
	"github.com/markberger/kinesisctl/internal/stream"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// ConsumedRecord is one line rendered by the pull pipeline. Position is its
// index among the records read from the shard.
type ConsumedRecord struct {
	ShardID  string
	Position int
	Value    []byte
}

type recordPayload struct {
	Run  string `json:"run"`
	PID  int    `json:"pid"`
	Seq  int    `json:"seq"`
	Data string `json:"data"`
}

type Config struct {
	StreamName         string
	NumProducers       int
	RecordsPerProducer int
	PushDelay          time.Duration
	PullDelay          time.Duration
	ConsumeTimeout     time.Duration
	DataDir            string
	Retry              *retry.Backoff
}

type Result struct {
	RunID        string
	TotalRecords int
	NumShards    int
	NumProducers int
}

func DefaultConfig() Config {
	return Config{
		StreamName:         "oracle-stream",
		NumProducers:       10,
		RecordsPerProducer: 100,
		PushDelay:          100 * time.Millisecond,
		PullDelay:          200 * time.Millisecond,
		ConsumeTimeout:     60 * time.Second,
	}
}

// Run pushes generated records through the push pipeline, reads every shard
// back from TRIM_HORIZON through the pull pipeline and checks the two sides
// agree. Records on the stream that belong to other runs are ignored.
func Run(ctx context.Context, client stream.StreamClient, cfg Config) (Result, error) {
	if cfg.Retry == nil {
		b, err := retry.New(retry.Config{
			MaxRetries:     retry.DefaultMaxRetries,
			InitialBackoff: retry.DefaultInitialBackoff,
			MaxBackoff:     retry.DefaultMaxBackoff,
			Filter:         stream.IsTransient,
		})
		if err != nil {
			return Result{}, err
		}
		cfg.Retry = b
	}

	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{"oracle_run": runID, "stream": cfg.StreamName})

	dataDir := cfg.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = os.MkdirTemp("", "oracle-*")
		if err != nil {
			return Result{}, fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(dataDir)
	}

	oracleDB, err := openOracle(dataDir)
	if err != nil {
		return Result{}, fmt.Errorf("open oracle db: %w", err)
	}
	defer oracleDB.Close()

	logger.WithFields(log.Fields{
		"producers": cfg.NumProducers,
		"records":   cfg.RecordsPerProducer,
	}).Info("Launching producers")
	if err := produce(ctx, client, cfg, runID, oracleDB); err != nil {
		return Result{}, fmt.Errorf("produce: %w", err)
	}
	logger.Info("All producers finished")

	total := cfg.NumProducers * cfg.RecordsPerProducer
	consumed, err := consumeAll(ctx, client, cfg, runID, total)
	if err != nil {
		return Result{}, fmt.Errorf("consume: %w", err)
	}

	if err := verify(oracleDB, runID, consumed); err != nil {
		return Result{}, err
	}

	logger.WithFields(log.Fields{"records": total, "shards": len(consumed)}).Info("All checks passed")
	return Result{
		RunID:        runID,
		TotalRecords: total,
		NumShards:    len(consumed),
		NumProducers: cfg.NumProducers,
	}, nil
}

func openOracle(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	dbPath := filepath.Join(dir, "oracle.db")
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", dbPath))
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS produced_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		producer_id INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		partition_key TEXT NOT NULL,
		value BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func generateRecordValue(runID string, producerID, sequence int) []byte {
	nBytes := 32 + (sequence % 97)
	randBytes := make([]byte, nBytes)
	_, _ = rand.Read(randBytes)

	payload := recordPayload{
		Run:  runID,
		PID:  producerID,
		Seq:  sequence,
		Data: hex.EncodeToString(randBytes),
	}
	b, _ := json.Marshal(payload)
	return b
}

func insertOracleRecord(db *sql.DB, mu *sync.Mutex, runID string, producerID, seq int, key string, value []byte) error {
	mu.Lock()
	defer mu.Unlock()
	_, err := db.Exec(
		"INSERT INTO produced_records (run_id, producer_id, sequence, partition_key, value) VALUES (?, ?, ?, ?, ?)",
		runID, producerID, seq, key, value,
	)
	return err
}
