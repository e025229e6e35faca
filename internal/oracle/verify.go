package oracle

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

// runRecords keeps the consumed records of one run, sorted by shard position.
func runRecords(runID string, consumed map[string][]ConsumedRecord) map[string][]recordPayload {
	out := make(map[string][]recordPayload)
	for shardID, records := range consumed {
		sorted := make([]ConsumedRecord, len(records))
		copy(sorted, records)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

		for _, r := range sorted {
			var payload recordPayload
			if err := json.Unmarshal(r.Value, &payload); err != nil || payload.Run != runID {
				continue
			}
			out[shardID] = append(out[shardID], payload)
		}
	}
	return out
}

func verify(oracleDB *sql.DB, runID string, consumed map[string][]ConsumedRecord) error {
	produced, err := loadOracle(oracleDB, runID)
	if err != nil {
		return err
	}
	ours := runRecords(runID, consumed)

	if err := checkCompleteness(produced, consumed); err != nil {
		return err
	}
	log.Info("Check 1: Completeness passed")

	if err := checkNoPhantomWrites(produced, ours); err != nil {
		return err
	}
	log.Info("Check 2: No phantom writes passed")

	if err := checkNoDuplicates(ours); err != nil {
		return err
	}
	log.Info("Check 3: No duplicates passed")

	if err := checkProducerOrdering(ours); err != nil {
		return err
	}
	log.Info("Check 4: Per-producer ordering passed")

	if err := checkDataIntegrity(produced, consumed, runID); err != nil {
		return err
	}
	log.Info("Check 5: Data integrity passed")
	return nil
}

func payloadKey(pid, seq int) string {
	return fmt.Sprintf("%d:%d", pid, seq)
}

func loadOracle(oracleDB *sql.DB, runID string) (map[string][]byte, error) {
	rows, err := oracleDB.Query("SELECT producer_id, sequence, value FROM produced_records WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("query oracle: %w", err)
	}
	defer rows.Close()

	produced := make(map[string][]byte)
	for rows.Next() {
		var pid, seq int
		var value []byte
		if err := rows.Scan(&pid, &seq, &value); err != nil {
			return nil, fmt.Errorf("scan oracle: %w", err)
		}
		produced[payloadKey(pid, seq)] = value
	}
	return produced, rows.Err()
}

func checkCompleteness(produced map[string][]byte, consumed map[string][]ConsumedRecord) error {
	consumedValues := make(map[string]bool)
	for _, records := range consumed {
		for _, r := range records {
			consumedValues[string(r.Value)] = true
		}
	}
	for key, value := range produced {
		if !consumedValues[string(value)] {
			return fmt.Errorf("completeness: record not found in consumed output: %s", key)
		}
	}
	return nil
}

func checkNoPhantomWrites(produced map[string][]byte, ours map[string][]recordPayload) error {
	for shardID, payloads := range ours {
		for _, p := range payloads {
			if _, ok := produced[payloadKey(p.PID, p.Seq)]; !ok {
				return fmt.Errorf("phantom write in %s: producer=%d seq=%d", shardID, p.PID, p.Seq)
			}
		}
	}
	return nil
}

func checkNoDuplicates(ours map[string][]recordPayload) error {
	seen := make(map[string]string)
	for shardID, payloads := range ours {
		for _, p := range payloads {
			key := payloadKey(p.PID, p.Seq)
			if prev, ok := seen[key]; ok {
				return fmt.Errorf("duplicate record %s in %s, first seen in %s", key, shardID, prev)
			}
			seen[key] = shardID
		}
	}
	return nil
}

func checkProducerOrdering(ours map[string][]recordPayload) error {
	for shardID, payloads := range ours {
		prevSeq := make(map[int]int)
		for _, p := range payloads {
			prev, ok := prevSeq[p.PID]
			if ok && p.Seq <= prev {
				return fmt.Errorf("ordering violation for producer %d in %s: seq %d not > prev %d",
					p.PID, shardID, p.Seq, prev)
			}
			prevSeq[p.PID] = p.Seq
		}
	}
	return nil
}

func checkDataIntegrity(produced map[string][]byte, consumed map[string][]ConsumedRecord, runID string) error {
	for _, records := range consumed {
		for _, r := range records {
			var payload recordPayload
			if err := json.Unmarshal(r.Value, &payload); err != nil || payload.Run != runID {
				continue
			}
			key := payloadKey(payload.PID, payload.Seq)
			if string(produced[key]) != string(r.Value) {
				return fmt.Errorf("data integrity failure for %s: oracle and consumed values differ", key)
			}
		}
	}
	return nil
}
