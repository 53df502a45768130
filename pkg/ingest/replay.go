package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/pkg/events"
	"github.com/sekuba/dvnstats-sub001/pkg/handlers"
)

// replayRecord is one line of a recorded event log: the same
// (chainId, blockNumber, blockTimestamp, logIndex, transactionHash, params)
// shape the host runtime delivers, flattened to JSON.
type replayRecord struct {
	Kind            string                 `json:"kind"`
	ChainID         int64                  `json:"chainId"`
	BlockNumber     uint64                 `json:"blockNumber"`
	BlockTimestamp  int64                  `json:"blockTimestamp"`
	LogIndex        uint32                 `json:"logIndex"`
	TransactionHash string                 `json:"transactionHash"`
	Params          map[string]interface{} `json:"params"`
}

// Replay feeds a recorded JSONL event log through the same decode-dispatch
// path as a live adapter, one record per line in file order, against hc's
// store. Used by cmd/dvnstats replay.
func Replay(ctx context.Context, r io.Reader, hc *handlers.Context) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec replayRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("ingest: replay line %d: %w", lineNo, err)
		}

		bctx := events.BlockContext{
			ChainID:     rec.ChainID,
			BlockNumber: rec.BlockNumber,
			LogIndex:    rec.LogIndex,
			Timestamp:   time.Unix(rec.BlockTimestamp, 0).UTC(),
			TxHash:      rec.TransactionHash,
		}

		ev, err := events.Decode(rec.Kind, bctx, events.RawPayload(rec.Params))
		if err != nil {
			hc.Metrics.EventSkipped(chainLabel(rec.ChainID), rec.Kind, "decode_error")
			obslog.WarnCtx(ctx, "replay: skipping line, decode failed",
				obslog.KeyKind, rec.Kind, "line", lineNo, obslog.KeyError, err)
			continue
		}

		if err := handlers.Dispatch(ctx, hc, *ev); err != nil {
			return fmt.Errorf("ingest: replay line %d: dispatch: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ingest: replay: %w", err)
	}
	return nil
}
