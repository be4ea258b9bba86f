package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/idhash"
	"solana-transfer-lab/internal/observability"
)

// TransferArchiveStore sinks reconstructed transfers into ClickHouse for
// analytics. The archive is append-only; the table's ReplacingMergeTree
// collapses replays of the same transfer key in the background.
type TransferArchiveStore struct {
	conn *Conn
}

// NewTransferArchiveStore creates a new TransferArchiveStore.
func NewTransferArchiveStore(conn *Conn) *TransferArchiveStore {
	return &TransferArchiveStore{conn: conn}
}

// InsertBatch appends transfers to the archive in one native batch.
func (s *TransferArchiveStore) InsertBatch(ctx context.Context, transfers []*domain.TransferRecord) (err error) {
	if len(transfers) == 0 {
		return nil
	}

	defer func(start time.Time) {
		observability.RecordDBQuery("clickhouse", "insert_archive", time.Since(start).Seconds(), err)
	}(time.Now())

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transfer_archive (
			transfer_key, signature, timestamp_ms, direction, amount, from_owner, to_owner, slot, mint
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range transfers {
		key := idhash.ComputeTransferKey(t.Signature, t.From, t.To, t.Amount)
		amount, _ := t.Amount.Float64()
		err = batch.Append(
			key, t.Signature, uint64(t.TimestampMs), string(t.Direction),
			amount, t.From, t.To, uint64(t.Slot), t.Mint,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves archived transfers for a mint within [startMs, endMs],
// newest first.
func (s *TransferArchiveStore) GetByMint(ctx context.Context, mint string, startMs, endMs int64) ([]*domain.TransferRecord, error) {
	query := `
		SELECT signature, timestamp_ms, direction, amount, from_owner, to_owner, slot, mint
		FROM transfer_archive
		WHERE mint = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms DESC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, mint, uint64(startMs), uint64(endMs))
	observability.RecordDBQuery("clickhouse", "get_by_mint", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query transfer archive: %w", err)
	}
	defer rows.Close()

	var result []*domain.TransferRecord
	for rows.Next() {
		var (
			t           domain.TransferRecord
			timestampMs uint64
			direction   string
			amount      float64
			slot        uint64
		)
		err := rows.Scan(&t.Signature, &timestampMs, &direction, &amount, &t.From, &t.To, &slot, &t.Mint)
		if err != nil {
			return nil, fmt.Errorf("scan archived transfer: %w", err)
		}
		t.TimestampMs = int64(timestampMs)
		t.Direction = domain.Direction(direction)
		t.Amount = decimal.NewFromFloat(amount)
		t.Slot = int64(slot)
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived transfers: %w", err)
	}

	return result, nil
}
