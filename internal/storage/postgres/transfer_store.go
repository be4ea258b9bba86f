package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/idhash"
	"solana-transfer-lab/internal/observability"
	"solana-transfer-lab/internal/storage"
)

// TransferStore implements storage.TransferStore using PostgreSQL.
type TransferStore struct {
	pool *Pool
}

// NewTransferStore creates a new TransferStore.
func NewTransferStore(pool *Pool) *TransferStore {
	return &TransferStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransferStore = (*TransferStore)(nil)

const transferColumns = `transfer_key, signature, timestamp_ms, direction, amount, from_owner, to_owner, slot, mint`

// Insert adds a new transfer. Returns ErrDuplicateKey if the key exists.
func (s *TransferStore) Insert(ctx context.Context, t *domain.TransferRecord) error {
	if t == nil || t.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transfers (
			transfer_key, signature, timestamp_ms, direction, amount, from_owner, to_owner, slot, mint
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	key := idhash.ComputeTransferKey(t.Signature, t.From, t.To, t.Amount)
	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		key,
		t.Signature,
		t.TimestampMs,
		string(t.Direction),
		t.Amount.String(),
		t.From,
		t.To,
		t.Slot,
		t.Mint,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			// Duplicates are expected during reruns, not query errors.
			observability.RecordDBQuery("postgres", "insert_transfer", time.Since(start).Seconds(), nil)
			return storage.ErrDuplicateKey
		}
		observability.RecordDBQuery("postgres", "insert_transfer", time.Since(start).Seconds(), err)
		return fmt.Errorf("insert transfer: %w", err)
	}
	observability.RecordDBQuery("postgres", "insert_transfer", time.Since(start).Seconds(), nil)
	return nil
}

// InsertBulk adds records, skipping keys that already exist.
func (s *TransferStore) InsertBulk(ctx context.Context, transfers []*domain.TransferRecord) (int, error) {
	if len(transfers) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO transfers (
			transfer_key, signature, timestamp_ms, direction, amount, from_owner, to_owner, slot, mint
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transfer_key) DO NOTHING
	`

	start := time.Now()
	var bulkErr error
	defer func() {
		observability.RecordDBQuery("postgres", "insert_bulk", time.Since(start).Seconds(), bulkErr)
	}()

	var inserted int
	for _, t := range transfers {
		if t == nil || t.Signature == "" {
			return inserted, storage.ErrInvalidInput
		}
		key := idhash.ComputeTransferKey(t.Signature, t.From, t.To, t.Amount)
		tag, err := s.pool.Exec(ctx, query,
			key,
			t.Signature,
			t.TimestampMs,
			string(t.Direction),
			t.Amount.String(),
			t.From,
			t.To,
			t.Slot,
			t.Mint,
		)
		if err != nil {
			bulkErr = err
			return inserted, fmt.Errorf("insert transfer %s: %w", t.Signature, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// GetByMint retrieves up to limit transfers for a mint, newest first.
func (s *TransferStore) GetByMint(ctx context.Context, mint string, limit int) ([]*domain.TransferRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transfers
		WHERE mint = $1
		ORDER BY timestamp_ms DESC, signature ASC
		LIMIT $2
	`, transferColumns)

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, mint, effectiveLimit(limit))
	observability.RecordDBQuery("postgres", "get_by_mint", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get transfers by mint: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// GetByAccount retrieves transfers where the account is sender or receiver.
func (s *TransferStore) GetByAccount(ctx context.Context, mint, account string, limit int) ([]*domain.TransferRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transfers
		WHERE mint = $1 AND (from_owner = $2 OR to_owner = $2)
		ORDER BY timestamp_ms DESC, signature ASC
		LIMIT $3
	`, transferColumns)

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, mint, account, effectiveLimit(limit))
	observability.RecordDBQuery("postgres", "get_by_account", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get transfers by account: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// GetByTimeRange retrieves transfers within [startMs, endMs] inclusive.
func (s *TransferStore) GetByTimeRange(ctx context.Context, mint string, startMs, endMs int64) ([]*domain.TransferRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transfers
		WHERE mint = $1 AND timestamp_ms >= $2 AND timestamp_ms <= $3
		ORDER BY timestamp_ms DESC, signature ASC
	`, transferColumns)

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, mint, startMs, endMs)
	observability.RecordDBQuery("postgres", "get_by_time_range", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("get transfers by time range: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

// scanTransfers reads all rows into transfer records.
func scanTransfers(rows pgx.Rows) ([]*domain.TransferRecord, error) {
	var result []*domain.TransferRecord
	for rows.Next() {
		var (
			key       string
			t         domain.TransferRecord
			direction string
			amount    string
		)
		err := rows.Scan(&key, &t.Signature, &t.TimestampMs, &direction, &amount, &t.From, &t.To, &t.Slot, &t.Mint)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.Direction = domain.Direction(direction)
		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse stored amount %q: %w", amount, err)
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return result, nil
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return 1000
	}
	return limit
}
