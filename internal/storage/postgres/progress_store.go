package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-transfer-lab/internal/observability"
	"solana-transfer-lab/internal/storage"
)

// ProgressStore implements storage.ProgressStore using PostgreSQL.
type ProgressStore struct {
	pool *Pool
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(pool *Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProgressStore = (*ProgressStore)(nil)

// Get returns the progress for a scope. Returns ErrNotFound if absent.
func (s *ProgressStore) Get(ctx context.Context, mint, account string) (*storage.ScanProgress, error) {
	query := `
		SELECT mint, account, last_signature, last_slot, updated_ms
		FROM scan_progress
		WHERE mint = $1 AND account = $2
	`

	var p storage.ScanProgress
	start := time.Now()
	err := s.pool.QueryRow(ctx, query, mint, account).Scan(
		&p.Mint, &p.Account, &p.LastSignature, &p.LastSlot, &p.UpdatedMs,
	)
	if err != nil {
		if isNotFoundError(err) {
			// Absence is a normal outcome, not a query error.
			observability.RecordDBQuery("postgres", "get_progress", time.Since(start).Seconds(), nil)
			return nil, storage.ErrNotFound
		}
		observability.RecordDBQuery("postgres", "get_progress", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("get scan progress: %w", err)
	}
	observability.RecordDBQuery("postgres", "get_progress", time.Since(start).Seconds(), nil)
	return &p, nil
}

// Set upserts the progress for a scope.
func (s *ProgressStore) Set(ctx context.Context, p *storage.ScanProgress) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO scan_progress (mint, account, last_signature, last_slot, updated_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mint, account) DO UPDATE SET
			last_signature = EXCLUDED.last_signature,
			last_slot = EXCLUDED.last_slot,
			updated_ms = EXCLUDED.updated_ms
	`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query, p.Mint, p.Account, p.LastSignature, p.LastSlot, p.UpdatedMs)
	observability.RecordDBQuery("postgres", "set_progress", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("set scan progress: %w", err)
	}
	return nil
}
