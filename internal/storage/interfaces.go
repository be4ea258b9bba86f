package storage

import (
	"context"

	"solana-transfer-lab/internal/domain"
)

// TransferStore persists reconstructed transfer records, keyed by the
// deterministic dedup key (signature, from, to, amount).
type TransferStore interface {
	// Insert adds a new transfer. Returns ErrDuplicateKey if the key exists.
	Insert(ctx context.Context, t *domain.TransferRecord) error

	// InsertBulk adds records, silently skipping keys that already exist.
	// Returns the number of records actually inserted.
	InsertBulk(ctx context.Context, transfers []*domain.TransferRecord) (int, error)

	// GetByMint retrieves up to limit transfers for a mint, newest first.
	GetByMint(ctx context.Context, mint string, limit int) ([]*domain.TransferRecord, error)

	// GetByAccount retrieves up to limit transfers where the account is
	// sender or receiver, newest first.
	GetByAccount(ctx context.Context, mint, account string, limit int) ([]*domain.TransferRecord, error)

	// GetByTimeRange retrieves transfers for a mint within [startMs, endMs]
	// (inclusive), newest first.
	GetByTimeRange(ctx context.Context, mint string, startMs, endMs int64) ([]*domain.TransferRecord, error)
}

// ScanProgress records how far discovery got for one (mint, account) scope,
// so repeated queries resume instead of rescanning.
type ScanProgress struct {
	Mint          string // token mint address
	Account       string // empty for token-wide scans
	LastSignature string // newest signature seen by the previous run
	LastSlot      int64  // head slot at the end of the previous run
	UpdatedMs     int64  // Unix timestamp in milliseconds
}

// ProgressStore persists discovery resume points.
type ProgressStore interface {
	// Get returns the progress for a scope. Returns ErrNotFound if no run
	// has completed yet.
	Get(ctx context.Context, mint, account string) (*ScanProgress, error)

	// Set upserts the progress for a scope.
	Set(ctx context.Context, p *ScanProgress) error
}
