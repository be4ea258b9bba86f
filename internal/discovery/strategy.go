// Package discovery finds candidate transfers through interchangeable
// data-source strategies: the transfer-index search API, backward block
// scanning, and token-account sampling.
package discovery

import (
	"context"
	"log"
	"time"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/search"
	"solana-transfer-lab/internal/solana"
)

// Strategy discovers transfers within the lookback window, best-effort.
// Partial upstream failures are logged and skipped; Discover returns whatever
// was collected. A non-nil error means the strategy could not run at all.
type Strategy interface {
	Name() string
	Discover(ctx context.Context, q domain.Query, cutoffMs int64) ([]domain.TransferRecord, error)
}

// Searcher is the transfer-index API surface the indexed strategy consumes.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.EnrichedTransaction, error)
}

// DefaultPace is the fixed delay between consecutive calls to the same
// upstream collaborator, respecting shared rate limits.
const DefaultPace = 50 * time.Millisecond

// pause sleeps for d, returning early if ctx is cancelled.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// toDomainBalances converts RPC token balances to domain snapshots.
func toDomainBalances(balances []solana.TokenBalance) []domain.TokenBalance {
	out := make([]domain.TokenBalance, len(balances))
	for i, b := range balances {
		out[i] = domain.TokenBalance{
			AccountIndex: b.AccountIndex,
			Owner:        b.Owner,
			Mint:         b.Mint,
			RawAmount:    b.UITokenAmount.Amount,
			Decimals:     b.UITokenAmount.Decimals,
		}
	}
	return out
}

// blockTimestampMs converts a block time in seconds to milliseconds.
// Returns 0 when the block time is unknown.
func blockTimestampMs(blockTime int64) int64 {
	if blockTime <= 0 {
		return 0
	}
	return blockTime * 1000
}

func defaultLogger(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.Default()
	}
	return logger
}
