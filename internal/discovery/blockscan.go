package discovery

import (
	"context"
	"fmt"
	"log"
	"time"

	"solana-transfer-lab/internal/balance"
	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/observability"
	"solana-transfer-lab/internal/solana"
	"solana-transfer-lab/internal/synth"
)

// Block scan defaults.
const (
	DefaultMaxBlocks       = 120
	DefaultBlockMaxResults = 500
)

// BlockScanStrategy walks blocks backward from the chain head, running
// extraction and unscoped synthesis over every transaction. The only strategy
// that needs no external index; used as fallback for short lookback windows.
type BlockScanStrategy struct {
	rpc        solana.RPCClient
	maxBlocks  int
	maxResults int
	minSlot    int64 // stop at this slot, exclusive; 0 means no lower bound
	pace       time.Duration
	logger     *log.Logger
}

// BlockScanOptions configures BlockScanStrategy.
type BlockScanOptions struct {
	RPC        solana.RPCClient
	MaxBlocks  int           // Default: DefaultMaxBlocks
	MaxResults int           // Default: DefaultBlockMaxResults
	MinSlot    int64         // resume bound from a previous scan, 0 to disable
	Pace       time.Duration // Default: DefaultPace
	Logger     *log.Logger
}

// NewBlockScan creates a block-scan strategy.
func NewBlockScan(opts BlockScanOptions) *BlockScanStrategy {
	s := &BlockScanStrategy{
		rpc:        opts.RPC,
		maxBlocks:  opts.MaxBlocks,
		maxResults: opts.MaxResults,
		minSlot:    opts.MinSlot,
		pace:       opts.Pace,
		logger:     defaultLogger(opts.Logger),
	}
	if s.maxBlocks <= 0 {
		s.maxBlocks = DefaultMaxBlocks
	}
	if s.maxResults <= 0 {
		s.maxResults = DefaultBlockMaxResults
	}
	if s.pace == 0 {
		s.pace = DefaultPace
	}
	return s
}

// Name identifies the strategy in logs and metrics.
func (s *BlockScanStrategy) Name() string { return "block-scan" }

// Discover walks backward from the current head until the cutoff, the block
// budget, the resume bound, or the result ceiling is reached. Individual
// block fetch failures are logged and skipped.
func (s *BlockScanStrategy) Discover(ctx context.Context, q domain.Query, cutoffMs int64) ([]domain.TransferRecord, error) {
	head, err := s.rpc.GetSlot(ctx)
	if err != nil {
		return nil, fmt.Errorf("get head slot: %w", err)
	}

	var records []domain.TransferRecord

	for i := 0; i < s.maxBlocks; i++ {
		slot := head - int64(i)
		if slot <= 0 || slot <= s.minSlot {
			break
		}
		if len(records) >= s.maxResults {
			break
		}
		if i > 0 {
			if err := pause(ctx, s.pace); err != nil {
				return records, nil
			}
		}

		block, err := s.rpc.GetBlock(ctx, slot)
		if err != nil {
			observability.RecordUnitSkipped(s.Name(), "block_fetch")
			s.logger.Printf("[block-scan] slot %d fetch failed, skipping: %v", slot, err)
			continue
		}
		if block == nil {
			// Skipped slot
			continue
		}

		if block.BlockTime != nil && blockTimestampMs(*block.BlockTime) < cutoffMs {
			break
		}

		for _, tx := range block.Transactions {
			records = append(records, s.synthesizeTx(&tx, q)...)
			if len(records) >= s.maxResults {
				break
			}
		}
	}

	return records, nil
}

// synthesizeTx extracts deltas from one block transaction and synthesizes
// transfers in the mode matching the delta shape. Failed transactions and
// transactions without metadata produce nothing.
func (s *BlockScanStrategy) synthesizeTx(tx *solana.Transaction, q domain.Query) []domain.TransferRecord {
	if tx.Meta == nil || tx.Meta.Err != nil {
		return nil
	}

	pre := toDomainBalances(tx.Meta.PreTokenBalances)
	post := toDomainBalances(tx.Meta.PostTokenBalances)

	deltas := balance.ExtractDeltas(pre, post, q.Mint)
	if len(deltas) == 0 {
		return nil
	}

	decimals := balance.ResolveDecimals(append(pre, post...), q.Mint)
	txCtx := synth.TxContext{
		Signature:   tx.Signature,
		Slot:        tx.Slot,
		TimestampMs: blockTimestampMs(tx.BlockTime),
		Mint:        q.Mint,
	}

	records := synth.Synthesize(txCtx, deltas, decimals)
	for range records {
		observability.RecordTransferDiscovered(s.Name())
	}
	return records
}
