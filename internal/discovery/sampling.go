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
	"solana-transfer-lab/internal/tokenacct"
)

// Sampling defaults.
const (
	DefaultSampleCap        = 25
	DefaultSigsPerAccount   = 10
	DefaultSampleMaxResults = 200
	tokenAccountMintOffset  = 0
)

// SamplingStrategy enumerates token accounts for a mint through a structural
// account filter, probes a bounded sample of them for recent signatures, and
// synthesizes transfers from the touched transactions. Last-resort fallback
// for tokens with no index coverage and quiet recent blocks.
type SamplingStrategy struct {
	rpc            solana.RPCClient
	sampleCap      int
	sigsPerAccount int
	maxResults     int
	pace           time.Duration
	logger         *log.Logger
}

// SamplingOptions configures SamplingStrategy.
type SamplingOptions struct {
	RPC            solana.RPCClient
	SampleCap      int           // Default: DefaultSampleCap
	SigsPerAccount int           // Default: DefaultSigsPerAccount
	MaxResults     int           // Default: DefaultSampleMaxResults
	Pace           time.Duration // Default: DefaultPace
	Logger         *log.Logger
}

// NewSampling creates a sampling strategy.
func NewSampling(opts SamplingOptions) *SamplingStrategy {
	s := &SamplingStrategy{
		rpc:            opts.RPC,
		sampleCap:      opts.SampleCap,
		sigsPerAccount: opts.SigsPerAccount,
		maxResults:     opts.MaxResults,
		pace:           opts.Pace,
		logger:         defaultLogger(opts.Logger),
	}
	if s.sampleCap <= 0 {
		s.sampleCap = DefaultSampleCap
	}
	if s.sigsPerAccount <= 0 {
		s.sigsPerAccount = DefaultSigsPerAccount
	}
	if s.maxResults <= 0 {
		s.maxResults = DefaultSampleMaxResults
	}
	if s.pace == 0 {
		s.pace = DefaultPace
	}
	return s
}

// Name identifies the strategy in logs and metrics.
func (s *SamplingStrategy) Name() string { return "sampling" }

// Discover samples token accounts holding the mint and synthesizes transfers
// from their recent transactions within the cutoff. Per-account failures are
// logged and skipped.
func (s *SamplingStrategy) Discover(ctx context.Context, q domain.Query, cutoffMs int64) ([]domain.TransferRecord, error) {
	dataSize := int64(tokenacct.AccountSize)
	filters := []solana.AccountFilter{
		{DataSize: &dataSize},
		{Memcmp: &solana.Memcmp{Offset: tokenAccountMintOffset, Bytes: q.Mint}},
	}

	accounts, err := s.rpc.GetProgramAccounts(ctx, solana.TokenProgramID, filters)
	if err != nil {
		return nil, fmt.Errorf("enumerate token accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}

	sampled := sampleEvenStride(accounts, s.sampleCap)

	var records []domain.TransferRecord
	seenTx := make(map[string]bool)

	for i, acct := range sampled {
		if len(records) >= s.maxResults {
			break
		}
		if i > 0 {
			if err := pause(ctx, s.pace); err != nil {
				return records, nil
			}
		}

		// Verify the account really matches the structural filter before
		// spending signature probes on it.
		parsed, err := tokenacct.ParseBase64(acct.Data)
		if err != nil || parsed.Mint != q.Mint {
			observability.RecordUnitSkipped(s.Name(), "account_parse")
			continue
		}

		sigs, err := s.rpc.GetSignaturesForAddress(ctx, acct.Pubkey, &solana.SignaturesOpts{Limit: s.sigsPerAccount})
		if err != nil {
			observability.RecordUnitSkipped(s.Name(), "signatures")
			s.logger.Printf("[sampling] signatures for %s failed, skipping: %v", acct.Pubkey, err)
			continue
		}

		for _, sig := range sigs {
			if sig.Err != nil || seenTx[sig.Signature] {
				continue
			}
			if sig.BlockTime != nil && blockTimestampMs(*sig.BlockTime) < cutoffMs {
				// Signatures are newest-first; everything older is out of window.
				break
			}
			seenTx[sig.Signature] = true

			if err := pause(ctx, s.pace); err != nil {
				return records, nil
			}
			tx, err := s.rpc.GetTransaction(ctx, sig.Signature)
			if err != nil {
				observability.RecordUnitSkipped(s.Name(), "transaction")
				s.logger.Printf("[sampling] transaction %s failed, skipping: %v", sig.Signature, err)
				continue
			}
			if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
				continue
			}
			if blockTimestampMs(tx.BlockTime) < cutoffMs {
				continue
			}

			records = append(records, s.synthesizeTx(tx, q)...)
			if len(records) >= s.maxResults {
				break
			}
		}
	}

	return records, nil
}

// synthesizeTx runs extraction and shape-aware synthesis over one transaction.
func (s *SamplingStrategy) synthesizeTx(tx *solana.Transaction, q domain.Query) []domain.TransferRecord {
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

// sampleEvenStride deterministically down-samples accounts to at most limit
// entries using an even stride through the full list.
func sampleEvenStride(accounts []solana.ProgramAccount, limit int) []solana.ProgramAccount {
	if len(accounts) <= limit {
		return accounts
	}
	sampled := make([]solana.ProgramAccount, 0, limit)
	stride := float64(len(accounts)) / float64(limit)
	for i := 0; i < limit; i++ {
		sampled = append(sampled, accounts[int(float64(i)*stride)])
	}
	return sampled
}
