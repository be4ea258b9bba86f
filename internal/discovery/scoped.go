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

// Scoped scan defaults.
const (
	DefaultScopedSigLimit   = 50
	DefaultScopedMaxResults = 200
	DefaultSubAccountCap    = 10
	tokenAccountOwnerOffset = 32
)

// AccountScanStrategy reconstructs transfers for one account by walking the
// signatures of the account itself and of each of its token sub-accounts,
// running scoped synthesis on every touched transaction.
type AccountScanStrategy struct {
	rpc           solana.RPCClient
	sigLimit      int
	maxResults    int
	subAccountCap int
	untilSig      string // resume bound: stop at this previously-seen signature
	pace          time.Duration
	logger        *log.Logger
}

// AccountScanOptions configures AccountScanStrategy.
type AccountScanOptions struct {
	RPC           solana.RPCClient
	SigLimit      int    // Default: DefaultScopedSigLimit
	MaxResults    int    // Default: DefaultScopedMaxResults
	SubAccountCap int    // Default: DefaultSubAccountCap
	UntilSig      string // resume bound from the progress store, empty to disable
	Pace          time.Duration
	Logger        *log.Logger
}

// NewAccountScan creates a per-account scan strategy.
func NewAccountScan(opts AccountScanOptions) *AccountScanStrategy {
	s := &AccountScanStrategy{
		rpc:           opts.RPC,
		sigLimit:      opts.SigLimit,
		maxResults:    opts.MaxResults,
		subAccountCap: opts.SubAccountCap,
		untilSig:      opts.UntilSig,
		pace:          opts.Pace,
		logger:        defaultLogger(opts.Logger),
	}
	if s.sigLimit <= 0 {
		s.sigLimit = DefaultScopedSigLimit
	}
	if s.maxResults <= 0 {
		s.maxResults = DefaultScopedMaxResults
	}
	if s.subAccountCap <= 0 {
		s.subAccountCap = DefaultSubAccountCap
	}
	if s.pace == 0 {
		s.pace = DefaultPace
	}
	return s
}

// Name identifies the strategy in logs and metrics.
func (s *AccountScanStrategy) Name() string { return "account-scan" }

// Discover scans the account's own signatures and each token sub-account's
// signatures, merging whatever synthesis yields. Returns an error only when
// the query is not account-scoped.
func (s *AccountScanStrategy) Discover(ctx context.Context, q domain.Query, cutoffMs int64) ([]domain.TransferRecord, error) {
	if q.Account == "" {
		return nil, fmt.Errorf("account scan requires a scoped query")
	}

	addresses := []string{q.Account}
	addresses = append(addresses, s.tokenSubAccounts(ctx, q)...)

	var records []domain.TransferRecord
	seenTx := make(map[string]bool)

	for i, addr := range addresses {
		if len(records) >= s.maxResults {
			break
		}
		if i > 0 {
			if err := pause(ctx, s.pace); err != nil {
				return records, nil
			}
		}

		sigs, err := s.rpc.GetSignaturesForAddress(ctx, addr, &solana.SignaturesOpts{
			Limit: s.sigLimit,
			Until: s.untilSig,
		})
		if err != nil {
			observability.RecordUnitSkipped(s.Name(), "signatures")
			s.logger.Printf("[account-scan] signatures for %s failed, skipping: %v", addr, err)
			continue
		}

		for _, sig := range sigs {
			if sig.Err != nil || seenTx[sig.Signature] {
				continue
			}
			if sig.BlockTime != nil && blockTimestampMs(*sig.BlockTime) < cutoffMs {
				break
			}
			seenTx[sig.Signature] = true

			if err := pause(ctx, s.pace); err != nil {
				return records, nil
			}
			tx, err := s.rpc.GetTransaction(ctx, sig.Signature)
			if err != nil {
				observability.RecordUnitSkipped(s.Name(), "transaction")
				s.logger.Printf("[account-scan] transaction %s failed, skipping: %v", sig.Signature, err)
				continue
			}
			if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
				continue
			}
			if blockTimestampMs(tx.BlockTime) < cutoffMs {
				continue
			}

			if rec := s.synthesizeScoped(tx, q); rec != nil {
				records = append(records, *rec)
				observability.RecordTransferDiscovered(s.Name())
				if len(records) >= s.maxResults {
					break
				}
			}
		}
	}

	return records, nil
}

// tokenSubAccounts enumerates the account's token sub-accounts for the mint,
// bounded by subAccountCap. Failures degrade to scanning the owner only.
func (s *AccountScanStrategy) tokenSubAccounts(ctx context.Context, q domain.Query) []string {
	dataSize := int64(tokenacct.AccountSize)
	filters := []solana.AccountFilter{
		{DataSize: &dataSize},
		{Memcmp: &solana.Memcmp{Offset: tokenAccountOwnerOffset, Bytes: q.Account}},
	}

	accounts, err := s.rpc.GetProgramAccounts(ctx, solana.TokenProgramID, filters)
	if err != nil {
		observability.RecordUnitSkipped(s.Name(), "sub_accounts")
		s.logger.Printf("[account-scan] sub-account lookup for %s failed: %v", q.Account, err)
		return nil
	}

	var addrs []string
	for _, acct := range accounts {
		parsed, err := tokenacct.ParseBase64(acct.Data)
		if err != nil || parsed.Mint != q.Mint {
			continue
		}
		addrs = append(addrs, acct.Pubkey)
		if len(addrs) >= s.subAccountCap {
			break
		}
	}
	return addrs
}

// synthesizeScoped extracts deltas and resolves the scoped record for one
// transaction.
func (s *AccountScanStrategy) synthesizeScoped(tx *solana.Transaction, q domain.Query) *domain.TransferRecord {
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

	return synth.Scoped(txCtx, deltas, q.Account, decimals)
}
