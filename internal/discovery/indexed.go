package discovery

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/observability"
	"solana-transfer-lab/internal/search"
)

// Indexed search defaults.
const (
	DefaultPageLimit  = 100
	DefaultMaxPages   = 10
	DefaultMaxResults = 500

	breakerThreshold = 3
	breakerWindow    = 30 * time.Second
	breakerCooldown  = 30 * time.Second
)

// IndexedSearchStrategy pages the transfer-index API newest-first using a
// before-signature cursor. The index already segments transfers, so pages map
// directly to records without balance-delta pairing.
//
// Instances carry per-query circuit breaker state and must not be shared
// across concurrent queries.
type IndexedSearchStrategy struct {
	searcher   Searcher
	pageLimit  int
	maxPages   int
	maxResults int
	pace       time.Duration
	logger     *log.Logger
	now        func() time.Time

	// Circuit breaker: after breakerThreshold rate-limit responses within a
	// rolling breakerWindow, requests stop until the cooldown passes.
	rateLimitHits []time.Time
	coolUntil     time.Time
}

// IndexedOptions configures IndexedSearchStrategy.
type IndexedOptions struct {
	Searcher   Searcher
	PageLimit  int           // Default: DefaultPageLimit
	MaxPages   int           // Default: DefaultMaxPages
	MaxResults int           // Default: DefaultMaxResults
	Pace       time.Duration // Default: DefaultPace
	Logger     *log.Logger
	Now        func() time.Time // Default: time.Now, injectable for tests
}

// NewIndexedSearch creates an indexed-search strategy with fresh breaker state.
func NewIndexedSearch(opts IndexedOptions) *IndexedSearchStrategy {
	s := &IndexedSearchStrategy{
		searcher:   opts.Searcher,
		pageLimit:  opts.PageLimit,
		maxPages:   opts.MaxPages,
		maxResults: opts.MaxResults,
		pace:       opts.Pace,
		logger:     defaultLogger(opts.Logger),
		now:        opts.Now,
	}
	if s.pageLimit <= 0 {
		s.pageLimit = DefaultPageLimit
	}
	if s.maxPages <= 0 {
		s.maxPages = DefaultMaxPages
	}
	if s.maxResults <= 0 {
		s.maxResults = DefaultMaxResults
	}
	if s.pace == 0 {
		s.pace = DefaultPace
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Name identifies the strategy in logs and metrics.
func (s *IndexedSearchStrategy) Name() string { return "indexed-search" }

// Discover pages the index until the cutoff, a page budget, or the result
// ceiling is reached. Rate-limited pages are skipped and the scan continues
// until the breaker opens; other failures end the scan with whatever was
// collected.
func (s *IndexedSearchStrategy) Discover(ctx context.Context, q domain.Query, cutoffMs int64) ([]domain.TransferRecord, error) {
	var records []domain.TransferRecord
	cursor := ""

	for page := 0; page < s.maxPages; page++ {
		if len(records) >= s.maxResults {
			break
		}
		if s.breakerOpen() {
			s.logger.Printf("[indexed-search] breaker open, cooling down until %s", s.coolUntil.Format(time.RFC3339))
			break
		}
		if page > 0 {
			if err := pause(ctx, s.pace); err != nil {
				return records, nil
			}
		}

		req := search.Request{
			Query: search.Query{
				Mints: []string{q.Mint},
				Types: []string{search.TypeTransfer},
			},
			Options: search.Options{
				Limit:      s.pageLimit,
				SortOrder:  search.SortOrderDesc,
				Commitment: search.CommitmentConfirmed,
			},
			Before: cursor,
		}
		if q.Account != "" {
			req.Query.Accounts = []string{q.Account}
		}

		start := s.now()
		results, err := s.searcher.Search(ctx, req)
		observability.RecordSearchLatency(s.now().Sub(start).Seconds())
		if err != nil {
			if errors.Is(err, search.ErrRateLimited) {
				s.recordRateLimits(rateLimitCount(err))
				s.logger.Printf("[indexed-search] page %d rate limited, continuing: %v", page, err)
				continue
			}
			s.logger.Printf("[indexed-search] page %d failed, keeping %d records: %v", page, len(records), err)
			break
		}
		if len(results) == 0 {
			break
		}

		crossedCutoff := false
		for _, tx := range results {
			ts := blockTimestampMs(tx.Timestamp)
			if ts > 0 && ts < cutoffMs {
				crossedCutoff = true
				break
			}
			for _, tr := range tx.TokenTransfers {
				if tr.Mint != q.Mint {
					continue
				}
				rec := mapIndexedTransfer(tx, tr, q)
				if rec == nil {
					continue
				}
				records = append(records, *rec)
				observability.RecordTransferDiscovered(s.Name())
				if len(records) >= s.maxResults {
					break
				}
			}
			if len(records) >= s.maxResults {
				break
			}
		}
		if crossedCutoff || len(results) < s.pageLimit {
			break
		}
		cursor = results[len(results)-1].Signature
	}

	return records, nil
}

// mapIndexedTransfer maps one index-resolved transfer leg to a record.
// Candidates with non-positive or non-finite amounts are dropped.
func mapIndexedTransfer(tx search.EnrichedTransaction, tr search.TokenTransfer, q domain.Query) *domain.TransferRecord {
	if math.IsNaN(tr.TokenAmount) || math.IsInf(tr.TokenAmount, 0) {
		return nil
	}
	amount := decimal.NewFromFloat(tr.TokenAmount)
	if !amount.IsPositive() {
		return nil
	}

	from := tr.FromUserAccount
	if from == "" {
		from = domain.UnknownEntity
	}
	to := tr.ToUserAccount
	if to == "" {
		to = domain.UnknownEntity
	}

	rec := domain.TransferRecord{
		Signature:   tx.Signature,
		TimestampMs: blockTimestampMs(tx.Timestamp),
		Amount:      amount,
		From:        from,
		To:          to,
		Slot:        tx.Slot,
		Mint:        tr.Mint,
	}
	if q.Account != "" {
		if to == q.Account {
			rec.Direction = domain.DirectionReceived
		} else if from == q.Account {
			rec.Direction = domain.DirectionSent
		}
	}
	return &rec
}

// breakerOpen reports whether the cooldown window is active.
func (s *IndexedSearchStrategy) breakerOpen() bool {
	return s.now().Before(s.coolUntil)
}

// recordRateLimits registers n rate-limit responses, stopping early once the
// breaker trips. A single exhausted search call can absorb several 429s and
// every one of them counts toward the window.
func (s *IndexedSearchStrategy) recordRateLimits(n int) {
	for i := 0; i < n && !s.breakerOpen(); i++ {
		s.recordRateLimit()
	}
}

// rateLimitCount extracts the 429 count from a search error, defaulting to
// one for bare sentinel errors.
func rateLimitCount(err error) int {
	var rl *search.RateLimitError
	if errors.As(err, &rl) && rl.Hits > 0 {
		return rl.Hits
	}
	return 1
}

// recordRateLimit registers one rate-limit response and trips the breaker
// when the rolling window fills.
func (s *IndexedSearchStrategy) recordRateLimit() {
	now := s.now()

	kept := s.rateLimitHits[:0]
	for _, hit := range s.rateLimitHits {
		if now.Sub(hit) <= breakerWindow {
			kept = append(kept, hit)
		}
	}
	s.rateLimitHits = append(kept, now)

	if len(s.rateLimitHits) >= breakerThreshold {
		s.coolUntil = now.Add(breakerCooldown)
		s.rateLimitHits = s.rateLimitHits[:0]
		observability.RecordBreakerTrip()
		s.logger.Printf("[indexed-search] breaker tripped, cooling down for %s", breakerCooldown)
	}
}
