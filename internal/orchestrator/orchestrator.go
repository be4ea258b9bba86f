// Package orchestrator drives transfer discovery end to end.
// It selects strategies for a query, filters their output through the
// dedup coordinator, and delivers results in batch or streaming form.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-transfer-lab/internal/discovery"
	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/merge"
	"solana-transfer-lab/internal/observability"
	"solana-transfer-lab/internal/solana"
	"solana-transfer-lab/internal/storage"
)

// DefaultFlushThreshold is the buffered record count that triggers a
// streaming flush.
const DefaultFlushThreshold = 10

// Orchestrator coordinates discovery strategies for transfer queries.
// One instance serves many queries; per-query state (dedup seen-set,
// stream buffer, breaker) is created fresh each call.
type Orchestrator struct {
	rpc      solana.RPCClient
	searcher discovery.Searcher

	transferStore storage.TransferStore
	progressStore storage.ProgressStore

	flushThreshold int
	pace           time.Duration
	logger         *log.Logger
	now            func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required collaborators
	RPC      solana.RPCClient
	Searcher discovery.Searcher

	// Optional persistence. When nil, results are only returned.
	TransferStore storage.TransferStore
	ProgressStore storage.ProgressStore

	// Options
	FlushThreshold int           // Default: DefaultFlushThreshold
	Pace           time.Duration // Default: discovery.DefaultPace
	Logger         *log.Logger
	Now            func() time.Time // Default: time.Now, injectable for tests
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		rpc:            opts.RPC,
		searcher:       opts.Searcher,
		transferStore:  opts.TransferStore,
		progressStore:  opts.ProgressStore,
		flushThreshold: opts.FlushThreshold,
		pace:           opts.Pace,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if o.flushThreshold <= 0 {
		o.flushThreshold = DefaultFlushThreshold
	}
	if o.pace == 0 {
		o.pace = discovery.DefaultPace
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// GetTransfers runs a query to completion and returns the deduplicated
// result set, newest first.
//
// Unscoped queries try indexed-search, then block-scan, then sampling,
// keeping only the first non-empty result set. Scoped queries run
// indexed-search and the account scan and merge both. A failed
// connectivity check aborts the whole query.
func (o *Orchestrator) GetTransfers(ctx context.Context, q domain.Query) ([]domain.TransferRecord, error) {
	start := o.now()
	mode := queryMode(q)

	headSlot, err := o.checkConnectivity(ctx)
	if err != nil {
		observability.RecordQuery(mode, "error", o.now().Sub(start).Seconds())
		return nil, err
	}

	cutoffMs := q.CutoffMs(o.now())
	coord := merge.NewCoordinator()

	var records []domain.TransferRecord
	collect := func(found []domain.TransferRecord) {
		for _, r := range found {
			if coord.Add(r) {
				records = append(records, r)
			} else {
				observability.RecordDuplicateDropped()
			}
		}
	}

	if q.Scoped() {
		for _, s := range o.scopedStrategies(ctx, q) {
			found, err := o.runStrategy(ctx, s, q, cutoffMs)
			if err != nil {
				observability.RecordQuery(mode, "error", o.now().Sub(start).Seconds())
				return nil, err
			}
			collect(found)
		}
	} else {
		for _, s := range o.unscopedStrategies(ctx, q) {
			found, err := o.runStrategy(ctx, s, q, cutoffMs)
			if err != nil {
				observability.RecordQuery(mode, "error", o.now().Sub(start).Seconds())
				return nil, err
			}
			if len(found) > 0 {
				collect(found)
				break
			}
		}
	}

	merge.SortByTimeDesc(records)

	if err := o.persist(ctx, records); err != nil {
		o.logger.Printf("[orchestrator] persist failed: %v", err)
	}
	o.saveProgress(ctx, q, records, headSlot)

	observability.RecordQuery(mode, "success", o.now().Sub(start).Seconds())
	o.logger.Printf("[orchestrator] query mint=%s account=%q completed: %d transfers", q.Mint, q.Account, len(records))
	return records, nil
}

// StreamTransfers runs a query incrementally, delivering deduplicated
// batches to onBatch as they accumulate. Batches are flushed when the
// buffer reaches the flush threshold and when each strategy completes.
// The final flush happens before StreamTransfers returns, including on
// the error path.
//
// Unlike the batch path, unscoped streaming merges cumulatively: block-scan
// runs as a fallback only when indexed-search streamed nothing.
func (o *Orchestrator) StreamTransfers(ctx context.Context, q domain.Query, onBatch func(batch []domain.TransferRecord)) error {
	start := o.now()
	mode := "stream-" + queryMode(q)

	if _, err := o.checkConnectivity(ctx); err != nil {
		observability.RecordQuery(mode, "error", o.now().Sub(start).Seconds())
		return err
	}

	cutoffMs := q.CutoffMs(o.now())
	coord := merge.NewCoordinator()

	var buffer []domain.TransferRecord
	flush := func() {
		if len(buffer) == 0 {
			return
		}
		batch := make([]domain.TransferRecord, len(buffer))
		copy(batch, buffer)
		buffer = buffer[:0]
		observability.RecordStreamFlush(len(batch))
		if err := o.persist(ctx, batch); err != nil {
			o.logger.Printf("[orchestrator] persist failed: %v", err)
		}
		onBatch(batch)
	}

	total := 0
	push := func(found []domain.TransferRecord) {
		for _, r := range found {
			if !coord.Add(r) {
				observability.RecordDuplicateDropped()
				continue
			}
			buffer = append(buffer, r)
			total++
			if len(buffer) >= o.flushThreshold {
				flush()
			}
		}
	}

	var strategies []discovery.Strategy
	if q.Scoped() {
		strategies = o.scopedStrategies(ctx, q)
	} else {
		strategies = o.unscopedStrategies(ctx, q)
	}

	for i, s := range strategies {
		// Unscoped fallbacks only run while nothing has streamed yet.
		if !q.Scoped() && i > 0 && total > 0 {
			break
		}
		found, err := o.runStrategy(ctx, s, q, cutoffMs)
		if err != nil {
			flush()
			observability.RecordQuery(mode, "error", o.now().Sub(start).Seconds())
			return err
		}
		push(found)
		flush()
	}

	observability.RecordQuery(mode, "success", o.now().Sub(start).Seconds())
	o.logger.Printf("[orchestrator] stream mint=%s account=%q completed: %d transfers", q.Mint, q.Account, total)
	return nil
}

// checkConnectivity verifies the RPC node answers before any scan starts.
// Failure here is fatal for the query.
func (o *Orchestrator) checkConnectivity(ctx context.Context) (int64, error) {
	slot, err := o.rpc.GetSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("connectivity check: %w", err)
	}
	return slot, nil
}

// unscopedStrategies returns the token-wide fallthrough chain in priority
// order: indexed-search, block-scan, sampling.
func (o *Orchestrator) unscopedStrategies(ctx context.Context, q domain.Query) []discovery.Strategy {
	minSlot, _ := o.loadProgress(ctx, q)
	return []discovery.Strategy{
		discovery.NewIndexedSearch(discovery.IndexedOptions{
			Searcher: o.searcher,
			Pace:     o.pace,
			Logger:   o.logger,
			Now:      o.now,
		}),
		discovery.NewBlockScan(discovery.BlockScanOptions{
			RPC:     o.rpc,
			MinSlot: minSlot,
			Pace:    o.pace,
			Logger:  o.logger,
		}),
		discovery.NewSampling(discovery.SamplingOptions{
			RPC:    o.rpc,
			Pace:   o.pace,
			Logger: o.logger,
		}),
	}
}

// scopedStrategies returns the per-account pair whose results are merged:
// indexed-search filtered by account, then the direct account scan.
func (o *Orchestrator) scopedStrategies(ctx context.Context, q domain.Query) []discovery.Strategy {
	_, untilSig := o.loadProgress(ctx, q)
	return []discovery.Strategy{
		discovery.NewIndexedSearch(discovery.IndexedOptions{
			Searcher: o.searcher,
			Pace:     o.pace,
			Logger:   o.logger,
			Now:      o.now,
		}),
		discovery.NewAccountScan(discovery.AccountScanOptions{
			RPC:      o.rpc,
			UntilSig: untilSig,
			Pace:     o.pace,
			Logger:   o.logger,
		}),
	}
}

func (o *Orchestrator) runStrategy(ctx context.Context, s discovery.Strategy, q domain.Query, cutoffMs int64) ([]domain.TransferRecord, error) {
	found, err := s.Discover(ctx, q, cutoffMs)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.Name(), err)
	}
	o.logger.Printf("[orchestrator] strategy %s found %d transfers", s.Name(), len(found))
	return found, nil
}

// persist stores records when a TransferStore is configured. Duplicates
// already in the store are skipped by the store itself.
func (o *Orchestrator) persist(ctx context.Context, records []domain.TransferRecord) error {
	if o.transferStore == nil || len(records) == 0 {
		return nil
	}
	ptrs := make([]*domain.TransferRecord, len(records))
	for i := range records {
		r := records[i]
		ptrs[i] = &r
	}
	inserted, err := o.transferStore.InsertBulk(ctx, ptrs)
	if err != nil {
		return err
	}
	if inserted < len(records) {
		o.logger.Printf("[orchestrator] persisted %d/%d records (rest already stored)", inserted, len(records))
	}
	return nil
}

// loadProgress returns resume bounds from a previous run of the same scope,
// zero values when no run has completed or no progress store is configured.
func (o *Orchestrator) loadProgress(ctx context.Context, q domain.Query) (minSlot int64, untilSig string) {
	if o.progressStore == nil {
		return 0, ""
	}
	p, err := o.progressStore.Get(ctx, q.Mint, q.Account)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Printf("[orchestrator] load progress: %v", err)
		}
		return 0, ""
	}
	return p.LastSlot, p.LastSignature
}

// saveProgress records how far this run got so the next run can resume.
func (o *Orchestrator) saveProgress(ctx context.Context, q domain.Query, records []domain.TransferRecord, headSlot int64) {
	if o.progressStore == nil {
		return
	}
	p := &storage.ScanProgress{
		Mint:      q.Mint,
		Account:   q.Account,
		LastSlot:  headSlot,
		UpdatedMs: o.now().UnixMilli(),
	}
	if len(records) > 0 {
		// Records are sorted newest first at this point.
		p.LastSignature = records[0].Signature
	}
	if err := o.progressStore.Set(ctx, p); err != nil {
		o.logger.Printf("[orchestrator] save progress: %v", err)
	}
}

func queryMode(q domain.Query) string {
	if q.Scoped() {
		return "scoped"
	}
	return "unscoped"
}
