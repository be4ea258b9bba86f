package discovery

import (
	"context"
	"math"
	"testing"
	"time"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/search"
	searchstub "solana-transfer-lab/internal/search/stub"
)

const tsSec = int64(1700000000)

func enriched(sig string, slot, tsOffset int64, transfers ...search.TokenTransfer) search.EnrichedTransaction {
	return search.EnrichedTransaction{
		Signature:      sig,
		Slot:           slot,
		Timestamp:      tsSec + tsOffset,
		TokenTransfers: transfers,
	}
}

func leg(from, to string, amount float64) search.TokenTransfer {
	return search.TokenTransfer{FromUserAccount: from, ToUserAccount: to, TokenAmount: amount, Mint: testMint}
}

func TestIndexedSearch_SinglePage(t *testing.T) {
	stub := searchstub.NewSearcher([]search.EnrichedTransaction{
		enriched("sig1", 100, 0, leg("Alice", "Bob", 600)),
		enriched("sig2", 99, -1, leg("Carol", "Dave", 10)),
	})

	s := NewIndexedSearch(IndexedOptions{Searcher: stub, Pace: time.Nanosecond, Logger: quietLogger})

	records, err := s.Discover(context.Background(), domain.Query{Mint: testMint}, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Signature != "sig1" || records[0].From != "Alice" || records[0].To != "Bob" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[0].TimestampMs != tsSec*1000 {
		t.Errorf("expected ms timestamp %d, got %d", tsSec*1000, records[0].TimestampMs)
	}
}

func TestIndexedSearch_PaginatesWithBeforeCursor(t *testing.T) {
	page1 := []search.EnrichedTransaction{
		enriched("sig1", 100, 0, leg("A", "B", 1)),
		enriched("sig2", 99, -1, leg("C", "D", 2)),
	}
	page2 := []search.EnrichedTransaction{
		enriched("sig3", 98, -2, leg("E", "F", 3)),
	}
	stub := searchstub.NewSearcher(page1, page2)

	s := NewIndexedSearch(IndexedOptions{
		Searcher:  stub,
		PageLimit: 2,
		Pace:      time.Nanosecond,
		Logger:    quietLogger,
	})

	records, err := s.Discover(context.Background(), domain.Query{Mint: testMint}, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("Expected 3 records across pages, got %d", len(records))
	}
	if len(stub.Requests) != 2 {
		t.Fatalf("Expected 2 page requests, got %d", len(stub.Requests))
	}
	if stub.Requests[0].Before != "" {
		t.Errorf("First page should have no cursor, got %q", stub.Requests[0].Before)
	}
	if stub.Requests[1].Before != "sig2" {
		t.Errorf("Second page cursor should be the last signature of page one, got %q", stub.Requests[1].Before)
	}
	// A short page means the index is exhausted; no third request.
}

func TestIndexedSearch_StopsAtCutoff(t *testing.T) {
	cutoffMs := (tsSec - 50) * 1000
	stub := searchstub.NewSearcher([]search.EnrichedTransaction{
		enriched("sig1", 100, 0, leg("A", "B", 1)),
		enriched("sig2", 99, -100, leg("C", "D", 2)), // older than cutoff
	}, []search.EnrichedTransaction{
		enriched("sig3", 98, -200, leg("E", "F", 3)),
	})

	s := NewIndexedSearch(IndexedOptions{
		Searcher:  stub,
		PageLimit: 2,
		Pace:      time.Nanosecond,
		Logger:    quietLogger,
	})

	records, err := s.Discover(context.Background(), domain.Query{Mint: testMint}, cutoffMs)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected 1 record inside the window, got %d", len(records))
	}
	if len(stub.Requests) != 1 {
		t.Errorf("Crossing the cutoff should stop paging, got %d requests", len(stub.Requests))
	}
}

func TestIndexedSearch_ResultBudget(t *testing.T) {
	page := []search.EnrichedTransaction{
		enriched("sig1", 100, 0, leg("A", "B", 1), leg("C", "D", 2), leg("E", "F", 3)),
	}
	stub := searchstub.NewSearcher(page)

	s := NewIndexedSearch(IndexedOptions{
		Searcher:   stub,
		MaxResults: 2,
		Pace:       time.Nanosecond,
		Logger:     quietLogger,
	})

	records, err := s.Discover(context.Background(), domain.Query{Mint: testMint}, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected the budget to cap results at 2, got %d", len(records))
	}
}

func TestIndexedSearch_ScopedDirection(t *testing.T) {
	stub := searchstub.NewSearcher([]search.EnrichedTransaction{
		enriched("sig1", 100, 0, leg("Alice", "Bob", 600)),
		enriched("sig2", 99, -1, leg("Bob", "Carol", 100)),
	})

	s := NewIndexedSearch(IndexedOptions{Searcher: stub, Pace: time.Nanosecond, Logger: quietLogger})

	records, err := s.Discover(context.Background(), domain.Query{Mint: testMint, Account: "Bob"}, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Direction != domain.DirectionReceived {
		t.Errorf("sig1: expected received, got %s", records[0].Direction)
	}
	if records[1].Direction != domain.DirectionSent {
		t.Errorf("sig2: expected sent, got %s", records[1].Direction)
	}
}

func TestIndexedSearch_FilterOtherMints(t *testing.T) {
	stub := searchstub.NewSearcher([]search.EnrichedTransaction{
		enriched("sig1", 100, 0,
			leg("A", "B", 1),
			search.TokenTransfer{FromUserAccount: "C", ToUserAccount: "D", TokenAmount: 2, Mint: otherMint},
		),
	})

	s := NewIndexedSearch(IndexedOptions{Searcher: stub, Pace: time.Nanosecond, Logger: quietLogger})

	records, err := s.Discover(context.Background(), domain.Query{Mint: testMint}, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record for the queried mint, got %d", len(records))
	}
}

func TestIndexedSearch_NonPositiveAmountDropped(t *testing.T) {
	stub := searchstub.NewSearcher([]search.EnrichedTransaction{
		enriched("sig1", 100, 0,
			leg("A", "B", 0), leg("C", "D", -5), leg("E", "F", 7),
			leg("G", "H", math.NaN()), leg("I", "J", math.Inf(1))),
	})

	s := NewIndexedSearch(IndexedOptions{Searcher: stub, Pace: time.Nanosecond, Logger: quietLogger})

	records, err := s.Discover(context.Background(), domain.Query{Mint: testMint}, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected only the positive-amount record, got %d", len(records))
	}
	if !records[0].Amount.IsPositive() {
		t.Errorf("Emitted non-positive amount %s", records[0].Amount)
	}
}

func TestIndexedSearch_TransientErrorKeepsPartial(t *testing.T) {
	stub := searchstub.NewSearcher([]search.EnrichedTransaction{
		enriched("sig1", 100, 0, leg("A", "B", 1)),
		enriched("sig2", 99, -1, leg("C", "D", 2)),
	})
	stub.Err = context.DeadlineExceeded
	stub.FailFrom = 1

	s := NewIndexedSearch(IndexedOptions{
		Searcher:  stub,
		PageLimit: 2,
		Pace:      time.Nanosecond,
		Logger:    quietLogger,
	})

	records, err := s.Discover(context.Background(), domain.Query{Mint: testMint}, 0)
	if err != nil {
		t.Fatalf("Transient page failure must not surface: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected the first page to survive, got %d records", len(records))
	}
}

func TestIndexedSearch_BreakerTripsAfterThreeRateLimits(t *testing.T) {
	clock := time.Unix(tsSec, 0)
	now := func() time.Time { return clock }

	stub := searchstub.NewSearcher()
	stub.Err = search.ErrRateLimited

	s := NewIndexedSearch(IndexedOptions{
		Searcher: stub,
		Pace:     time.Nanosecond,
		Logger:   quietLogger,
		Now:      now,
	})

	q := domain.Query{Mint: testMint}

	// Rate-limited pages are retried until the third hit trips the breaker,
	// which then ends the scan.
	if _, err := s.Discover(context.Background(), q, 0); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(stub.Requests) != 3 {
		t.Fatalf("Expected 3 upstream calls before the breaker opened, got %d", len(stub.Requests))
	}

	// While cooling down, no upstream calls happen.
	clock = clock.Add(time.Second)
	if _, err := s.Discover(context.Background(), q, 0); err != nil {
		t.Fatalf("Discover during cooldown: %v", err)
	}
	if len(stub.Requests) != 3 {
		t.Errorf("Breaker open: expected no new calls, got %d total", len(stub.Requests))
	}

	// After the cooldown passes, calls resume.
	clock = clock.Add(breakerCooldown + time.Second)
	if _, err := s.Discover(context.Background(), q, 0); err != nil {
		t.Fatalf("Discover after cooldown: %v", err)
	}
	if len(stub.Requests) <= 3 {
		t.Errorf("Expected calls to resume after cooldown, got %d total", len(stub.Requests))
	}
}

func TestIndexedSearch_ExhaustedRetriesCountEveryHit(t *testing.T) {
	clock := time.Unix(tsSec, 0)
	now := func() time.Time { return clock }

	stub := searchstub.NewSearcher()
	// One search call that absorbed three 429s before giving up.
	stub.Err = &search.RateLimitError{Hits: 3}

	s := NewIndexedSearch(IndexedOptions{
		Searcher: stub,
		Pace:     time.Nanosecond,
		Logger:   quietLogger,
		Now:      now,
	})

	q := domain.Query{Mint: testMint}

	if _, err := s.Discover(context.Background(), q, 0); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(stub.Requests) != 1 {
		t.Fatalf("Expected a single upstream call to trip the breaker, got %d", len(stub.Requests))
	}

	clock = clock.Add(time.Second)
	if _, err := s.Discover(context.Background(), q, 0); err != nil {
		t.Fatalf("Discover during cooldown: %v", err)
	}
	if len(stub.Requests) != 1 {
		t.Errorf("Breaker open: expected no new calls, got %d total", len(stub.Requests))
	}
}

func TestIndexedSearch_RateLimitsOutsideWindowDoNotTrip(t *testing.T) {
	clock := time.Unix(tsSec, 0)
	now := func() time.Time { return clock }

	stub := searchstub.NewSearcher()
	stub.Err = search.ErrRateLimited

	s := NewIndexedSearch(IndexedOptions{
		Searcher: stub,
		MaxPages: 1,
		Pace:     time.Nanosecond,
		Logger:   quietLogger,
		Now:      now,
	})

	q := domain.Query{Mint: testMint}

	// Spread hits so no three fall inside one rolling window.
	for i := 0; i < 3; i++ {
		if _, err := s.Discover(context.Background(), q, 0); err != nil {
			t.Fatalf("Discover %d: %v", i, err)
		}
		clock = clock.Add(breakerWindow + time.Second)
	}

	// The breaker never tripped, so the next query still reaches upstream.
	if _, err := s.Discover(context.Background(), q, 0); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(stub.Requests) != 4 {
		t.Errorf("Expected 4 upstream calls, got %d", len(stub.Requests))
	}
}
