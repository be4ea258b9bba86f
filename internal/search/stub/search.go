package stub

import (
	"context"

	"solana-transfer-lab/internal/search"
)

// Searcher implements the discovery.Searcher contract for testing.
// Pages are served in order; Err, when set, is returned for every call after
// the configured FailFrom call index.
type Searcher struct {
	Pages    [][]search.EnrichedTransaction
	Err      error
	FailFrom int // call index from which Err applies, when Err is set

	Requests []search.Request
}

// NewSearcher creates a stub searcher serving the given pages in order.
func NewSearcher(pages ...[]search.EnrichedTransaction) *Searcher {
	return &Searcher{Pages: pages}
}

// Search records the request and returns the next configured page.
// Exhausted pages return an empty result.
func (s *Searcher) Search(_ context.Context, req search.Request) ([]search.EnrichedTransaction, error) {
	call := len(s.Requests)
	s.Requests = append(s.Requests, req)

	if s.Err != nil && call >= s.FailFrom {
		return nil, s.Err
	}
	if call >= len(s.Pages) {
		return nil, nil
	}
	return s.Pages[call], nil
}
