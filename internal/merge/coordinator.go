// Package merge deduplicates transfers arriving from multiple discovery
// strategies and keeps the accumulated result set ordered for presentation.
package merge

import (
	"sort"

	"solana-transfer-lab/internal/domain"
	"solana-transfer-lab/internal/idhash"
)

// Coordinator accumulates a seen-set over one query's lifetime. Exact
// duplicates (same signature, from, to, amount) are dropped; first-seen wins.
// Not safe for concurrent use; each query gets its own instance.
type Coordinator struct {
	seen map[string]struct{}
}

// NewCoordinator creates a Coordinator with an empty seen-set.
func NewCoordinator() *Coordinator {
	return &Coordinator{seen: make(map[string]struct{})}
}

// Add records the transfer in the seen-set. Returns false if an identical
// transfer was already added.
func (c *Coordinator) Add(r domain.TransferRecord) bool {
	key := idhash.ComputeTransferKey(r.Signature, r.From, r.To, r.Amount)
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

// Merge appends the unseen records from incoming to existing and returns the
// result. Merging the same batch twice produces no growth.
func (c *Coordinator) Merge(existing, incoming []domain.TransferRecord) []domain.TransferRecord {
	for _, r := range incoming {
		if c.Add(r) {
			existing = append(existing, r)
		}
	}
	return existing
}

// SortByTimeDesc orders records newest first for display. Ties fall back to
// signature order so output is deterministic.
func SortByTimeDesc(records []domain.TransferRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].TimestampMs != records[j].TimestampMs {
			return records[i].TimestampMs > records[j].TimestampMs
		}
		return records[i].Signature < records[j].Signature
	})
}
