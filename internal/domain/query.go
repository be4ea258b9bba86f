package domain

import "time"

// Query scopes one transfer reconstruction run.
type Query struct {
	Mint            string // token mint address (required)
	Account         string // owning wallet; empty for token-wide queries
	LookbackSeconds int64  // how far back from now transfers are relevant
}

// Scoped reports whether the query targets a single account.
func (q Query) Scoped() bool {
	return q.Account != ""
}

// CutoffMs returns the earliest timestamp (ms) a discovered transfer may have.
func (q Query) CutoffMs(now time.Time) int64 {
	return now.UnixMilli() - q.LookbackSeconds*1000
}
