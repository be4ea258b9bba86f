// Package balance derives per-owner balance changes from the pre/post
// token balance snapshots attached to a transaction.
package balance

import (
	"strconv"

	"solana-transfer-lab/internal/domain"
)

// ExtractDeltas computes the net signed balance change per token account for
// one mint, given a transaction's pre and post snapshot lists.
//
// Snapshots without an owner are skipped: the ledger omits the owner for some
// account types, which is accepted information loss rather than an error.
// A pre snapshot with no matching post snapshot means the account was closed
// during the transaction; the full pre balance is emitted as a withdrawal.
func ExtractDeltas(pre, post []domain.TokenBalance, mint string) []domain.BalanceDelta {
	preByIndex := make(map[int]domain.TokenBalance)
	for _, b := range pre {
		if b.Mint != mint {
			continue
		}
		preByIndex[b.AccountIndex] = b
	}

	var deltas []domain.BalanceDelta
	postSeen := make(map[int]bool)

	for _, b := range post {
		if b.Mint != mint {
			continue
		}
		postSeen[b.AccountIndex] = true
		if b.Owner == "" {
			continue
		}

		var preRaw int64
		if p, ok := preByIndex[b.AccountIndex]; ok {
			preRaw = parseRaw(p.RawAmount)
		}

		change := parseRaw(b.RawAmount) - preRaw
		if change == 0 {
			continue
		}

		deltas = append(deltas, domain.BalanceDelta{
			Owner:        b.Owner,
			Change:       change,
			AccountIndex: b.AccountIndex,
		})
	}

	// Closed accounts: pre balance exists, no post snapshot.
	for idx, p := range preByIndex {
		if postSeen[idx] || p.Owner == "" {
			continue
		}
		preRaw := parseRaw(p.RawAmount)
		if preRaw == 0 {
			continue
		}
		deltas = append(deltas, domain.BalanceDelta{
			Owner:        p.Owner,
			Change:       -preRaw,
			AccountIndex: idx,
		})
	}

	return deltas
}

// parseRaw parses a raw base-unit amount. Non-numeric input fails closed to 0.
func parseRaw(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
