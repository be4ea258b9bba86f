// Package synth reconstructs directional transfer records from the balance
// deltas of a single transaction.
package synth

import (
	"github.com/shopspring/decimal"

	"solana-transfer-lab/internal/domain"
)

// pairTolerancePermille is the pairing tolerance in permille of the larger
// side: sender and receiver amounts within 0.1% of each other pair up,
// absorbing minor rounding from fee deduction or multi-hop routing.
const pairTolerancePermille = 1

// TxContext identifies the transaction the deltas came from.
type TxContext struct {
	Signature   string
	Slot        int64
	TimestampMs int64
	Mint        string
}

// Synthesize picks the pairing mode from the shape of the deltas: FanOut for
// one sender funding several receivers, FanIn for several senders feeding one
// receiver, Unpaired when only one side is present, and greedy Paired matching
// otherwise. Fan shapes fall back to Paired when they produce nothing.
func Synthesize(tx TxContext, deltas []domain.BalanceDelta, decimals int) []domain.TransferRecord {
	var senders, receivers int
	for _, d := range deltas {
		switch {
		case d.Change < 0:
			senders++
		case d.Change > 0:
			receivers++
		}
	}

	switch {
	case senders == 1 && receivers >= 2:
		if records := FanOut(tx, deltas, decimals); len(records) > 0 {
			return records
		}
	case senders >= 2 && receivers == 1:
		if records := FanIn(tx, deltas, decimals); len(records) > 0 {
			return records
		}
	case senders == 0 || receivers == 0:
		return Unpaired(tx, deltas, decimals)
	}
	return Paired(tx, deltas, decimals)
}

// Scoped synthesizes at most one transfer for the account that is the subject
// of the query. The counterparty is the first delta with the opposite sign;
// equal-amount ties are not specially broken. Returns nil when the account has
// no nonzero delta in the transaction.
func Scoped(tx TxContext, deltas []domain.BalanceDelta, account string, decimals int) *domain.TransferRecord {
	var own *domain.BalanceDelta
	for i := range deltas {
		if deltas[i].Owner == account {
			own = &deltas[i]
			break
		}
	}
	if own == nil || own.Change == 0 {
		return nil
	}

	counterparty := domain.UnknownEntity
	for _, d := range deltas {
		if (d.Change > 0) != (own.Change > 0) && d.Owner != account {
			counterparty = d.Owner
			break
		}
	}

	amount := scale(abs(own.Change), decimals)
	if !amount.IsPositive() {
		return nil
	}

	rec := domain.TransferRecord{
		Signature:   tx.Signature,
		TimestampMs: tx.TimestampMs,
		Amount:      amount,
		Slot:        tx.Slot,
		Mint:        tx.Mint,
	}
	if own.Change > 0 {
		rec.Direction = domain.DirectionReceived
		rec.From = counterparty
		rec.To = account
	} else {
		rec.Direction = domain.DirectionSent
		rec.From = account
		rec.To = counterparty
	}
	return &rec
}

// Paired greedily pairs senders (negative deltas) with receivers (positive
// deltas) whose amounts match within tolerance. Each side is consumed at most
// once; unpaired deltas are dropped, which under-counts N:1 and 1:N shapes —
// use FanIn/FanOut for those.
func Paired(tx TxContext, deltas []domain.BalanceDelta, decimals int) []domain.TransferRecord {
	var senders, receivers []domain.BalanceDelta
	for _, d := range deltas {
		switch {
		case d.Change < 0:
			senders = append(senders, d)
		case d.Change > 0:
			receivers = append(receivers, d)
		}
	}

	consumed := make([]bool, len(receivers))
	var records []domain.TransferRecord

	for _, s := range senders {
		sent := abs(s.Change)
		for i, r := range receivers {
			if consumed[i] {
				continue
			}
			if !withinTolerance(sent, r.Change) {
				continue
			}
			amount := scale(sent, decimals)
			if !amount.IsPositive() {
				break
			}
			records = append(records, domain.TransferRecord{
				Signature:   tx.Signature,
				TimestampMs: tx.TimestampMs,
				Amount:      amount,
				From:        s.Owner,
				To:          r.Owner,
				Slot:        tx.Slot,
				Mint:        tx.Mint,
			})
			consumed[i] = true
			break
		}
	}

	return records
}

// Unpaired emits one transfer per delta with the unresolved side set to
// UnknownEntity. Used when the upstream source already segments transfers and
// pairing would be redundant or impossible.
func Unpaired(tx TxContext, deltas []domain.BalanceDelta, decimals int) []domain.TransferRecord {
	var records []domain.TransferRecord
	for _, d := range deltas {
		amount := scale(abs(d.Change), decimals)
		if !amount.IsPositive() {
			continue
		}
		rec := domain.TransferRecord{
			Signature:   tx.Signature,
			TimestampMs: tx.TimestampMs,
			Amount:      amount,
			Slot:        tx.Slot,
			Mint:        tx.Mint,
		}
		if d.Change > 0 {
			rec.From = domain.UnknownEntity
			rec.To = d.Owner
		} else {
			rec.From = d.Owner
			rec.To = domain.UnknownEntity
		}
		records = append(records, rec)
	}
	return records
}

// FanOut handles the 1:N shape: one sender funding several receivers. One
// transfer per receiver, amounts taken from the receiving side. Returns nil
// unless the deltas contain exactly one sender and at least two receivers.
func FanOut(tx TxContext, deltas []domain.BalanceDelta, decimals int) []domain.TransferRecord {
	var senders, receivers []domain.BalanceDelta
	for _, d := range deltas {
		switch {
		case d.Change < 0:
			senders = append(senders, d)
		case d.Change > 0:
			receivers = append(receivers, d)
		}
	}
	if len(senders) != 1 || len(receivers) < 2 {
		return nil
	}

	var records []domain.TransferRecord
	for _, r := range receivers {
		amount := scale(r.Change, decimals)
		if !amount.IsPositive() {
			continue
		}
		records = append(records, domain.TransferRecord{
			Signature:   tx.Signature,
			TimestampMs: tx.TimestampMs,
			Amount:      amount,
			From:        senders[0].Owner,
			To:          r.Owner,
			Slot:        tx.Slot,
			Mint:        tx.Mint,
		})
	}
	return records
}

// FanIn handles the N:1 shape: several senders consolidating into one
// receiver. One transfer per sender, amounts taken from the sending side.
// Returns nil unless the deltas contain exactly one receiver and at least two
// senders.
func FanIn(tx TxContext, deltas []domain.BalanceDelta, decimals int) []domain.TransferRecord {
	var senders, receivers []domain.BalanceDelta
	for _, d := range deltas {
		switch {
		case d.Change < 0:
			senders = append(senders, d)
		case d.Change > 0:
			receivers = append(receivers, d)
		}
	}
	if len(receivers) != 1 || len(senders) < 2 {
		return nil
	}

	var records []domain.TransferRecord
	for _, s := range senders {
		amount := scale(abs(s.Change), decimals)
		if !amount.IsPositive() {
			continue
		}
		records = append(records, domain.TransferRecord{
			Signature:   tx.Signature,
			TimestampMs: tx.TimestampMs,
			Amount:      amount,
			From:        s.Owner,
			To:          receivers[0].Owner,
			Slot:        tx.Slot,
			Mint:        tx.Mint,
		})
	}
	return records
}

// withinTolerance reports whether a sent amount and a received delta agree
// within 0.1% of the larger side.
func withinTolerance(sent, received int64) bool {
	if received <= 0 || sent <= 0 {
		return false
	}
	larger := sent
	if received > larger {
		larger = received
	}
	diff := sent - received
	if diff < 0 {
		diff = -diff
	}
	// Divide instead of multiplying: diff*1000 overflows int64 for large raw
	// amounts and made wildly mismatched deltas look paired.
	return diff <= larger/1000*pairTolerancePermille
}

// scale converts a base-unit amount to display units: raw / 10^decimals.
func scale(raw int64, decimals int) decimal.Decimal {
	return decimal.New(raw, int32(-decimals))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
