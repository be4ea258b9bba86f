package domain

import "github.com/shopspring/decimal"

// UnknownEntity labels a transfer side that could not be resolved to an owner.
const UnknownEntity = "Unknown"

// Direction of a transfer relative to the queried account.
// Only meaningful for account-scoped queries.
type Direction string

// Direction constants
const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// TransferRecord is a reconstructed token transfer event.
// Records are immutable after creation; the dedup key is
// (Signature, From, To, Amount).
type TransferRecord struct {
	Signature   string          `json:"signature"`    // Solana transaction signature
	TimestampMs int64           `json:"timestampMs"`  // Unix timestamp in milliseconds
	Direction   Direction       `json:"direction,omitempty"`
	Amount      decimal.Decimal `json:"amount"`       // display units, raw / 10^decimals
	From        string          `json:"from"`         // sending owner, or UnknownEntity
	To          string          `json:"to"`           // receiving owner, or UnknownEntity
	Slot        int64           `json:"slot"`         // Solana slot number
	Mint        string          `json:"mint"`         // token mint address
}
