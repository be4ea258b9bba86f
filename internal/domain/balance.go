package domain

// TokenBalance is one account's token balance snapshot attached to a
// transaction (pre or post execution), as reported by the ledger RPC.
type TokenBalance struct {
	AccountIndex int    // index into the transaction's account keys
	Owner        string // owning wallet; empty when the ledger omits it
	Mint         string // token mint address
	RawAmount    string // integer balance in base units, as returned by the RPC
	Decimals     *int   // nil when balance metadata omits it
}

// BalanceDelta is the net balance change for one token account within a
// single transaction. Zero-change accounts are never materialized.
type BalanceDelta struct {
	Owner        string // owning wallet
	Change       int64  // signed change in base units, never zero
	AccountIndex int    // index of the token account within the transaction
}
