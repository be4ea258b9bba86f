package solana

import "context"

// TokenProgramID is the SPL token program that owns all token accounts.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// RPCClient defines the Solana RPC HTTP interface the engine consumes.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature. Returns nil when
	// the transaction is unknown to the node.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBlock retrieves a block with full transactions by slot number.
	// Returns nil when the slot was skipped.
	GetBlock(ctx context.Context, slot int64) (*Block, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetProgramAccounts retrieves accounts owned by a program matching the filters.
	GetProgramAccounts(ctx context.Context, programID string, filters []AccountFilter) ([]ProgramAccount, error)

	// GetSlot retrieves the current chain head slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Transaction represents a Solana transaction with balance metadata.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// TokenBalance is one pre/post token balance entry from transaction metadata.
type TokenBalance struct {
	AccountIndex  int         `json:"accountIndex"`
	Mint          string      `json:"mint"`
	Owner         string      `json:"owner"`
	UITokenAmount TokenAmount `json:"uiTokenAmount"`
}

// TokenAmount is the raw amount plus decimal metadata for a token balance.
type TokenAmount struct {
	Amount   string `json:"amount"`
	Decimals *int   `json:"decimals"`
}
