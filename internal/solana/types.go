package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// Block represents a Solana block.
type Block struct {
	Slot         int64
	BlockTime    *int64
	Transactions []Transaction
}

// AccountFilter narrows a getProgramAccounts scan. Zero-valued fields are omitted.
type AccountFilter struct {
	DataSize *int64  // exact account data length in bytes
	Memcmp   *Memcmp // byte match at a fixed offset
}

// Memcmp matches base58-encoded bytes at an offset within account data.
type Memcmp struct {
	Offset int64
	Bytes  string
}

// ProgramAccount is one result entry from getProgramAccounts.
type ProgramAccount struct {
	Pubkey   string
	Data     string // base64 encoded account data
	Owner    string
	Lamports uint64
}
