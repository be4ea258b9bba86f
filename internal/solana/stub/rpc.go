package stub

import (
	"context"
	"errors"

	"solana-transfer-lab/internal/solana"
)

// ErrNotFound is returned when a transaction or block is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Transactions    map[string]*solana.Transaction
	Blocks          map[int64]*solana.Block
	Signatures      map[string][]solana.SignatureInfo
	ProgramAccounts []solana.ProgramAccount
	Head            int64

	// HeadErr, when set, is returned by GetSlot to simulate connectivity failure.
	HeadErr error

	// Calls counts RPC invocations by method name.
	Calls map[string]int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Blocks:       make(map[int64]*solana.Block),
		Signatures:   make(map[string][]solana.SignatureInfo),
		Calls:        make(map[string]int),
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
// Unknown signatures return nil, matching node behavior.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.Calls["getTransaction"]++
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

// GetBlock retrieves a block by slot from the stub store. Missing slots
// return nil, matching skipped-slot behavior.
func (c *RPCClient) GetBlock(_ context.Context, slot int64) (*solana.Block, error) {
	c.Calls["getBlock"]++
	block, ok := c.Blocks[slot]
	if !ok {
		return nil, nil
	}
	return block, nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.Calls["getSignaturesForAddress"]++
	sigs, ok := c.Signatures[address]
	if !ok {
		return nil, nil
	}

	if opts != nil && opts.Until != "" {
		var upTo []solana.SignatureInfo
		for _, s := range sigs {
			if s.Signature == opts.Until {
				break
			}
			upTo = append(upTo, s)
		}
		sigs = upTo
	}

	// Apply limit if specified
	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}

	return sigs, nil
}

// GetProgramAccounts returns the configured program accounts. Filters are
// ignored; tests configure the post-filter result set directly.
func (c *RPCClient) GetProgramAccounts(_ context.Context, _ string, _ []solana.AccountFilter) ([]solana.ProgramAccount, error) {
	c.Calls["getProgramAccounts"]++
	return c.ProgramAccounts, nil
}

// GetSlot returns the configured head slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.Calls["getSlot"]++
	if c.HeadErr != nil {
		return 0, c.HeadErr
	}
	return c.Head, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.Transactions[tx.Signature] = tx
}

// AddBlock adds a block to the stub store and registers its transactions.
func (c *RPCClient) AddBlock(block *solana.Block) {
	c.Blocks[block.Slot] = block
	for i := range block.Transactions {
		c.Transactions[block.Transactions[i].Signature] = &block.Transactions[i]
	}
}
