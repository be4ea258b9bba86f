// Package tokenacct parses SPL token account data fetched via
// getProgramAccounts.
package tokenacct

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AccountSize is the fixed byte length of an SPL token account.
const AccountSize = 165

// Account is a decoded SPL token account.
// Layout: mint(32) | owner(32) | amount(8 LE) | ...
type Account struct {
	Mint         string
	Owner        string
	RawAmount    uint64
	OwnerOnCurve bool // true for wallet owners, false for program-derived addresses
}

// Parse decodes raw SPL token account bytes.
func Parse(data []byte) (*Account, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("token account data length %d, want %d", len(data), AccountSize)
	}

	owner := data[32:64]
	return &Account{
		Mint:         base58.Encode(data[:32]),
		Owner:        base58.Encode(owner),
		RawAmount:    binary.LittleEndian.Uint64(data[64:72]),
		OwnerOnCurve: IsOnCurve(owner),
	}, nil
}

// ParseBase64 decodes base64-encoded account data as returned by the RPC.
func ParseBase64(data string) (*Account, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode token account data: %w", err)
	}
	return Parse(decoded)
}

// IsOnCurve reports whether a 32-byte public key lies on the ed25519 curve.
// Program-derived addresses are intentionally off-curve.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
