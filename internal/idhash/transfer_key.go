package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeTransferKey computes the deterministic dedup key for a transfer using SHA256.
// Formula: SHA256(signature|from|to|amount)
// Returns hex-encoded hash (64 characters).
func ComputeTransferKey(
	signature string,
	from string,
	to string,
	amount decimal.Decimal,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		signature,
		from,
		to,
		amount.String(),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
