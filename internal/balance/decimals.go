package balance

import "solana-transfer-lab/internal/domain"

// DefaultDecimals is used when neither balance metadata nor the known-token
// table resolves a mint's decimals.
const DefaultDecimals = 6

// knownDecimals maps large-cap mints to their decimals for transactions whose
// balance metadata omits the field.
var knownDecimals = map[string]int{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": 6, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": 6, // USDT
	"So11111111111111111111111111111111111111112":  9, // wrapped SOL
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": 5, // BONK
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  6, // JUP
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  9, // mSOL
	"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R": 6, // RAY
}

// ResolveDecimals returns the display decimals for a mint.
//
// Balance metadata is authoritative when present; the known-token table is
// consulted next, then DefaultDecimals.
func ResolveDecimals(balances []domain.TokenBalance, mint string) int {
	for _, b := range balances {
		if b.Mint == mint && b.Decimals != nil {
			return *b.Decimals
		}
	}
	if d, ok := knownDecimals[mint]; ok {
		return d
	}
	return DefaultDecimals
}
