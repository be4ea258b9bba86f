package balance

import (
	"testing"

	"solana-transfer-lab/internal/domain"
)

const usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func intPtr(v int) *int { return &v }

func TestResolveDecimals_ExplicitMetadataWins(t *testing.T) {
	// USDC is 6 in the known-token table; explicit metadata saying 9
	// must still win.
	balances := []domain.TokenBalance{
		{AccountIndex: 1, Owner: "Alice", Mint: usdcMint, RawAmount: "100", Decimals: intPtr(9)},
	}

	got := ResolveDecimals(balances, usdcMint)

	if got != 9 {
		t.Errorf("Expected explicit decimals 9, got %d", got)
	}
}

func TestResolveDecimals_KnownTokenTable(t *testing.T) {
	tests := []struct {
		name string
		mint string
		want int
	}{
		{"USDC", usdcMint, 6},
		{"wrapped SOL", "So11111111111111111111111111111111111111112", 9},
		{"BONK", "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveDecimals(nil, tt.mint)
			if got != tt.want {
				t.Errorf("ResolveDecimals(%s) = %d, want %d", tt.mint, got, tt.want)
			}
		})
	}
}

func TestResolveDecimals_DefaultFallback(t *testing.T) {
	got := ResolveDecimals(nil, "UnknownMint11111111111111111111111111111111")

	if got != DefaultDecimals {
		t.Errorf("Expected default %d, got %d", DefaultDecimals, got)
	}
}

func TestResolveDecimals_IgnoresOtherMintMetadata(t *testing.T) {
	balances := []domain.TokenBalance{
		{AccountIndex: 1, Owner: "Alice", Mint: "OtherMint", RawAmount: "100", Decimals: intPtr(2)},
	}

	got := ResolveDecimals(balances, "UnknownMint11111111111111111111111111111111")

	if got != DefaultDecimals {
		t.Errorf("Expected default %d (metadata belongs to another mint), got %d", DefaultDecimals, got)
	}
}
