package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"io"
	"log"
	"strconv"
	"testing"

	"github.com/mr-tron/base58"

	"solana-transfer-lab/internal/solana"
)

// Fixture mints: real 32-byte pubkeys so token-account data round-trips
// through base58.
const (
	testMint  = "So11111111111111111111111111111111111111112"
	otherMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	testOwner = "11111111111111111111111111111111"
)

var quietLogger = log.New(io.Discard, "", 0)

func i64(v int64) *int64 { return &v }
func iptr(v int) *int    { return &v }

// makeTx builds a successful transaction moving amount of testMint from
// one owner to another at decimals 0.
func makeTx(sig string, slot, blockTime int64, from, to string, amount int64) *solana.Transaction {
	return &solana.Transaction{
		Signature: sig,
		Slot:      slot,
		BlockTime: blockTime,
		Meta: &solana.TransactionMeta{
			PreTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: testMint, Owner: from,
					UITokenAmount: solana.TokenAmount{Amount: itoa(amount), Decimals: iptr(0)}},
			},
			PostTokenBalances: []solana.TokenBalance{
				{AccountIndex: 1, Mint: testMint, Owner: from,
					UITokenAmount: solana.TokenAmount{Amount: "0", Decimals: iptr(0)}},
				{AccountIndex: 2, Mint: testMint, Owner: to,
					UITokenAmount: solana.TokenAmount{Amount: itoa(amount), Decimals: iptr(0)}},
			},
		},
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

// tokenAccountData builds base64-encoded SPL token account bytes for the
// given mint and owner.
func tokenAccountData(t *testing.T, mint, owner string, amount uint64) string {
	t.Helper()
	data := make([]byte, 165)

	mintBytes, err := base58.Decode(mint)
	if err != nil || len(mintBytes) != 32 {
		t.Fatalf("bad mint fixture %q", mint)
	}
	ownerBytes, err := base58.Decode(owner)
	if err != nil || len(ownerBytes) != 32 {
		t.Fatalf("bad owner fixture %q", owner)
	}

	copy(data[0:32], mintBytes)
	copy(data[32:64], ownerBytes)
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return base64.StdEncoding.EncodeToString(data)
}
