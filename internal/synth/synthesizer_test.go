package synth

import (
	"testing"

	"github.com/shopspring/decimal"

	"solana-transfer-lab/internal/domain"
)

var testTx = TxContext{
	Signature:   "sig1",
	Slot:        100,
	TimestampMs: 1704067200000,
	Mint:        "X",
}

func TestPaired_SimpleTransfer(t *testing.T) {
	// Scenario: Alice -600, Bob +600 at decimals 0.
	deltas := []domain.BalanceDelta{
		{Owner: "Alice", Change: -600, AccountIndex: 1},
		{Owner: "Bob", Change: 600, AccountIndex: 2},
	}

	records := Paired(testTx, deltas, 0)

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.From != "Alice" || r.To != "Bob" {
		t.Errorf("Expected Alice -> Bob, got %s -> %s", r.From, r.To)
	}
	if !r.Amount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected amount 600, got %s", r.Amount)
	}
	if r.Signature != "sig1" || r.Slot != 100 || r.Mint != "X" {
		t.Errorf("Transaction context not carried: %+v", r)
	}
}

func TestPaired_ToleranceBoundary(t *testing.T) {
	tests := []struct {
		name     string
		sent     int64
		received int64
		want     int
	}{
		{"exact match", 1000, 1000, 1},
		{"0.1% apart pairs", 1000, 999, 1},
		{"10% apart does not pair", 1000, 900, 0},
		{"just over tolerance", 1000, 998, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deltas := []domain.BalanceDelta{
				{Owner: "S", Change: -tt.sent, AccountIndex: 1},
				{Owner: "R", Change: tt.received, AccountIndex: 2},
			}
			records := Paired(testTx, deltas, 0)
			if len(records) != tt.want {
				t.Errorf("sent=%d received=%d: expected %d records, got %d",
					tt.sent, tt.received, tt.want, len(records))
			}
			if tt.want == 1 && !records[0].Amount.Equal(decimal.NewFromInt(tt.sent)) {
				t.Errorf("Amount should come from the sending side: expected %d, got %s",
					tt.sent, records[0].Amount)
			}
		})
	}
}

func TestPaired_LargeRawAmounts(t *testing.T) {
	// Raw amounts big enough that multiplying the difference by 1000 would
	// overflow int64 must still respect the tolerance.
	tests := []struct {
		name     string
		sent     int64
		received int64
		want     int
	}{
		{"92% apart does not pair", 20000000000000000, 1553255926290448, 0},
		{"0.05% apart pairs", 20000000000000000, 19990000000000000, 1},
		{"0.2% apart does not pair", 20000000000000000, 19960000000000000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deltas := []domain.BalanceDelta{
				{Owner: "S", Change: -tt.sent, AccountIndex: 1},
				{Owner: "R", Change: tt.received, AccountIndex: 2},
			}
			records := Paired(testTx, deltas, 6)
			if len(records) != tt.want {
				t.Errorf("sent=%d received=%d: expected %d records, got %d",
					tt.sent, tt.received, tt.want, len(records))
			}
		})
	}
}

func TestPaired_UnpairedSendersDropped(t *testing.T) {
	// Scenario: three senders, one receiver matching only one of them.
	deltas := []domain.BalanceDelta{
		{Owner: "S1", Change: -5000, AccountIndex: 1},
		{Owner: "S2", Change: -600, AccountIndex: 2},
		{Owner: "S3", Change: -70, AccountIndex: 3},
		{Owner: "R", Change: 600, AccountIndex: 4},
	}

	records := Paired(testTx, deltas, 0)

	if len(records) != 1 {
		t.Fatalf("Expected exactly 1 record, got %d", len(records))
	}
	if records[0].From != "S2" || records[0].To != "R" {
		t.Errorf("Expected S2 -> R, got %s -> %s", records[0].From, records[0].To)
	}
}

func TestPaired_FirstMatchInListOrder(t *testing.T) {
	// Two receivers both within tolerance: the first in list order wins.
	deltas := []domain.BalanceDelta{
		{Owner: "S", Change: -1000, AccountIndex: 1},
		{Owner: "R1", Change: 1000, AccountIndex: 2},
		{Owner: "R2", Change: 1000, AccountIndex: 3},
	}

	records := Paired(testTx, deltas, 0)

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].To != "R1" {
		t.Errorf("Expected first-match receiver R1, got %s", records[0].To)
	}
}

func TestPaired_ReceiverConsumedOnce(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "S1", Change: -500, AccountIndex: 1},
		{Owner: "S2", Change: -500, AccountIndex: 2},
		{Owner: "R1", Change: 500, AccountIndex: 3},
		{Owner: "R2", Change: 500, AccountIndex: 4},
	}

	records := Paired(testTx, deltas, 0)

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].To == records[1].To {
		t.Errorf("Receiver consumed twice: both records target %s", records[0].To)
	}
}

func TestPaired_DecimalsScaling(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "Alice", Change: -1500000, AccountIndex: 1},
		{Owner: "Bob", Change: 1500000, AccountIndex: 2},
	}

	records := Paired(testTx, deltas, 6)

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if !records[0].Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected amount 1.5, got %s", records[0].Amount)
	}
}

func TestScoped_Received(t *testing.T) {
	// Scenario: query scoped to Bob, who received 600 from Alice.
	deltas := []domain.BalanceDelta{
		{Owner: "Alice", Change: -600, AccountIndex: 1},
		{Owner: "Bob", Change: 600, AccountIndex: 2},
	}

	rec := Scoped(testTx, deltas, "Bob", 0)

	if rec == nil {
		t.Fatal("Expected a record, got nil")
	}
	if rec.Direction != domain.DirectionReceived {
		t.Errorf("Expected direction received, got %s", rec.Direction)
	}
	if rec.From != "Alice" || rec.To != "Bob" {
		t.Errorf("Expected Alice -> Bob, got %s -> %s", rec.From, rec.To)
	}
	if !rec.Amount.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Expected amount 600, got %s", rec.Amount)
	}
}

func TestScoped_Sent(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "Alice", Change: -600, AccountIndex: 1},
		{Owner: "Bob", Change: 600, AccountIndex: 2},
	}

	rec := Scoped(testTx, deltas, "Alice", 0)

	if rec == nil {
		t.Fatal("Expected a record, got nil")
	}
	if rec.Direction != domain.DirectionSent {
		t.Errorf("Expected direction sent, got %s", rec.Direction)
	}
	if rec.From != "Alice" || rec.To != "Bob" {
		t.Errorf("Expected Alice -> Bob, got %s -> %s", rec.From, rec.To)
	}
}

func TestScoped_UnknownCounterparty(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "Alice", Change: -600, AccountIndex: 1},
	}

	rec := Scoped(testTx, deltas, "Alice", 0)

	if rec == nil {
		t.Fatal("Expected a record, got nil")
	}
	if rec.To != domain.UnknownEntity {
		t.Errorf("Expected Unknown counterparty, got %s", rec.To)
	}
}

func TestScoped_AccountNotInvolved(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "Alice", Change: -600, AccountIndex: 1},
		{Owner: "Bob", Change: 600, AccountIndex: 2},
	}

	if rec := Scoped(testTx, deltas, "Mallory", 0); rec != nil {
		t.Errorf("Expected nil for uninvolved account, got %+v", rec)
	}
}

func TestUnpaired_UnknownSides(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "Alice", Change: -300, AccountIndex: 1},
		{Owner: "Bob", Change: 200, AccountIndex: 2},
	}

	records := Unpaired(testTx, deltas, 0)

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].From != "Alice" || records[0].To != domain.UnknownEntity {
		t.Errorf("Sender record: expected Alice -> Unknown, got %s -> %s", records[0].From, records[0].To)
	}
	if records[1].From != domain.UnknownEntity || records[1].To != "Bob" {
		t.Errorf("Receiver record: expected Unknown -> Bob, got %s -> %s", records[1].From, records[1].To)
	}
}

func TestFanOut_OneSenderManyReceivers(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "S", Change: -1000, AccountIndex: 1},
		{Owner: "R1", Change: 400, AccountIndex: 2},
		{Owner: "R2", Change: 350, AccountIndex: 3},
		{Owner: "R3", Change: 250, AccountIndex: 4},
	}

	records := FanOut(testTx, deltas, 0)

	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for _, r := range records {
		if r.From != "S" {
			t.Errorf("Expected sender S, got %s", r.From)
		}
	}
	// Amounts come from the receiving side.
	if !records[0].Amount.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected amount 400, got %s", records[0].Amount)
	}
}

func TestFanOut_RejectsOtherShapes(t *testing.T) {
	// Two senders: not a fan-out.
	deltas := []domain.BalanceDelta{
		{Owner: "S1", Change: -500, AccountIndex: 1},
		{Owner: "S2", Change: -500, AccountIndex: 2},
		{Owner: "R1", Change: 400, AccountIndex: 3},
		{Owner: "R2", Change: 600, AccountIndex: 4},
	}
	if records := FanOut(testTx, deltas, 0); records != nil {
		t.Errorf("Expected nil for 2:2 shape, got %d records", len(records))
	}

	// One receiver: not a fan-out either.
	deltas = []domain.BalanceDelta{
		{Owner: "S", Change: -500, AccountIndex: 1},
		{Owner: "R", Change: 500, AccountIndex: 2},
	}
	if records := FanOut(testTx, deltas, 0); records != nil {
		t.Errorf("Expected nil for 1:1 shape, got %d records", len(records))
	}
}

func TestFanIn_ManySendersOneReceiver(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "S1", Change: -400, AccountIndex: 1},
		{Owner: "S2", Change: -600, AccountIndex: 2},
		{Owner: "R", Change: 1000, AccountIndex: 3},
	}

	records := FanIn(testTx, deltas, 0)

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		if r.To != "R" {
			t.Errorf("Expected receiver R, got %s", r.To)
		}
	}
	if !records[0].Amount.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Expected amount 400 from sending side, got %s", records[0].Amount)
	}
}

func TestFanIn_RejectsOtherShapes(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "S", Change: -1000, AccountIndex: 1},
		{Owner: "R1", Change: 400, AccountIndex: 2},
		{Owner: "R2", Change: 600, AccountIndex: 3},
	}
	if records := FanIn(testTx, deltas, 0); records != nil {
		t.Errorf("Expected nil for 1:N shape, got %d records", len(records))
	}
}

func TestSynthesize_FanOutShape(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "S", Change: -1000, AccountIndex: 1},
		{Owner: "R1", Change: 400, AccountIndex: 2},
		{Owner: "R2", Change: 350, AccountIndex: 3},
		{Owner: "R3", Change: 250, AccountIndex: 4},
	}

	records := Synthesize(testTx, deltas, 0)

	if len(records) != 3 {
		t.Fatalf("Expected one record per receiver, got %d", len(records))
	}
	for _, r := range records {
		if r.From != "S" {
			t.Errorf("Expected sender S, got %s", r.From)
		}
	}
}

func TestSynthesize_FanInShape(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "S1", Change: -400, AccountIndex: 1},
		{Owner: "S2", Change: -600, AccountIndex: 2},
		{Owner: "R", Change: 1000, AccountIndex: 3},
	}

	records := Synthesize(testTx, deltas, 0)

	if len(records) != 2 {
		t.Fatalf("Expected one record per sender, got %d", len(records))
	}
	for _, r := range records {
		if r.To != "R" {
			t.Errorf("Expected receiver R, got %s", r.To)
		}
	}
}

func TestSynthesize_OneToOneUsesPairing(t *testing.T) {
	deltas := []domain.BalanceDelta{
		{Owner: "Alice", Change: -600, AccountIndex: 1},
		{Owner: "Bob", Change: 600, AccountIndex: 2},
	}

	records := Synthesize(testTx, deltas, 0)

	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].From != "Alice" || records[0].To != "Bob" {
		t.Errorf("Expected Alice -> Bob, got %s -> %s", records[0].From, records[0].To)
	}
}

func TestSynthesize_OneSidedFallsBackToUnpaired(t *testing.T) {
	// Senders with no receivers in the mint scope: counterparty is unknown.
	deltas := []domain.BalanceDelta{
		{Owner: "S1", Change: -300, AccountIndex: 1},
		{Owner: "S2", Change: -200, AccountIndex: 2},
	}

	records := Synthesize(testTx, deltas, 0)

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		if r.To != domain.UnknownEntity {
			t.Errorf("Expected Unknown receiver, got %s", r.To)
		}
	}
}

func TestSynthesize_MismatchedPairEmitsNothing(t *testing.T) {
	// Both sides present but far outside tolerance: no fabricated records.
	deltas := []domain.BalanceDelta{
		{Owner: "S", Change: -20000000000000000, AccountIndex: 1},
		{Owner: "R", Change: 1553255926290448, AccountIndex: 2},
	}

	if records := Synthesize(testTx, deltas, 6); len(records) != 0 {
		t.Errorf("Expected 0 records for mismatched amounts, got %d", len(records))
	}
}

func TestAllPaths_AmountAlwaysPositive(t *testing.T) {
	// Zero-change deltas should never materialize, but the synthesizer
	// guards anyway.
	deltas := []domain.BalanceDelta{
		{Owner: "A", Change: 0, AccountIndex: 1},
		{Owner: "B", Change: -500, AccountIndex: 2},
		{Owner: "C", Change: 500, AccountIndex: 3},
	}

	check := func(name string, records []domain.TransferRecord) {
		for _, r := range records {
			if !r.Amount.IsPositive() {
				t.Errorf("%s emitted non-positive amount %s", name, r.Amount)
			}
		}
	}

	check("Paired", Paired(testTx, deltas, 0))
	check("Unpaired", Unpaired(testTx, deltas, 0))
	check("FanOut", FanOut(testTx, deltas, 0))
	check("FanIn", FanIn(testTx, deltas, 0))
	if rec := Scoped(testTx, deltas, "A", 0); rec != nil {
		t.Errorf("Scoped emitted a record for a zero delta: %+v", rec)
	}
}
