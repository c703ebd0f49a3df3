package treasury_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"CDPTreasury/internal/auction"
	"CDPTreasury/internal/dex"
	"CDPTreasury/internal/ledger"
	"CDPTreasury/internal/treasury"
)

func newAuctionFixture(t *testing.T, maxCount, expectedSize int64) *fixture {
	t.Helper()

	ml := ledger.NewMemoryLedger()
	am := auction.NewMemoryManager()
	d := dex.NewMemoryDEX(ml)
	dot, _ := ledger.GetCurrencyID("DOT")
	params := treasury.NewParams(maxCount, map[ledger.CurrencyID]int64{dot: expectedSize})
	return &fixture{
		ledger:   ml,
		auctions: am,
		dex:      d,
		treasury: treasury.New(ml, am, d, params, zerolog.Nop()),
		dot:      dot,
	}
}

func seedCollateral(t *testing.T, f *fixture, amount int64) {
	t.Helper()
	if err := f.ledger.Deposit(f.dot, ledger.TreasuryAccount, amount); err != nil {
		t.Fatalf("seed collateral: %v", err)
	}
}

func lotAmounts(lots []auction.CollateralLot) []int64 {
	out := make([]int64, len(lots))
	for i, lot := range lots {
		out[i] = lot.Amount
	}
	return out
}

func TestCreateAuctionsSplitsWithResidueInLastLot(t *testing.T) {
	f := newAuctionFixture(t, 10, 100)
	seedCollateral(t, f, 250)

	if err := f.treasury.AuctionCollateral(f.dot, 250, 500, true); err != nil {
		t.Fatalf("auction collateral: %v", err)
	}

	lots := f.auctions.OpenLots()
	if len(lots) != 3 {
		t.Fatalf("lots: got %d, want 3", len(lots))
	}
	// 250/3 = 83 per lot, last lot takes 84.
	want := []int64{83, 83, 84}
	for i, lot := range lots {
		if lot.Amount != want[i] {
			t.Errorf("lot %d amount: got %v, want %v", i, lotAmounts(lots), want)
			break
		}
	}
	// 500/3 = 166 per lot, last lot takes 168.
	wantTargets := []int64{166, 166, 168}
	for i, lot := range lots {
		if lot.Target != wantTargets[i] {
			t.Errorf("lot %d target: got %d, want %d", i, lot.Target, wantTargets[i])
		}
	}

	var totalAmount, totalTarget int64
	for _, lot := range lots {
		totalAmount += lot.Amount
		totalTarget += lot.Target
	}
	if totalAmount != 250 || totalTarget != 500 {
		t.Errorf("lot sums: amount=%d target=%d, want 250/500", totalAmount, totalTarget)
	}
	if got := f.auctions.TotalCollateralInAuction(f.dot); got != 250 {
		t.Errorf("locked total: got %d, want 250", got)
	}
}

func TestCreateAuctionsClampedByMaxCount(t *testing.T) {
	f := newAuctionFixture(t, 2, 100)
	seedCollateral(t, f, 250)

	if err := f.treasury.AuctionCollateral(f.dot, 250, 500, true); err != nil {
		t.Fatalf("auction collateral: %v", err)
	}

	lots := f.auctions.OpenLots()
	if len(lots) != 2 {
		t.Fatalf("lots: got %d, want 2", len(lots))
	}
	if got := lotAmounts(lots); got[0] != 125 || got[1] != 125 {
		t.Errorf("lot amounts: got %v, want [125 125]", got)
	}
}

func TestCreateAuctionsSingleLotCases(t *testing.T) {
	cases := []struct {
		name         string
		maxCount     int64
		expectedSize int64
		amount       int64
		split        bool
	}{
		{"split disabled", 10, 100, 250, false},
		{"max count zero", 0, 100, 250, true},
		{"size unset", 10, 0, 250, true},
		{"amount at size", 10, 100, 100, true},
		{"amount below size", 10, 100, 50, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAuctionFixture(t, tc.maxCount, tc.expectedSize)
			seedCollateral(t, f, tc.amount)

			if err := f.treasury.AuctionCollateral(f.dot, tc.amount, tc.amount*2, tc.split); err != nil {
				t.Fatalf("auction collateral: %v", err)
			}
			lots := f.auctions.OpenLots()
			if len(lots) != 1 {
				t.Fatalf("lots: got %d, want 1", len(lots))
			}
			if lots[0].Amount != tc.amount {
				t.Errorf("lot amount: got %d, want %d", lots[0].Amount, tc.amount)
			}
		})
	}
}

func TestCreateAuctionsExactMultiple(t *testing.T) {
	f := newAuctionFixture(t, 10, 100)
	seedCollateral(t, f, 300)

	if err := f.treasury.AuctionCollateral(f.dot, 300, 600, true); err != nil {
		t.Fatalf("auction collateral: %v", err)
	}
	lots := f.auctions.OpenLots()
	if len(lots) != 3 {
		t.Fatalf("lots: got %d, want 3", len(lots))
	}
	for i, lot := range lots {
		if lot.Amount != 100 || lot.Target != 200 {
			t.Errorf("lot %d: got amount=%d target=%d, want 100/200", i, lot.Amount, lot.Target)
		}
	}
}

func TestCreateAuctionsZeroAmountIsNoOp(t *testing.T) {
	// Zero collateral creates zero lots, even with no free collateral at all.
	f := newAuctionFixture(t, 10, 100)

	if err := f.treasury.AuctionCollateral(f.dot, 0, 0, true); err != nil {
		t.Fatalf("zero-amount auction: %v", err)
	}
	if got := len(f.auctions.OpenLots()); got != 0 {
		t.Errorf("lots created for zero amount: %d", got)
	}
	if got := f.auctions.TotalCollateralInAuction(f.dot); got != 0 {
		t.Errorf("locked total for zero amount: %d", got)
	}
}

func TestCreateAuctionsNegativeAmountRejected(t *testing.T) {
	f := newAuctionFixture(t, 10, 100)
	seedCollateral(t, f, 100)

	if err := f.treasury.AuctionCollateral(f.dot, -1, 0, true); err == nil {
		t.Fatal("expected negative amount rejection")
	}
	if got := len(f.auctions.OpenLots()); got != 0 {
		t.Errorf("lots created for negative amount: %d", got)
	}
}

func TestCreateAuctionsCollateralNotEnough(t *testing.T) {
	f := newAuctionFixture(t, 10, 100)
	seedCollateral(t, f, 100)

	err := f.treasury.AuctionCollateral(f.dot, 150, 300, true)
	if !errors.Is(err, treasury.ErrCollateralNotEnough) {
		t.Fatalf("expected ErrCollateralNotEnough, got %v", err)
	}
	if got := len(f.auctions.OpenLots()); got != 0 {
		t.Errorf("lots created on failed check: %d", got)
	}
}

func TestCreateAuctionsCountsLockedCollateral(t *testing.T) {
	f := newAuctionFixture(t, 10, 100)
	seedCollateral(t, f, 200)

	if err := f.treasury.AuctionCollateral(f.dot, 150, 300, false); err != nil {
		t.Fatalf("first auction: %v", err)
	}
	// 50 free left, 150 locked.
	err := f.treasury.AuctionCollateral(f.dot, 100, 200, false)
	if !errors.Is(err, treasury.ErrCollateralNotEnough) {
		t.Fatalf("expected ErrCollateralNotEnough, got %v", err)
	}
}

// failAfterManager rejects lot registration after n successes.
type failAfterManager struct {
	*auction.MemoryManager
	n int
}

func (m *failAfterManager) NewCollateralAuction(refundReceiver ledger.AccountID, currency ledger.CurrencyID, amount, target int64) error {
	if m.n == 0 {
		return fmt.Errorf("auction backend unavailable")
	}
	m.n--
	return m.MemoryManager.NewCollateralAuction(refundReceiver, currency, amount, target)
}

func TestCreateAuctionsRollsBackOnLotFailure(t *testing.T) {
	ml := ledger.NewMemoryLedger()
	am := &failAfterManager{MemoryManager: auction.NewMemoryManager(), n: 1}
	dot, _ := ledger.GetCurrencyID("DOT")
	params := treasury.NewParams(10, map[ledger.CurrencyID]int64{dot: 100})
	tr := treasury.New(ml, am, dex.NewMemoryDEX(ml), params, zerolog.Nop())

	if err := ml.Deposit(dot, ledger.TreasuryAccount, 250); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := tr.AuctionCollateral(dot, 250, 500, true)
	if err == nil {
		t.Fatal("expected lot registration failure")
	}
	if got := len(am.OpenLots()); got != 0 {
		t.Errorf("partial lots survived rollback: %d", got)
	}
	if got := am.TotalCollateralInAuction(dot); got != 0 {
		t.Errorf("locked total survived rollback: %d", got)
	}
}
