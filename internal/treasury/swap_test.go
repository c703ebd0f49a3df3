package treasury_test

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"CDPTreasury/internal/auction"
	"CDPTreasury/internal/dex"
	"CDPTreasury/internal/ledger"
	"CDPTreasury/internal/treasury"
)

func newSwapFixture(t *testing.T) *fixture {
	t.Helper()

	ml := ledger.NewMemoryLedger()
	am := auction.NewMemoryManager()
	d := dex.NewMemoryDEX(ml)
	dot, _ := ledger.GetCurrencyID("DOT")
	params := treasury.NewParams(100, nil)

	// 1 DOT = 2 AUSD
	d.SetRate(dot, ledger.StableCurrency, dex.Rate{Num: 2, Den: 1})
	if err := ml.Deposit(ledger.StableCurrency, ledger.DexPoolAccount, 100_000); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	if err := ml.Deposit(dot, ledger.TreasuryAccount, 1_000); err != nil {
		t.Fatalf("seed treasury: %v", err)
	}
	return &fixture{
		ledger:   ml,
		auctions: am,
		dex:      d,
		treasury: treasury.New(ml, am, d, params, zerolog.Nop()),
		dot:      dot,
	}
}

func TestSwapExactCollateralToStable(t *testing.T) {
	f := newSwapFixture(t)

	path := []ledger.CurrencyID{f.dot, ledger.StableCurrency}
	target, err := f.treasury.SwapExactCollateralToStable(f.dot, 100, 150, path, false)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if target != 200 {
		t.Errorf("target: got %d, want 200", target)
	}
	if got := f.treasury.TotalCollaterals(f.dot); got != 900 {
		t.Errorf("collateral: got %d, want 900", got)
	}
	if got := f.treasury.SurplusPool(); got != 200 {
		t.Errorf("surplus pool: got %d, want 200", got)
	}
}

func TestSwapCollateralToExactStable(t *testing.T) {
	f := newSwapFixture(t)

	path := []ledger.CurrencyID{f.dot, ledger.StableCurrency}
	supply, err := f.treasury.SwapCollateralToExactStable(f.dot, 200, 150, path, false)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if supply != 100 {
		t.Errorf("supply: got %d, want 100", supply)
	}
	if got := f.treasury.SurplusPool(); got != 200 {
		t.Errorf("surplus pool: got %d, want 200", got)
	}
}

func TestSwapPathValidation(t *testing.T) {
	f := newSwapFixture(t)
	ldot, _ := ledger.GetCurrencyID("LDOT")

	cases := []struct {
		name string
		path []ledger.CurrencyID
	}{
		{"single element", []ledger.CurrencyID{f.dot}},
		{"empty", nil},
		{"wrong start", []ledger.CurrencyID{ldot, ledger.StableCurrency}},
		{"wrong end", []ledger.CurrencyID{f.dot, ldot}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.treasury.SwapExactCollateralToStable(f.dot, 100, 0, tc.path, false)
			if !errors.Is(err, treasury.ErrInvalidSwapPath) {
				t.Fatalf("expected ErrInvalidSwapPath, got %v", err)
			}
		})
	}
}

func TestSwapFreeCollateralNotEnough(t *testing.T) {
	f := newSwapFixture(t)

	// Lock most of the balance in auction.
	if err := f.auctions.NewCollateralAuction(ledger.TreasuryAccount, f.dot, 950, 1_900); err != nil {
		t.Fatalf("auction: %v", err)
	}
	path := []ledger.CurrencyID{f.dot, ledger.StableCurrency}
	_, err := f.treasury.SwapExactCollateralToStable(f.dot, 100, 0, path, false)
	if !errors.Is(err, treasury.ErrCollateralNotEnough) {
		t.Fatalf("expected ErrCollateralNotEnough, got %v", err)
	}
}

func TestSwapCollateralInAuction(t *testing.T) {
	f := newSwapFixture(t)

	if err := f.auctions.NewCollateralAuction(ledger.TreasuryAccount, f.dot, 950, 1_900); err != nil {
		t.Fatalf("auction: %v", err)
	}
	path := []ledger.CurrencyID{f.dot, ledger.StableCurrency}

	// With the in-auction flag the locked balance is eligible.
	target, err := f.treasury.SwapExactCollateralToStable(f.dot, 100, 0, path, true)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if target != 200 {
		t.Errorf("target: got %d, want 200", target)
	}
}

func TestSwapCollateralInAuctionNeedsLock(t *testing.T) {
	f := newSwapFixture(t)

	// Nothing locked: the in-auction flag demands a matching locked amount.
	path := []ledger.CurrencyID{f.dot, ledger.StableCurrency}
	_, err := f.treasury.SwapExactCollateralToStable(f.dot, 100, 0, path, true)
	if !errors.Is(err, treasury.ErrCollateralNotEnough) {
		t.Fatalf("expected ErrCollateralNotEnough, got %v", err)
	}
}

func TestSwapExactTargetChecksMaxSupplyAvailability(t *testing.T) {
	f := newSwapFixture(t)

	// maxSupply above the free balance fails availability before pricing.
	path := []ledger.CurrencyID{f.dot, ledger.StableCurrency}
	_, err := f.treasury.SwapCollateralToExactStable(f.dot, 10, 2_000, path, false)
	if !errors.Is(err, treasury.ErrCollateralNotEnough) {
		t.Fatalf("expected ErrCollateralNotEnough, got %v", err)
	}
}

func TestSwapFailureLeavesNoSideEffects(t *testing.T) {
	f := newSwapFixture(t)

	path := []ledger.CurrencyID{f.dot, ledger.StableCurrency}
	_, err := f.treasury.SwapExactCollateralToStable(f.dot, 100, 500, path, false)
	if !errors.Is(err, dex.ErrBelowMinTarget) {
		t.Fatalf("expected ErrBelowMinTarget, got %v", err)
	}
	if got := f.treasury.TotalCollaterals(f.dot); got != 1_000 {
		t.Errorf("collateral changed on failed swap: got %d", got)
	}
	if got := f.treasury.SurplusPool(); got != 0 {
		t.Errorf("surplus changed on failed swap: got %d", got)
	}
}
