package auction_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"CDPTreasury/internal/auction"
	"CDPTreasury/internal/ledger"
)

func TestMemoryManager_NewCollateralAuctionLocks(t *testing.T) {
	m := auction.NewMemoryManager()
	dot, _ := ledger.GetCurrencyID("DOT")

	if err := m.NewCollateralAuction(ledger.TreasuryAccount, dot, 100, 50); err != nil {
		t.Fatalf("new auction: %v", err)
	}
	if err := m.NewCollateralAuction(ledger.TreasuryAccount, dot, 25, 10); err != nil {
		t.Fatalf("new auction: %v", err)
	}

	if got := m.TotalCollateralInAuction(dot); got != 125 {
		t.Errorf("locked: got %d, want 125", got)
	}
	if got := len(m.OpenLots()); got != 2 {
		t.Errorf("open lots: got %d, want 2", got)
	}
}

func TestMemoryManager_ZeroAmountRejected(t *testing.T) {
	m := auction.NewMemoryManager()
	dot, _ := ledger.GetCurrencyID("DOT")

	if err := m.NewCollateralAuction(ledger.TreasuryAccount, dot, 0, 0); err == nil {
		t.Error("zero-amount lot should be rejected")
	}
}

func TestMemoryManager_DealLotUnlocks(t *testing.T) {
	m := auction.NewMemoryManager()
	dot, _ := ledger.GetCurrencyID("DOT")

	if err := m.NewCollateralAuction(ledger.TreasuryAccount, dot, 100, 50); err != nil {
		t.Fatalf("new auction: %v", err)
	}
	lotID := m.OpenLots()[0].LotID

	lot, err := m.DealLot(lotID)
	if err != nil {
		t.Fatalf("deal lot: %v", err)
	}
	if lot.Amount != 100 {
		t.Errorf("dealt amount: got %d, want 100", lot.Amount)
	}
	if got := m.TotalCollateralInAuction(dot); got != 0 {
		t.Errorf("locked after deal: got %d, want 0", got)
	}
	if got := len(m.OpenLots()); got != 0 {
		t.Errorf("open lots after deal: got %d, want 0", got)
	}
}

func TestMemoryManager_DealUnknownLot(t *testing.T) {
	m := auction.NewMemoryManager()

	_, err := m.DealLot(uuid.New())
	if !errors.Is(err, auction.ErrUnknownLot) {
		t.Errorf("expected ErrUnknownLot, got %v", err)
	}
}

func TestMemoryManager_ReleaseCollateralSaturates(t *testing.T) {
	m := auction.NewMemoryManager()
	dot, _ := ledger.GetCurrencyID("DOT")

	if err := m.NewCollateralAuction(ledger.TreasuryAccount, dot, 40, 20); err != nil {
		t.Fatalf("new auction: %v", err)
	}

	// Releasing more than is locked clamps at zero rather than underflowing.
	m.ReleaseCollateral(dot, 100)
	if got := m.TotalCollateralInAuction(dot); got != 0 {
		t.Errorf("locked after over-release: got %d, want 0", got)
	}
}

func TestMemoryManager_SnapshotRestore(t *testing.T) {
	m := auction.NewMemoryManager()
	dot, _ := ledger.GetCurrencyID("DOT")

	if err := m.NewCollateralAuction(ledger.TreasuryAccount, dot, 100, 50); err != nil {
		t.Fatalf("new auction: %v", err)
	}

	restore := m.Snapshot()

	if err := m.NewCollateralAuction(ledger.TreasuryAccount, dot, 30, 15); err != nil {
		t.Fatalf("new auction: %v", err)
	}
	restore()

	if got := m.TotalCollateralInAuction(dot); got != 100 {
		t.Errorf("locked after restore: got %d, want 100", got)
	}
	if got := len(m.OpenLots()); got != 1 {
		t.Errorf("open lots after restore: got %d, want 1", got)
	}
}
