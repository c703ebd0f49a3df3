package auction

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"CDPTreasury/internal/ledger"
)

// ErrUnknownLot is returned when dealing a lot that does not exist.
var ErrUnknownLot = errors.New("unknown auction lot")

// Manager is the external auction collaborator as seen by the treasury:
// it accepts new collateral lots and reports how much collateral is
// currently locked in auction per currency. Bidding, timeouts, and
// settlement are the collaborator's own concern.
type Manager interface {
	NewCollateralAuction(refundReceiver ledger.AccountID, currency ledger.CurrencyID, amount, target int64) error
	TotalCollateralInAuction(currency ledger.CurrencyID) int64
}

// CollateralLot is one sub-unit of a liquidated collateral position,
// auctioned independently.
type CollateralLot struct {
	LotID          uuid.UUID
	RefundReceiver ledger.AccountID
	Currency       ledger.CurrencyID
	Amount         int64
	Target         int64
}

// lotNamespace seeds deterministic lot IDs.
var lotNamespace = uuid.MustParse("7e3f1c9a-2d64-4b8f-9a11-cdb4a85e6f02")

// MemoryManager is the in-process Manager implementation: an open-lot book
// plus per-currency locked totals. It performs no bidding; lots sit open
// until DealLot settles them. Lot IDs derive from a monotonic counter so an
// event-log replay reproduces the exact same IDs.
type MemoryManager struct {
	lots    map[uuid.UUID]CollateralLot
	order   []uuid.UUID
	locked  map[ledger.CurrencyID]int64
	nextLot int64
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		lots:   make(map[uuid.UUID]CollateralLot),
		locked: make(map[ledger.CurrencyID]int64),
	}
}

func (m *MemoryManager) NewCollateralAuction(refundReceiver ledger.AccountID, currency ledger.CurrencyID, amount, target int64) error {
	if amount <= 0 {
		return fmt.Errorf("collateral auction amount must be positive, got %d", amount)
	}
	newLocked, err := ledger.CheckedAdd(m.locked[currency], amount)
	if err != nil {
		return err
	}

	lot := CollateralLot{
		LotID:          lotID(m.nextLot),
		RefundReceiver: refundReceiver,
		Currency:       currency,
		Amount:         amount,
		Target:         target,
	}
	m.lots[lot.LotID] = lot
	m.order = append(m.order, lot.LotID)
	m.locked[currency] = newLocked
	m.nextLot++
	return nil
}

func lotID(seq int64) uuid.UUID {
	return uuid.NewSHA1(lotNamespace, []byte(fmt.Sprintf("lot:%d", seq)))
}

func (m *MemoryManager) TotalCollateralInAuction(currency ledger.CurrencyID) int64 {
	return m.locked[currency]
}

// DealLot settles an open lot: the collateral leaves the locked total and
// the lot is removed from the book. The caller moves the collateral and
// proceeds through the ledger.
func (m *MemoryManager) DealLot(lotID uuid.UUID) (CollateralLot, error) {
	lot, ok := m.lots[lotID]
	if !ok {
		return CollateralLot{}, fmt.Errorf("deal lot %s: %w", lotID, ErrUnknownLot)
	}
	delete(m.lots, lotID)
	for i, id := range m.order {
		if id == lotID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.locked[lot.Currency] = ledger.SaturatingSub(m.locked[lot.Currency], lot.Amount)
	return lot, nil
}

// ReleaseCollateral reduces the locked total without settling a specific lot.
// Used when the treasury pulls collateral out from under an in-flight auction
// (swap with collateral_in_auction=true).
func (m *MemoryManager) ReleaseCollateral(currency ledger.CurrencyID, amount int64) {
	m.locked[currency] = ledger.SaturatingSub(m.locked[currency], amount)
}

// OpenLots returns all open lots in creation order.
func (m *MemoryManager) OpenLots() []CollateralLot {
	out := make([]CollateralLot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.lots[id])
	}
	return out
}

// LockedTotals returns a copy of the per-currency locked amounts.
func (m *MemoryManager) LockedTotals() map[ledger.CurrencyID]int64 {
	out := make(map[ledger.CurrencyID]int64, len(m.locked))
	for c, v := range m.locked {
		out[c] = v
	}
	return out
}

// Snapshot returns a restore closure over the lot book and locked totals.
// The treasury's transactional operations use it so a failure mid-split
// leaves no partial lots behind.
func (m *MemoryManager) Snapshot() func() {
	lots := make(map[uuid.UUID]CollateralLot, len(m.lots))
	for id, lot := range m.lots {
		lots[id] = lot
	}
	order := append([]uuid.UUID(nil), m.order...)
	locked := make(map[ledger.CurrencyID]int64, len(m.locked))
	for c, v := range m.locked {
		locked[c] = v
	}
	nextLot := m.nextLot
	return func() {
		m.lots = lots
		m.order = order
		m.locked = locked
		m.nextLot = nextLot
	}
}

// LotSequence returns the counter behind the next lot ID (snapshot capture).
func (m *MemoryManager) LotSequence() int64 {
	return m.nextLot
}

// Restore force-loads the lot book (snapshot recovery).
func (m *MemoryManager) Restore(lots []CollateralLot, locked map[ledger.CurrencyID]int64, lotSequence int64) {
	m.lots = make(map[uuid.UUID]CollateralLot, len(lots))
	m.order = m.order[:0]
	for _, lot := range lots {
		m.lots[lot.LotID] = lot
		m.order = append(m.order, lot.LotID)
	}
	m.locked = make(map[ledger.CurrencyID]int64, len(locked))
	for c, v := range locked {
		m.locked[c] = v
	}
	m.nextLot = lotSequence
}
