package treasury

import (
	"fmt"

	"CDPTreasury/internal/ledger"
)

// Params holds the auction configuration of the treasury.
//
// The expected auction size is the target maximum stable-asset-equivalent
// size per collateral auction lot; 0 disables splitting for that currency.
// MaxAuctionsCount caps the number of lots a single liquidation may be split
// into; 0 disables splitting entirely. It is fixed at construction time.
type Params struct {
	expectedAuctionSize map[ledger.CurrencyID]int64
	maxAuctionsCount    int64
}

func NewParams(maxAuctionsCount int64, genesisSizes map[ledger.CurrencyID]int64) *Params {
	sizes := make(map[ledger.CurrencyID]int64, len(genesisSizes))
	for c, s := range genesisSizes {
		sizes[c] = s
	}
	return &Params{
		expectedAuctionSize: sizes,
		maxAuctionsCount:    maxAuctionsCount,
	}
}

// ExpectedCollateralAuctionSize returns the per-lot target size for a
// currency; 0 when unset.
func (p *Params) ExpectedCollateralAuctionSize(currency ledger.CurrencyID) int64 {
	return p.expectedAuctionSize[currency]
}

// SetExpectedCollateralAuctionSize updates the per-currency lot size.
// Privileged configuration update; the caller emits the change notification.
func (p *Params) SetExpectedCollateralAuctionSize(currency ledger.CurrencyID, size int64) error {
	if size < 0 {
		return fmt.Errorf("auction size must be non-negative, got %d", size)
	}
	p.expectedAuctionSize[currency] = size
	return nil
}

func (p *Params) MaxAuctionsCount() int64 {
	return p.maxAuctionsCount
}

// AuctionSizes returns a copy of the per-currency size map (for snapshots).
func (p *Params) AuctionSizes() map[ledger.CurrencyID]int64 {
	out := make(map[ledger.CurrencyID]int64, len(p.expectedAuctionSize))
	for c, s := range p.expectedAuctionSize {
		out[c] = s
	}
	return out
}

// RestoreAuctionSizes force-loads the size map (snapshot recovery).
func (p *Params) RestoreAuctionSizes(sizes map[ledger.CurrencyID]int64) {
	p.expectedAuctionSize = make(map[ledger.CurrencyID]int64, len(sizes))
	for c, s := range sizes {
		p.expectedAuctionSize[c] = s
	}
}
