package treasury

import (
	"fmt"

	"CDPTreasury/internal/ledger"
)

// AuctionCollateral starts collateral auctions for treasury-held collateral.
// Privileged operation. Proceeds and refunds flow back to the treasury
// account.
func (t *Treasury) AuctionCollateral(currency ledger.CurrencyID, amount, target int64, splitIntoLots bool) error {
	return t.CreateCollateralAuctions(currency, amount, target, t.account, splitIntoLots)
}

// CreateCollateralAuctions splits amount of collateral into auction lots and
// registers each with the auction manager.
//
// Splitting is disabled when splitIntoLots is false, the lot count cap is 0,
// or no expected size is configured for the currency; amounts at or below the
// expected size always go as a single lot. Otherwise the lot count is
// ceil(amount / expectedSize) clamped to the cap. Amount and target divide
// evenly across lots with integer division; the last lot absorbs both
// remainders so the totals are exact.
//
// Registration failure on any lot rolls the whole batch back.
func (t *Treasury) CreateCollateralAuctions(
	currency ledger.CurrencyID,
	amount, target int64,
	refundReceiver ledger.AccountID,
	splitIntoLots bool,
) error {
	if amount < 0 {
		return fmt.Errorf("auction amount must be non-negative, got %d", amount)
	}
	if amount == 0 {
		// Nothing to auction; zero lots created.
		return nil
	}
	if available := t.TotalCollateralsNotInAuction(currency); available < amount {
		return fmt.Errorf("have %d of %s free, need %d: %w",
			available, currencySymbol(currency), amount, ErrCollateralNotEnough)
	}

	expectedSize := t.params.ExpectedCollateralAuctionSize(currency)
	maxCount := t.params.MaxAuctionsCount()

	var lotsCount int64 = 1
	if splitIntoLots && maxCount > 0 && expectedSize > 0 && amount > expectedSize {
		lotsCount = amount / expectedSize
		if amount%expectedSize != 0 {
			lotsCount++
		}
		if lotsCount > maxCount {
			lotsCount = maxCount
		}
	}

	amountPerLot := amount / lotsCount
	targetPerLot := target / lotsCount

	return t.transactional(func() error {
		unhandledAmount := amount
		unhandledTarget := target
		var createdLots int64

		for unhandledAmount > 0 {
			createdLots++
			lotAmount := amountPerLot
			lotTarget := targetPerLot
			if createdLots == lotsCount {
				// Last lot takes the division residue.
				lotAmount = unhandledAmount
				lotTarget = unhandledTarget
			}
			if err := t.auctions.NewCollateralAuction(refundReceiver, currency, lotAmount, lotTarget); err != nil {
				return fmt.Errorf("lot %d/%d: %w", createdLots, lotsCount, err)
			}
			unhandledAmount -= lotAmount
			unhandledTarget -= lotTarget
		}
		return nil
	})
}

func currencySymbol(c ledger.CurrencyID) string {
	if s, ok := ledger.GetCurrencySymbol(c); ok {
		return s
	}
	return fmt.Sprintf("currency(%d)", c)
}
