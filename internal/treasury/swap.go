package treasury

import (
	"fmt"

	"CDPTreasury/internal/ledger"
)

// SwapExactCollateralToStable sells exactly supplyAmount of treasury
// collateral on the DEX for at least minTarget of stable asset, returning the
// stable amount received.
//
// collateralInAuction marks collateral the auction manager is currently
// holding: availability is then judged against the total balance and the
// locked total, not the free portion. The caller (the auction manager on a
// swap-instead-of-deal path) releases the lock itself after the swap.
func (t *Treasury) SwapExactCollateralToStable(
	currency ledger.CurrencyID,
	supplyAmount, minTarget int64,
	path []ledger.CurrencyID,
	collateralInAuction bool,
) (int64, error) {
	if err := t.checkSwap(currency, supplyAmount, path, collateralInAuction); err != nil {
		return 0, err
	}

	var target int64
	err := t.transactional(func() error {
		var err error
		target, err = t.dex.SwapWithExactSupply(t.account, path, supplyAmount, minTarget)
		return err
	})
	return target, err
}

// SwapCollateralToExactStable sells treasury collateral on the DEX until
// exactly targetAmount of stable asset is received, spending at most
// maxSupply. Returns the collateral amount spent.
func (t *Treasury) SwapCollateralToExactStable(
	currency ledger.CurrencyID,
	targetAmount, maxSupply int64,
	path []ledger.CurrencyID,
	collateralInAuction bool,
) (int64, error) {
	if err := t.checkSwap(currency, maxSupply, path, collateralInAuction); err != nil {
		return 0, err
	}

	var supply int64
	err := t.transactional(func() error {
		var err error
		supply, err = t.dex.SwapWithExactTarget(t.account, path, targetAmount, maxSupply)
		return err
	})
	return supply, err
}

// checkSwap validates collateral availability and the swap path. The supply
// bound is the exact amount for exact-supply swaps and the maximum for
// exact-target swaps.
func (t *Treasury) checkSwap(
	currency ledger.CurrencyID,
	supplyBound int64,
	path []ledger.CurrencyID,
	collateralInAuction bool,
) error {
	if collateralInAuction {
		// Collateral pulled out from under an in-flight auction must be both
		// held and locked for the requested amount.
		if t.TotalCollaterals(currency) < supplyBound ||
			t.auctions.TotalCollateralInAuction(currency) < supplyBound {
			return fmt.Errorf("swap %d of %s from auction: %w",
				supplyBound, currencySymbol(currency), ErrCollateralNotEnough)
		}
	} else {
		if t.TotalCollateralsNotInAuction(currency) < supplyBound {
			return fmt.Errorf("swap %d of %s: %w",
				supplyBound, currencySymbol(currency), ErrCollateralNotEnough)
		}
	}

	if len(path) < 2 {
		return fmt.Errorf("path length %d: %w", len(path), ErrInvalidSwapPath)
	}
	if path[0] != currency {
		return fmt.Errorf("path starts at %s, want %s: %w",
			currencySymbol(path[0]), currencySymbol(currency), ErrInvalidSwapPath)
	}
	if path[len(path)-1] != t.stable {
		return fmt.Errorf("path ends at %s, want %s: %w",
			currencySymbol(path[len(path)-1]), currencySymbol(t.stable), ErrInvalidSwapPath)
	}
	return nil
}
