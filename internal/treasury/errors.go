package treasury

import "errors"

var (
	// ErrCollateralNotEnough means the requested amount exceeds the available
	// free or auction-eligible collateral of the treasury.
	ErrCollateralNotEnough = errors.New("treasury collateral not enough")

	// ErrSurplusPoolNotEnough means a caller asked for more stable asset than
	// the surplus pool holds.
	ErrSurplusPoolNotEnough = errors.New("surplus pool not enough")

	// ErrDebitPoolNotEnough means a caller asked to settle more bad debt than
	// the debit pool records.
	ErrDebitPoolNotEnough = errors.New("debit pool not enough")

	// ErrInvalidSwapPath means the swap path does not start at the source
	// currency, does not end at the stable asset, or has fewer than two hops.
	ErrInvalidSwapPath = errors.New("invalid swap path")
)
