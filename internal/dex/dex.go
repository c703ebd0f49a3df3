package dex

import (
	"errors"
	"fmt"

	"CDPTreasury/internal/ledger"
)

var (
	// ErrInsufficientLiquidity is returned when the pool cannot cover the
	// requested output.
	ErrInsufficientLiquidity = errors.New("insufficient dex liquidity")

	// ErrBelowMinTarget is returned by exact-supply swaps when the output
	// would fall below the caller's minimum.
	ErrBelowMinTarget = errors.New("swap output below minimum target")

	// ErrExceedsMaxSupply is returned by exact-target swaps when the required
	// input would exceed the caller's maximum.
	ErrExceedsMaxSupply = errors.New("swap input exceeds maximum supply")

	// ErrNoTradingPair is returned when a path hop has no configured pair.
	ErrNoTradingPair = errors.New("no trading pair")
)

// DEX is the swap collaborator as seen by the treasury. The treasury trusts
// its settlement; routing and pricing are its own concern.
type DEX interface {
	SwapWithExactSupply(who ledger.AccountID, path []ledger.CurrencyID, supplyAmount, minTarget int64) (int64, error)
	SwapWithExactTarget(who ledger.AccountID, path []ledger.CurrencyID, targetAmount, maxSupply int64) (int64, error)
}

// Rate is a fixed exchange rate: target = supply * Num / Den.
type Rate struct {
	Num int64
	Den int64
}

type pair struct {
	from ledger.CurrencyID
	to   ledger.CurrencyID
}

// MemoryDEX swaps along configured fixed-rate pairs, settling through the
// ledger against the dex pool account. It exists to exercise the DEX
// interface in the single-binary deployment and in tests; real pricing is
// out of scope.
type MemoryDEX struct {
	ledger *ledger.MemoryLedger
	rates  map[pair]Rate
}

func NewMemoryDEX(l *ledger.MemoryLedger) *MemoryDEX {
	return &MemoryDEX{
		ledger: l,
		rates:  make(map[pair]Rate),
	}
}

// SetRate configures the exchange rate for a directed pair.
func (d *MemoryDEX) SetRate(from, to ledger.CurrencyID, rate Rate) {
	d.rates[pair{from, to}] = rate
}

// SwapWithExactSupply swaps exactly supplyAmount along path, returning the
// actual target received. Fails without side effects if the output would be
// below minTarget or the pool lacks funds.
func (d *MemoryDEX) SwapWithExactSupply(who ledger.AccountID, path []ledger.CurrencyID, supplyAmount, minTarget int64) (int64, error) {
	target, err := d.quoteSupply(path, supplyAmount)
	if err != nil {
		return 0, err
	}
	if target < minTarget {
		return 0, fmt.Errorf("got %d, need at least %d: %w", target, minTarget, ErrBelowMinTarget)
	}
	if err := d.settle(who, path, supplyAmount, target); err != nil {
		return 0, err
	}
	return target, nil
}

// SwapWithExactTarget swaps along path until exactly targetAmount is
// received, returning the actual supply spent. Fails without side effects if
// the required supply would exceed maxSupply.
func (d *MemoryDEX) SwapWithExactTarget(who ledger.AccountID, path []ledger.CurrencyID, targetAmount, maxSupply int64) (int64, error) {
	supply, err := d.quoteTarget(path, targetAmount)
	if err != nil {
		return 0, err
	}
	if supply > maxSupply {
		return 0, fmt.Errorf("need %d, capped at %d: %w", supply, maxSupply, ErrExceedsMaxSupply)
	}
	if err := d.settle(who, path, supply, targetAmount); err != nil {
		return 0, err
	}
	return supply, nil
}

// quoteSupply walks the path forward: how much target does supplyAmount buy.
func (d *MemoryDEX) quoteSupply(path []ledger.CurrencyID, supplyAmount int64) (int64, error) {
	amount := supplyAmount
	for i := 0; i+1 < len(path); i++ {
		rate, ok := d.rates[pair{path[i], path[i+1]}]
		if !ok || rate.Den == 0 {
			return 0, fmt.Errorf("%s -> %s: %w", currencyName(path[i]), currencyName(path[i+1]), ErrNoTradingPair)
		}
		amount = amount * rate.Num / rate.Den
	}
	return amount, nil
}

// quoteTarget walks the path backward: how much supply buys targetAmount,
// rounding each hop up so the target is always met.
func (d *MemoryDEX) quoteTarget(path []ledger.CurrencyID, targetAmount int64) (int64, error) {
	amount := targetAmount
	for i := len(path) - 1; i > 0; i-- {
		rate, ok := d.rates[pair{path[i-1], path[i]}]
		if !ok || rate.Num == 0 {
			return 0, fmt.Errorf("%s -> %s: %w", currencyName(path[i-1]), currencyName(path[i]), ErrNoTradingPair)
		}
		amount = (amount*rate.Den + rate.Num - 1) / rate.Num
	}
	return amount, nil
}

func (d *MemoryDEX) settle(who ledger.AccountID, path []ledger.CurrencyID, supply, target int64) error {
	source := path[0]
	dest := path[len(path)-1]

	if d.ledger.FreeBalance(dest, ledger.DexPoolAccount) < target {
		return fmt.Errorf("pool holds %d of %s, need %d: %w",
			d.ledger.FreeBalance(dest, ledger.DexPoolAccount), currencyName(dest), target, ErrInsufficientLiquidity)
	}
	if err := d.ledger.Transfer(source, who, ledger.DexPoolAccount, supply); err != nil {
		return err
	}
	return d.ledger.Transfer(dest, ledger.DexPoolAccount, who, target)
}

func currencyName(c ledger.CurrencyID) string {
	if s, ok := ledger.GetCurrencySymbol(c); ok {
		return s
	}
	return fmt.Sprintf("currency(%d)", c)
}
