// Package treasury is the accounting and liquidation core of the CDP system.
// It tracks system-wide bad debt and surplus of the stable asset, nets them
// against each other once per settlement cycle, and converts seized
// collateral into stable asset through auction lots or DEX swaps. It is the
// only path by which stable-asset supply is expanded or contracted.
package treasury

import (
	"fmt"

	"github.com/rs/zerolog"

	"CDPTreasury/internal/auction"
	"CDPTreasury/internal/dex"
	"CDPTreasury/internal/ledger"
)

// TransactionalLedger is the ledger capability the treasury requires: the
// plain Ledger operations plus a snapshot hook for operation rollback.
type TransactionalLedger interface {
	ledger.Ledger
	Snapshot() func()
}

// snapshotter is implemented by collaborators that support rollback.
// The in-process auction manager does; a remote one handles its own
// consistency and is simply not snapshotted.
type snapshotter interface {
	Snapshot() func()
}

// Treasury owns the debit pool counter and the treasury account. All state
// mutation goes through its operations; callers are serialized by the
// single-threaded settlement core.
type Treasury struct {
	ledger   TransactionalLedger
	auctions auction.Manager
	dex      dex.DEX
	params   *Params

	stable  ledger.CurrencyID
	account ledger.AccountID
	sink    ledger.AccountID

	// debitPool is the system-wide bad debt in stable units. It is an
	// abstract liability counter, not a ledger balance. Never negative.
	debitPool int64

	log zerolog.Logger
}

func New(
	l TransactionalLedger,
	auctions auction.Manager,
	d dex.DEX,
	params *Params,
	log zerolog.Logger,
) *Treasury {
	return &Treasury{
		ledger:   l,
		auctions: auctions,
		dex:      d,
		params:   params,
		stable:   ledger.StableCurrency,
		account:  ledger.TreasuryAccount,
		sink:     ledger.ProtocolSinkAccount,
		log:      log,
	}
}

// Account returns the treasury's ledger address.
func (t *Treasury) Account() ledger.AccountID {
	return t.account
}

// Params returns the auction configuration store.
func (t *Treasury) Params() *Params {
	return t.params
}

// SurplusPool is the stable-asset balance held by the treasury account.
func (t *Treasury) SurplusPool() int64 {
	return t.ledger.FreeBalance(t.stable, t.account)
}

// DebitPool is the current bad-debt counter.
func (t *Treasury) DebitPool() int64 {
	return t.debitPool
}

// TotalCollaterals is the treasury's balance of a collateral currency.
func (t *Treasury) TotalCollaterals(currency ledger.CurrencyID) int64 {
	return t.ledger.FreeBalance(currency, t.account)
}

// TotalCollateralsNotInAuction is the collateral free for new action.
// Saturating: a stale, larger locked amount from the auction collaborator
// must never underflow.
func (t *Treasury) TotalCollateralsNotInAuction(currency ledger.CurrencyID) int64 {
	return ledger.SaturatingSub(
		t.ledger.FreeBalance(currency, t.account),
		t.auctions.TotalCollateralInAuction(currency),
	)
}

// Ratio is a rational proportion.
type Ratio struct {
	Num int64
	Den int64
}

// Float64 renders the ratio for display; exact consumers use Num/Den.
func (r Ratio) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// DebitProportion is amount relative to total stable issuance, zero when
// nothing is issued.
func (t *Treasury) DebitProportion(amount int64) Ratio {
	issuance := t.ledger.TotalIssuance(t.stable)
	if issuance == 0 {
		return Ratio{}
	}
	return Ratio{Num: amount, Den: issuance}
}

// CheckSurplusPool verifies the surplus pool covers amount.
func (t *Treasury) CheckSurplusPool(amount int64) error {
	if t.SurplusPool() < amount {
		return fmt.Errorf("have %d, need %d: %w", t.SurplusPool(), amount, ErrSurplusPoolNotEnough)
	}
	return nil
}

// CheckDebitPool verifies the debit pool covers amount.
func (t *Treasury) CheckDebitPool(amount int64) error {
	if t.debitPool < amount {
		return fmt.Errorf("have %d, need %d: %w", t.debitPool, amount, ErrDebitPoolNotEnough)
	}
	return nil
}

// OnSystemDebit records newly created bad debt.
func (t *Treasury) OnSystemDebit(amount int64) error {
	next, err := ledger.CheckedAdd(t.debitPool, amount)
	if err != nil {
		return fmt.Errorf("debit pool += %d: %w", amount, err)
	}
	t.debitPool = next
	return nil
}

// OnSystemSurplus issues backed stable asset to the treasury account.
func (t *Treasury) OnSystemSurplus(amount int64) error {
	return t.IssueDebit(t.account, amount, true)
}

// IssueDebit deposits stable asset to who. Unbacked issuance first grows the
// debit pool so the liability is never lost if the deposit itself fails.
func (t *Treasury) IssueDebit(who ledger.AccountID, amount int64, backed bool) error {
	return t.transactional(func() error {
		if !backed {
			if err := t.OnSystemDebit(amount); err != nil {
				return err
			}
		}
		return t.ledger.Deposit(t.stable, who, amount)
	})
}

// BurnDebit withdraws stable asset from who, contracting supply.
func (t *Treasury) BurnDebit(who ledger.AccountID, amount int64) error {
	return t.ledger.Withdraw(t.stable, who, amount)
}

// DepositSurplus moves stable asset from an account into the treasury.
func (t *Treasury) DepositSurplus(from ledger.AccountID, amount int64) error {
	return t.ledger.Transfer(t.stable, from, t.account, amount)
}

// DepositCollateral moves seized collateral into the treasury.
func (t *Treasury) DepositCollateral(from ledger.AccountID, currency ledger.CurrencyID, amount int64) error {
	return t.ledger.Transfer(currency, from, t.account, amount)
}

// WithdrawCollateral moves collateral out of the treasury.
func (t *Treasury) WithdrawCollateral(to ledger.AccountID, currency ledger.CurrencyID, amount int64) error {
	return t.ledger.Transfer(currency, t.account, to, amount)
}

// ExtractSurplusToTreasury moves surplus stable asset to the protocol sink.
// Privileged operation.
func (t *Treasury) ExtractSurplusToTreasury(amount int64) error {
	if err := t.CheckSurplusPool(amount); err != nil {
		return err
	}
	return t.ledger.Transfer(t.stable, t.account, t.sink, amount)
}

// OffsetSurplusAndDebit nets bad debt against surplus by burning
// min(debit, surplus) of stable asset from the treasury account. Runs once
// per settlement cycle, after all other mutations of that cycle. Returns the
// amount burned.
//
// A burn failure is logged and swallowed: the offset amount is achievable by
// construction, so a failure means the ledger raced externally, and blocking
// the settlement cycle would be worse than leaving the pools unreconciled
// for one more cycle.
func (t *Treasury) OffsetSurplusAndDebit() int64 {
	offset := t.debitPool
	if surplus := t.SurplusPool(); surplus < offset {
		offset = surplus
	}
	if offset == 0 {
		return 0
	}

	if err := t.ledger.Withdraw(t.stable, t.account, offset); err != nil {
		t.log.Warn().
			Int64("offset", offset).
			Err(err).
			Msg("burn of offset surplus failed, pools left unreconciled this cycle")
		return 0
	}

	if offset > t.debitPool {
		// offset = min(debit, surplus), so this is unreachable unless the
		// counter was corrupted mid-operation.
		panic(fmt.Sprintf("offset %d exceeds debit pool %d", offset, t.debitPool))
	}
	t.debitPool -= offset
	return offset
}

// transactional runs fn and rolls back every ledger, counter, and (when
// supported) auction-book mutation if it fails. No partial state change ever
// escapes a failed operation.
func (t *Treasury) transactional(fn func() error) error {
	restoreLedger := t.ledger.Snapshot()
	debitBefore := t.debitPool

	var restoreAuctions func()
	if s, ok := t.auctions.(snapshotter); ok {
		restoreAuctions = s.Snapshot()
	}

	if err := fn(); err != nil {
		restoreLedger()
		t.debitPool = debitBefore
		if restoreAuctions != nil {
			restoreAuctions()
		}
		return err
	}
	return nil
}

// SetDebitPool force-sets the counter. Only used by snapshot restore.
func (t *Treasury) SetDebitPool(amount int64) {
	t.debitPool = amount
}
