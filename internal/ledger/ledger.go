package ledger

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInsufficientBalance is returned by Withdraw/Transfer when the source
	// account lacks funds.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOverflow is returned when an operation would push a balance or the
	// total issuance past the representable range.
	ErrOverflow = errors.New("arithmetic overflow")
)

// Ledger is the fungible-asset capability the treasury is built on.
// All amounts are non-negative fixed-precision integers.
type Ledger interface {
	FreeBalance(currency CurrencyID, account AccountID) int64
	TotalIssuance(currency CurrencyID) int64
	Transfer(currency CurrencyID, from, to AccountID, amount int64) error
	Deposit(currency CurrencyID, account AccountID, amount int64) error
	Withdraw(currency CurrencyID, account AccountID, amount int64) error
}

// EntryKind classifies a ledger mutation for the operation journal.
type EntryKind int32

const (
	EntryTransferOut EntryKind = iota
	EntryTransferIn
	EntryDeposit
	EntryWithdraw
)

// Entry records a single applied balance mutation. Drained per event by the
// settlement core and persisted as the operation journal.
type Entry struct {
	Account  AccountID
	Currency CurrencyID
	Amount   int64 // always positive; Kind carries the direction
	Kind     EntryKind
}

// MemoryLedger is the in-process Ledger implementation. Balances and issuance
// are plain maps; callers are serialized by the single-threaded core.
type MemoryLedger struct {
	balances map[CurrencyID]map[AccountID]int64
	issuance map[CurrencyID]int64
	journal  []Entry
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[CurrencyID]map[AccountID]int64),
		issuance: make(map[CurrencyID]int64),
	}
}

func (ml *MemoryLedger) FreeBalance(currency CurrencyID, account AccountID) int64 {
	return ml.balances[currency][account]
}

func (ml *MemoryLedger) TotalIssuance(currency CurrencyID) int64 {
	return ml.issuance[currency]
}

// Transfer moves amount from one account to another without changing issuance.
func (ml *MemoryLedger) Transfer(currency CurrencyID, from, to AccountID, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount == 0 || from == to {
		return nil
	}
	if ml.FreeBalance(currency, from) < amount {
		return fmt.Errorf("transfer %d of %s from %s: %w", amount, symbol(currency), from, ErrInsufficientBalance)
	}
	// Destination overflow is unreachable while issuance stays below MaxInt64,
	// but the check keeps the ledger safe against a corrupted state.
	if ml.FreeBalance(currency, to) > math.MaxInt64-amount {
		return fmt.Errorf("transfer %d of %s to %s: %w", amount, symbol(currency), to, ErrOverflow)
	}
	ml.adjust(currency, from, -amount)
	ml.adjust(currency, to, amount)
	ml.journal = append(ml.journal,
		Entry{Account: from, Currency: currency, Amount: amount, Kind: EntryTransferOut},
		Entry{Account: to, Currency: currency, Amount: amount, Kind: EntryTransferIn},
	)
	return nil
}

// Deposit mints amount into an account, expanding total issuance.
func (ml *MemoryLedger) Deposit(currency CurrencyID, account AccountID, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if ml.issuance[currency] > math.MaxInt64-amount {
		return fmt.Errorf("deposit %d of %s: %w", amount, symbol(currency), ErrOverflow)
	}
	ml.issuance[currency] += amount
	ml.adjust(currency, account, amount)
	ml.journal = append(ml.journal,
		Entry{Account: account, Currency: currency, Amount: amount, Kind: EntryDeposit})
	return nil
}

// Withdraw burns amount from an account, contracting total issuance.
func (ml *MemoryLedger) Withdraw(currency CurrencyID, account AccountID, amount int64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if ml.FreeBalance(currency, account) < amount {
		return fmt.Errorf("withdraw %d of %s from %s: %w", amount, symbol(currency), account, ErrInsufficientBalance)
	}
	ml.issuance[currency] -= amount
	ml.adjust(currency, account, -amount)
	ml.journal = append(ml.journal,
		Entry{Account: account, Currency: currency, Amount: amount, Kind: EntryWithdraw})
	return nil
}

func (ml *MemoryLedger) adjust(currency CurrencyID, account AccountID, delta int64) {
	accounts := ml.balances[currency]
	if accounts == nil {
		accounts = make(map[AccountID]int64)
		ml.balances[currency] = accounts
	}
	accounts[account] += delta
	if accounts[account] == 0 {
		delete(accounts, account)
	}
}

// TakeJournal returns the mutations applied since the last call and resets
// the journal. Called once per processed event by the core.
func (ml *MemoryLedger) TakeJournal() []Entry {
	j := ml.journal
	ml.journal = nil
	return j
}

// Snapshot returns a restore closure capturing the full ledger state,
// including the pending journal. Used for transactional rollback: every
// state-mutating treasury operation restores on failure so no partial
// mutation escapes.
func (ml *MemoryLedger) Snapshot() func() {
	balances := make(map[CurrencyID]map[AccountID]int64, len(ml.balances))
	for c, accounts := range ml.balances {
		inner := make(map[AccountID]int64, len(accounts))
		for a, b := range accounts {
			inner[a] = b
		}
		balances[c] = inner
	}
	issuance := make(map[CurrencyID]int64, len(ml.issuance))
	for c, i := range ml.issuance {
		issuance[c] = i
	}
	journalLen := len(ml.journal)

	return func() {
		ml.balances = balances
		ml.issuance = issuance
		ml.journal = ml.journal[:journalLen]
	}
}

// Balances returns a copy of all non-zero balances keyed by currency then
// account (for state hashing and snapshots).
func (ml *MemoryLedger) Balances() map[CurrencyID]map[AccountID]int64 {
	out := make(map[CurrencyID]map[AccountID]int64, len(ml.balances))
	for c, accounts := range ml.balances {
		inner := make(map[AccountID]int64, len(accounts))
		for a, b := range accounts {
			inner[a] = b
		}
		out[c] = inner
	}
	return out
}

// Issuance returns a copy of total issuance per currency.
func (ml *MemoryLedger) Issuance() map[CurrencyID]int64 {
	out := make(map[CurrencyID]int64, len(ml.issuance))
	for c, i := range ml.issuance {
		out[c] = i
	}
	return out
}

// SetBalance force-sets an account balance without journaling.
// Only used by snapshot restore.
func (ml *MemoryLedger) SetBalance(currency CurrencyID, account AccountID, balance int64) {
	accounts := ml.balances[currency]
	if accounts == nil {
		accounts = make(map[AccountID]int64)
		ml.balances[currency] = accounts
	}
	accounts[account] = balance
}

// SetIssuance force-sets total issuance. Only used by snapshot restore.
func (ml *MemoryLedger) SetIssuance(currency CurrencyID, issuance int64) {
	ml.issuance[currency] = issuance
}

func validAmount(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative amount %d: %w", amount, ErrOverflow)
	}
	return nil
}

func symbol(currency CurrencyID) string {
	if s, ok := GetCurrencySymbol(currency); ok {
		return s
	}
	return fmt.Sprintf("currency(%d)", currency)
}

// SaturatingSub returns a-b clamped at zero. The treasury uses it wherever an
// external collaborator could report a stale, larger amount.
func SaturatingSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}
