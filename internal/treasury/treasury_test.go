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

type fixture struct {
	ledger   *ledger.MemoryLedger
	auctions *auction.MemoryManager
	dex      *dex.MemoryDEX
	treasury *treasury.Treasury
	dot      ledger.CurrencyID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ml := ledger.NewMemoryLedger()
	am := auction.NewMemoryManager()
	d := dex.NewMemoryDEX(ml)
	params := treasury.NewParams(100, nil)
	dot, ok := ledger.GetCurrencyID("DOT")
	if !ok {
		t.Fatal("DOT not registered")
	}
	return &fixture{
		ledger:   ml,
		auctions: am,
		dex:      d,
		treasury: treasury.New(ml, am, d, params, zerolog.Nop()),
		dot:      dot,
	}
}

func TestPoolsStartEmpty(t *testing.T) {
	f := newFixture(t)
	if got := f.treasury.SurplusPool(); got != 0 {
		t.Errorf("surplus pool: got %d, want 0", got)
	}
	if got := f.treasury.DebitPool(); got != 0 {
		t.Errorf("debit pool: got %d, want 0", got)
	}
}

func TestOnSystemSurplus(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemSurplus(500); err != nil {
		t.Fatalf("on system surplus: %v", err)
	}
	if got := f.treasury.SurplusPool(); got != 500 {
		t.Errorf("surplus pool: got %d, want 500", got)
	}
	if got := f.ledger.TotalIssuance(ledger.StableCurrency); got != 500 {
		t.Errorf("issuance: got %d, want 500", got)
	}
	if got := f.treasury.DebitPool(); got != 0 {
		t.Errorf("debit pool grew on backed surplus: got %d", got)
	}
}

func TestOnSystemDebit(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemDebit(300); err != nil {
		t.Fatalf("on system debit: %v", err)
	}
	if got := f.treasury.DebitPool(); got != 300 {
		t.Errorf("debit pool: got %d, want 300", got)
	}
	// Debit is a liability counter, not money.
	if got := f.ledger.TotalIssuance(ledger.StableCurrency); got != 0 {
		t.Errorf("issuance changed on debit: got %d", got)
	}
}

func TestOnSystemDebitOverflow(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemDebit(1 << 62); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	err := f.treasury.OnSystemDebit(1 << 62)
	if !errors.Is(err, ledger.ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if got := f.treasury.DebitPool(); got != 1<<62 {
		t.Errorf("debit pool changed on failed add: got %d", got)
	}
}

func TestIssueDebitUnbacked(t *testing.T) {
	f := newFixture(t)

	user := ledger.AccountID("user/alice")
	if err := f.treasury.IssueDebit(user, 100, false); err != nil {
		t.Fatalf("issue debit: %v", err)
	}
	if got := f.ledger.FreeBalance(ledger.StableCurrency, user); got != 100 {
		t.Errorf("user balance: got %d, want 100", got)
	}
	if got := f.treasury.DebitPool(); got != 100 {
		t.Errorf("debit pool: got %d, want 100", got)
	}
}

func TestBurnDebit(t *testing.T) {
	f := newFixture(t)

	user := ledger.AccountID("user/alice")
	if err := f.treasury.IssueDebit(user, 100, true); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := f.treasury.BurnDebit(user, 40); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := f.ledger.FreeBalance(ledger.StableCurrency, user); got != 60 {
		t.Errorf("user balance: got %d, want 60", got)
	}
	if got := f.ledger.TotalIssuance(ledger.StableCurrency); got != 60 {
		t.Errorf("issuance: got %d, want 60", got)
	}
}

func TestDepositSurplus(t *testing.T) {
	f := newFixture(t)

	user := ledger.AccountID("user/alice")
	if err := f.ledger.Deposit(ledger.StableCurrency, user, 250); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.treasury.DepositSurplus(user, 250); err != nil {
		t.Fatalf("deposit surplus: %v", err)
	}
	if got := f.treasury.SurplusPool(); got != 250 {
		t.Errorf("surplus pool: got %d, want 250", got)
	}
	// Transfer, not issuance.
	if got := f.ledger.TotalIssuance(ledger.StableCurrency); got != 250 {
		t.Errorf("issuance: got %d, want 250", got)
	}
}

func TestCollateralDepositWithdraw(t *testing.T) {
	f := newFixture(t)

	vault := ledger.AccountID("cdp/vault-1")
	if err := f.ledger.Deposit(f.dot, vault, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.treasury.DepositCollateral(vault, f.dot, 600); err != nil {
		t.Fatalf("deposit collateral: %v", err)
	}
	if got := f.treasury.TotalCollaterals(f.dot); got != 600 {
		t.Errorf("total collaterals: got %d, want 600", got)
	}
	if err := f.treasury.WithdrawCollateral(vault, f.dot, 200); err != nil {
		t.Fatalf("withdraw collateral: %v", err)
	}
	if got := f.treasury.TotalCollaterals(f.dot); got != 400 {
		t.Errorf("total collaterals: got %d, want 400", got)
	}
	if got := f.ledger.FreeBalance(f.dot, vault); got != 600 {
		t.Errorf("vault balance: got %d, want 600", got)
	}
}

func TestWithdrawCollateralInsufficient(t *testing.T) {
	f := newFixture(t)

	err := f.treasury.WithdrawCollateral(ledger.AccountID("user/alice"), f.dot, 1)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestExtractSurplusToTreasury(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemSurplus(1_000); err != nil {
		t.Fatalf("seed surplus: %v", err)
	}
	if err := f.treasury.ExtractSurplusToTreasury(400); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got := f.treasury.SurplusPool(); got != 600 {
		t.Errorf("surplus pool: got %d, want 600", got)
	}
	if got := f.ledger.FreeBalance(ledger.StableCurrency, ledger.ProtocolSinkAccount); got != 400 {
		t.Errorf("sink balance: got %d, want 400", got)
	}
	// Transfer does not burn.
	if got := f.ledger.TotalIssuance(ledger.StableCurrency); got != 1_000 {
		t.Errorf("issuance: got %d, want 1000", got)
	}
}

func TestExtractSurplusNotEnough(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemSurplus(100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := f.treasury.ExtractSurplusToTreasury(101)
	if !errors.Is(err, treasury.ErrSurplusPoolNotEnough) {
		t.Fatalf("expected ErrSurplusPoolNotEnough, got %v", err)
	}
	if got := f.treasury.SurplusPool(); got != 100 {
		t.Errorf("surplus changed on failed extract: got %d", got)
	}
}

func TestOffsetDebitExceedsSurplus(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemDebit(100); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := f.treasury.OnSystemSurplus(60); err != nil {
		t.Fatalf("surplus: %v", err)
	}

	burned := f.treasury.OffsetSurplusAndDebit()
	if burned != 60 {
		t.Errorf("burned: got %d, want 60", burned)
	}
	if got := f.treasury.DebitPool(); got != 40 {
		t.Errorf("debit pool: got %d, want 40", got)
	}
	if got := f.treasury.SurplusPool(); got != 0 {
		t.Errorf("surplus pool: got %d, want 0", got)
	}
	if got := f.ledger.TotalIssuance(ledger.StableCurrency); got != 0 {
		t.Errorf("issuance: got %d, want 0", got)
	}
}

func TestOffsetSurplusExceedsDebit(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemDebit(60); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := f.treasury.OnSystemSurplus(100); err != nil {
		t.Fatalf("surplus: %v", err)
	}

	burned := f.treasury.OffsetSurplusAndDebit()
	if burned != 60 {
		t.Errorf("burned: got %d, want 60", burned)
	}
	if got := f.treasury.DebitPool(); got != 0 {
		t.Errorf("debit pool: got %d, want 0", got)
	}
	if got := f.treasury.SurplusPool(); got != 40 {
		t.Errorf("surplus pool: got %d, want 40", got)
	}
}

func TestOffsetIsIdempotentWhenSettled(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemDebit(100); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := f.treasury.OnSystemSurplus(100); err != nil {
		t.Fatalf("surplus: %v", err)
	}

	if burned := f.treasury.OffsetSurplusAndDebit(); burned != 100 {
		t.Errorf("first offset burned %d, want 100", burned)
	}
	if burned := f.treasury.OffsetSurplusAndDebit(); burned != 0 {
		t.Errorf("second offset burned %d, want 0", burned)
	}
	if f.treasury.DebitPool() != 0 || f.treasury.SurplusPool() != 0 {
		t.Errorf("pools not settled: debit=%d surplus=%d",
			f.treasury.DebitPool(), f.treasury.SurplusPool())
	}
}

func TestOffsetNoopWhenEitherPoolEmpty(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemDebit(50); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if burned := f.treasury.OffsetSurplusAndDebit(); burned != 0 {
		t.Errorf("burned %d with empty surplus, want 0", burned)
	}
	if got := f.treasury.DebitPool(); got != 50 {
		t.Errorf("debit pool: got %d, want 50", got)
	}
}

func TestDebitProportion(t *testing.T) {
	f := newFixture(t)

	if got := f.treasury.DebitProportion(10); got.Num != 0 || got.Den != 0 {
		t.Errorf("proportion with zero issuance: got %d/%d, want 0/0", got.Num, got.Den)
	}
	if err := f.treasury.OnSystemSurplus(400); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got := f.treasury.DebitProportion(100)
	if got.Num != 100 || got.Den != 400 {
		t.Errorf("proportion: got %d/%d, want 100/400", got.Num, got.Den)
	}
	if got.Float64() != 0.25 {
		t.Errorf("proportion float: got %v, want 0.25", got.Float64())
	}
}

func TestTotalCollateralsNotInAuction(t *testing.T) {
	f := newFixture(t)

	if err := f.ledger.Deposit(f.dot, ledger.TreasuryAccount, 1_000); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := f.auctions.NewCollateralAuction(ledger.TreasuryAccount, f.dot, 300, 600); err != nil {
		t.Fatalf("auction: %v", err)
	}
	if got := f.treasury.TotalCollateralsNotInAuction(f.dot); got != 700 {
		t.Errorf("free collateral: got %d, want 700", got)
	}
}

func TestTotalCollateralsNotInAuctionSaturates(t *testing.T) {
	f := newFixture(t)

	if err := f.ledger.Deposit(f.dot, ledger.TreasuryAccount, 100); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Locked total can exceed the balance if the manager is out of sync.
	if err := f.auctions.NewCollateralAuction(ledger.TreasuryAccount, f.dot, 300, 600); err != nil {
		t.Fatalf("auction: %v", err)
	}
	if got := f.treasury.TotalCollateralsNotInAuction(f.dot); got != 0 {
		t.Errorf("free collateral: got %d, want 0", got)
	}
}

func TestCheckDebitPool(t *testing.T) {
	f := newFixture(t)

	if err := f.treasury.OnSystemDebit(50); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if err := f.treasury.CheckDebitPool(50); err != nil {
		t.Errorf("check at exact amount failed: %v", err)
	}
	err := f.treasury.CheckDebitPool(51)
	if !errors.Is(err, treasury.ErrDebitPoolNotEnough) {
		t.Fatalf("expected ErrDebitPoolNotEnough, got %v", err)
	}
}
