package ledger

// CurrencyID maps currency symbols to numeric IDs for performance
type CurrencyID uint16

var (
	currencyToID = map[string]CurrencyID{
		"AUSD":   1,
		"DOT":    2,
		"LDOT":   3,
		"XBTC":   4,
		"RENBTC": 5,
	}
	idToCurrency = map[CurrencyID]string{
		1: "AUSD",
		2: "DOT",
		3: "LDOT",
		4: "XBTC",
		5: "RENBTC",
	}
)

// StableCurrency is the system stable asset. All surplus and debit amounts
// are denominated in it.
const StableCurrency CurrencyID = 1

func GetCurrencyID(symbol string) (CurrencyID, bool) {
	id, ok := currencyToID[symbol]
	return id, ok
}

func GetCurrencySymbol(id CurrencyID) (string, bool) {
	symbol, ok := idToCurrency[id]
	return symbol, ok
}

// AccountID identifies a ledger account. Module accounts use reserved names;
// everything else is an end-user or collaborator account.
type AccountID string

const (
	// TreasuryAccount holds the stable-asset surplus and all collateral
	// seized from liquidations. Created at genesis, never destroyed.
	TreasuryAccount AccountID = "cdp/treasury"

	// ProtocolSinkAccount receives surplus extracted by privileged callers.
	ProtocolSinkAccount AccountID = "cdp/protocol-sink"

	// DexPoolAccount backs the in-process swap pools.
	DexPoolAccount AccountID = "cdp/dex-pool"
)
