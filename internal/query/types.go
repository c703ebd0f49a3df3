package query

// PoolsResponse reports the two treasury pools.
type PoolsResponse struct {
	DebitPool    int64 `json:"debit_pool"`
	SurplusPool  int64 `json:"surplus_pool"`
	AsOfSequence int64 `json:"as_of_sequence"`
}

// CollateralResponse reports treasury holdings of one collateral currency.
type CollateralResponse struct {
	Currency     string `json:"currency"`
	Total        int64  `json:"total"`
	InAuction    int64  `json:"in_auction"`
	NotInAuction int64  `json:"not_in_auction"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// LotResponse is one open auction lot.
type LotResponse struct {
	LotID          string `json:"lot_id"`
	Currency       string `json:"currency"`
	Amount         int64  `json:"amount"`
	Target         int64  `json:"target"`
	RefundReceiver string `json:"refund_receiver"`
}

// LotsResponse lists open auction lots.
type LotsResponse struct {
	Lots         []LotResponse `json:"lots"`
	AsOfSequence int64         `json:"as_of_sequence"`
}

// BalanceResponse reports one projected account balance.
type BalanceResponse struct {
	Account      string `json:"account"`
	Currency     string `json:"currency"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// EventRecord is one event-log row for history queries.
type EventRecord struct {
	Sequence       int64   `json:"sequence"`
	EventType      string  `json:"event_type"`
	IdempotencyKey string  `json:"idempotency_key"`
	Currency       *string `json:"currency,omitempty"`
	Timestamp      int64   `json:"timestamp_us"`
	SourceSequence int64   `json:"source_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy          bool               `json:"is_healthy"`
	HashChainBreaks    []int64            `json:"hash_chain_breaks,omitempty"`
	IssuanceMismatches []IssuanceMismatch `json:"issuance_mismatches,omitempty"`
}

// IssuanceMismatch is a currency whose projected balances do not sum to the
// treasury's view of them.
type IssuanceMismatch struct {
	Currency  string `json:"currency"`
	Imbalance int64  `json:"imbalance"`
}
