package event

import "github.com/google/uuid"

// SwapExactSupply sells an exact amount of treasury collateral on the DEX
// for at least MinTarget of stable asset.
type SwapExactSupply struct {
	RequestID           uuid.UUID `json:"request_id"`
	Symbol              string    `json:"currency"`
	Path                []string  `json:"path"` // currency symbols, collateral first, stable last
	SupplyAmount        int64     `json:"supply_amount"`
	MinTarget           int64     `json:"min_target"`
	CollateralInAuction bool      `json:"collateral_in_auction"`
	Sequence            int64     `json:"sequence"`
	Timestamp           int64     `json:"timestamp_us"`
}

func (e *SwapExactSupply) IdempotencyKey() string {
	return e.RequestID.String()
}

func (e *SwapExactSupply) EventType() EventType {
	return EventTypeSwapExactSupply
}

func (e *SwapExactSupply) Currency() *string {
	return &e.Symbol
}

func (e *SwapExactSupply) SourceSequence() int64 {
	return e.Sequence
}

// SwapExactTarget sells treasury collateral on the DEX until exactly
// TargetAmount of stable asset is received, spending at most MaxSupply.
type SwapExactTarget struct {
	RequestID           uuid.UUID `json:"request_id"`
	Symbol              string    `json:"currency"`
	Path                []string  `json:"path"`
	TargetAmount        int64     `json:"target_amount"`
	MaxSupply           int64     `json:"max_supply"`
	CollateralInAuction bool      `json:"collateral_in_auction"`
	Sequence            int64     `json:"sequence"`
	Timestamp           int64     `json:"timestamp_us"`
}

func (e *SwapExactTarget) IdempotencyKey() string {
	return e.RequestID.String()
}

func (e *SwapExactTarget) EventType() EventType {
	return EventTypeSwapExactTarget
}

func (e *SwapExactTarget) Currency() *string {
	return &e.Symbol
}

func (e *SwapExactTarget) SourceSequence() int64 {
	return e.Sequence
}
