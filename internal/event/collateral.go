package event

import "github.com/google/uuid"

// CollateralDeposit moves seized collateral from a CDP account into the
// treasury.
type CollateralDeposit struct {
	TransferID uuid.UUID `json:"transfer_id"`
	From       string    `json:"from"`
	Symbol     string    `json:"currency"`
	Amount     int64     `json:"amount"`
	Sequence   int64     `json:"sequence"`
	Timestamp  int64     `json:"timestamp_us"`
}

func (e *CollateralDeposit) IdempotencyKey() string {
	return e.TransferID.String()
}

func (e *CollateralDeposit) EventType() EventType {
	return EventTypeCollateralDeposit
}

func (e *CollateralDeposit) Currency() *string {
	return &e.Symbol
}

func (e *CollateralDeposit) SourceSequence() int64 {
	return e.Sequence
}

// CollateralWithdraw moves treasury collateral out to a receiver (a refund,
// an auction settlement payout).
type CollateralWithdraw struct {
	TransferID uuid.UUID `json:"transfer_id"`
	To         string    `json:"to"`
	Symbol     string    `json:"currency"`
	Amount     int64     `json:"amount"`
	Sequence   int64     `json:"sequence"`
	Timestamp  int64     `json:"timestamp_us"`
}

func (e *CollateralWithdraw) IdempotencyKey() string {
	return e.TransferID.String()
}

func (e *CollateralWithdraw) EventType() EventType {
	return EventTypeCollateralWithdraw
}

func (e *CollateralWithdraw) Currency() *string {
	return &e.Symbol
}

func (e *CollateralWithdraw) SourceSequence() int64 {
	return e.Sequence
}
