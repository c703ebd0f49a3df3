package event

import (
	"fmt"

	"github.com/google/uuid"
)

// AuctionCollateral asks the treasury to liquidate held collateral through
// auction lots.
type AuctionCollateral struct {
	RequestID uuid.UUID `json:"request_id"`
	Symbol    string    `json:"currency"`
	Amount    int64     `json:"amount"`
	Target    int64     `json:"target"` // stable units the lots should raise together
	Split     bool      `json:"split"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *AuctionCollateral) IdempotencyKey() string {
	return e.RequestID.String()
}

func (e *AuctionCollateral) EventType() EventType {
	return EventTypeAuctionCollateral
}

func (e *AuctionCollateral) Currency() *string {
	return &e.Symbol
}

func (e *AuctionCollateral) SourceSequence() int64 {
	return e.Sequence
}

// AuctionDealt reports a settled lot from the auction collaborator: the
// winning bid is deposited as surplus and the collateral leaves the treasury.
type AuctionDealt struct {
	LotID     uuid.UUID `json:"lot_id"`
	Winner    string    `json:"winner"`
	Symbol    string    `json:"currency"`
	BidAmount int64     `json:"bid_amount"` // stable units paid by the winner
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *AuctionDealt) IdempotencyKey() string {
	return fmt.Sprintf("%s:dealt", e.LotID)
}

func (e *AuctionDealt) EventType() EventType {
	return EventTypeAuctionDealt
}

func (e *AuctionDealt) Currency() *string {
	return &e.Symbol
}

func (e *AuctionDealt) SourceSequence() int64 {
	return e.Sequence
}

// AuctionSizeUpdate is the privileged per-currency lot size change.
type AuctionSizeUpdate struct {
	RequestID uuid.UUID `json:"request_id"`
	Symbol    string    `json:"currency"`
	Size      int64     `json:"size"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *AuctionSizeUpdate) IdempotencyKey() string {
	return fmt.Sprintf("%s:size", e.RequestID)
}

func (e *AuctionSizeUpdate) EventType() EventType {
	return EventTypeAuctionSizeUpdate
}

func (e *AuctionSizeUpdate) Currency() *string {
	return &e.Symbol
}

func (e *AuctionSizeUpdate) SourceSequence() int64 {
	return e.Sequence
}
