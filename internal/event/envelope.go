package event

import (
	"time"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeSystemDebit
	EventTypeSystemSurplus
	EventTypeCollateralDeposit
	EventTypeCollateralWithdraw
	EventTypeSurplusExtract
	EventTypeAuctionCollateral
	EventTypeAuctionDealt
	EventTypeAuctionSizeUpdate
	EventTypeSwapExactSupply
	EventTypeSwapExactTarget
	EventTypeBlockFinalize
)

// EventEnvelope wraps every event in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Collateral currency context (nullable for global events)
	Currency *string

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Currency returns the collateral context (nil for global events)
	Currency() *string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64
}

func (et EventType) String() string {
	switch et {
	case EventTypeSystemDebit:
		return "SystemDebit"
	case EventTypeSystemSurplus:
		return "SystemSurplus"
	case EventTypeCollateralDeposit:
		return "CollateralDeposit"
	case EventTypeCollateralWithdraw:
		return "CollateralWithdraw"
	case EventTypeSurplusExtract:
		return "SurplusExtract"
	case EventTypeAuctionCollateral:
		return "AuctionCollateral"
	case EventTypeAuctionDealt:
		return "AuctionDealt"
	case EventTypeAuctionSizeUpdate:
		return "AuctionSizeUpdate"
	case EventTypeSwapExactSupply:
		return "SwapExactSupply"
	case EventTypeSwapExactTarget:
		return "SwapExactTarget"
	case EventTypeBlockFinalize:
		return "BlockFinalize"
	default:
		return "Unknown"
	}
}
