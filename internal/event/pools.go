package event

import (
	"fmt"

	"github.com/google/uuid"
)

// SystemDebit records bad debt created by a CDP module (a confiscated
// position, an under-collateralized settlement).
type SystemDebit struct {
	DebitID   uuid.UUID `json:"debit_id"`
	Origin    string    `json:"origin"` // upstream module that created the debt
	Amount    int64     `json:"amount"` // stable units
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"` // unix micros, versioned input
}

func (e *SystemDebit) IdempotencyKey() string {
	return e.DebitID.String()
}

func (e *SystemDebit) EventType() EventType {
	return EventTypeSystemDebit
}

func (e *SystemDebit) Currency() *string {
	return nil // Global event
}

func (e *SystemDebit) SourceSequence() int64 {
	return e.Sequence
}

// SystemSurplus records stable-asset income attributed to the system
// (stability fees, liquidation penalties).
type SystemSurplus struct {
	SurplusID uuid.UUID `json:"surplus_id"`
	Origin    string    `json:"origin"`
	Amount    int64     `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *SystemSurplus) IdempotencyKey() string {
	return e.SurplusID.String()
}

func (e *SystemSurplus) EventType() EventType {
	return EventTypeSystemSurplus
}

func (e *SystemSurplus) Currency() *string {
	return nil
}

func (e *SystemSurplus) SourceSequence() int64 {
	return e.Sequence
}

// SurplusExtract is the privileged transfer of surplus to the protocol sink.
type SurplusExtract struct {
	RequestID uuid.UUID `json:"request_id"`
	Amount    int64     `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp int64     `json:"timestamp_us"`
}

func (e *SurplusExtract) IdempotencyKey() string {
	return fmt.Sprintf("%s:extract", e.RequestID)
}

func (e *SurplusExtract) EventType() EventType {
	return EventTypeSurplusExtract
}

func (e *SurplusExtract) Currency() *string {
	return nil
}

func (e *SurplusExtract) SourceSequence() int64 {
	return e.Sequence
}

// BlockFinalize closes a settlement cycle. The core runs the surplus/debit
// offset when it applies this event, after every other event of the cycle.
type BlockFinalize struct {
	BlockNumber int64 `json:"block_number"`
	Sequence    int64 `json:"sequence"`
	Timestamp   int64 `json:"timestamp_us"`
}

func (e *BlockFinalize) IdempotencyKey() string {
	return fmt.Sprintf("block:%d:finalize", e.BlockNumber)
}

func (e *BlockFinalize) EventType() EventType {
	return EventTypeBlockFinalize
}

func (e *BlockFinalize) Currency() *string {
	return nil
}

func (e *BlockFinalize) SourceSequence() int64 {
	return e.Sequence
}
