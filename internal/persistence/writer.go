package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"CDPTreasury/internal/core"
	"CDPTreasury/internal/ledger"
)

// EventLogWriter writes events and ledger entries to Postgres using
// multi-row INSERT. ON CONFLICT DO NOTHING makes redelivered batches
// idempotent, so a crash between flush and ack never duplicates rows.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow is one row in treasury_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Currency       *string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
	SourceSequence int64
}

// EntryRow is one row in treasury_log.entries. Position is the entry's index
// within its event, so (sequence, position) identifies it uniquely.
type EntryRow struct {
	Sequence int64
	Position int32
	Account  string
	Currency int16
	Amount   int64
	Kind     int32
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events inside the given transaction.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO treasury_log.events
		(sequence, event_type, idempotency_key, currency, payload, state_hash, prev_hash, timestamp, source_sequence)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Currency,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp, e.SourceSequence,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteEntryBatch writes a batch of ledger entries inside the given transaction.
func (w *EventLogWriter) WriteEntryBatch(ctx context.Context, tx *sql.Tx, entries []EntryRow) error {
	if len(entries) == 0 {
		return nil
	}

	query := `INSERT INTO treasury_log.entries
		(sequence, position, account, currency, amount, kind)
		VALUES `

	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*6)

	for i, e := range entries {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, e.Sequence, e.Position, e.Account, e.Currency, e.Amount, e.Kind)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence, position) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// RowsFromOutput converts a core output into its event row and entry rows.
func RowsFromOutput(output core.CoreOutput) (EventRow, []EntryRow) {
	env := output.Envelope

	var currency *string
	if env.Currency != nil {
		s := *env.Currency
		currency = &s
	}

	eventRow := EventRow{
		Sequence:       env.Sequence,
		EventType:      env.EventType.String(),
		IdempotencyKey: env.IdempotencyKey,
		Currency:       currency,
		Payload:        MarshalPayload(env.Payload),
		StateHash:      env.StateHash[:],
		PrevHash:       env.PrevHash[:],
		Timestamp:      env.Timestamp,
		SourceSequence: env.SourceSequence,
	}

	entryRows := make([]EntryRow, 0, len(output.Entries))
	for i, e := range output.Entries {
		entryRows = append(entryRows, EntryRow{
			Sequence: env.Sequence,
			Position: int32(i),
			Account:  string(e.Account),
			Currency: int16(e.Currency),
			Amount:   e.Amount,
			Kind:     int32(e.Kind),
		})
	}

	return eventRow, entryRows
}

// EntryFromRow converts a stored entry row back to a ledger entry.
func EntryFromRow(r EntryRow) ledger.Entry {
	return ledger.Entry{
		Account:  ledger.AccountID(r.Account),
		Currency: ledger.CurrencyID(r.Currency),
		Amount:   r.Amount,
		Kind:     ledger.EntryKind(r.Kind),
	}
}

// MarshalPayload JSON-encodes an event payload for storage. Stored payloads
// are re-parsed by the ingestion parser during replay, so they use the same
// wire format as NATS messages.
func MarshalPayload(v interface{}) []byte {
	if v == nil {
		return []byte("{}")
	}
	if raw, ok := v.([]byte); ok {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
