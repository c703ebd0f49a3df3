package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CDPTreasury/internal/auction"
	"CDPTreasury/internal/core"
	"CDPTreasury/internal/ledger"
)

// SnapshotManager persists and loads state snapshots for recovery. On warm
// restart the latest verified snapshot is loaded and the event log is
// replayed from snapshot.sequence+1.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serialized form of core.SnapshotState.
type SnapshotData struct {
	Sequence         int64                                            `json:"sequence"`
	StateHash        []byte                                           `json:"state_hash"`
	Balances         map[ledger.CurrencyID]map[ledger.AccountID]int64 `json:"balances"`
	Issuance         map[ledger.CurrencyID]int64                      `json:"issuance"`
	DebitPool        int64                                            `json:"debit_pool"`
	AuctionSizes     map[ledger.CurrencyID]int64                      `json:"auction_sizes"`
	OpenLots         []LotSnapshot                                    `json:"open_lots"`
	LockedCollateral map[ledger.CurrencyID]int64                      `json:"locked_collateral"`
	LotSequence      int64                                            `json:"lot_sequence"`
	SequenceState    map[string]int64                                 `json:"sequence_state"`
	IdempotencyKeys  []string                                         `json:"idempotency_keys"` // recent keys for LRU warming
	CreatedAt        time.Time                                        `json:"created_at"`
}

// LotSnapshot is a serializable open auction lot.
type LotSnapshot struct {
	LotID          string `json:"lot_id"`
	RefundReceiver string `json:"refund_receiver"`
	Currency       uint16 `json:"currency"`
	Amount         int64  `json:"amount"`
	Target         int64  `json:"target"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// NewSnapshotData converts a core snapshot into its serialized form.
func NewSnapshotData(snap *core.SnapshotState) *SnapshotData {
	data := &SnapshotData{
		Sequence:         snap.Sequence,
		StateHash:        snap.StateHash[:],
		Balances:         snap.Balances,
		Issuance:         snap.Issuance,
		DebitPool:        snap.DebitPool,
		AuctionSizes:     snap.AuctionSizes,
		OpenLots:         make([]LotSnapshot, 0, len(snap.OpenLots)),
		LockedCollateral: snap.LockedCollateral,
		LotSequence:      snap.LotSequence,
		SequenceState:    snap.SequenceState,
		IdempotencyKeys:  snap.IdempotencyKeys,
		CreatedAt:        time.Now(),
	}
	for _, lot := range snap.OpenLots {
		data.OpenLots = append(data.OpenLots, LotSnapshot{
			LotID:          lot.LotID.String(),
			RefundReceiver: string(lot.RefundReceiver),
			Currency:       uint16(lot.Currency),
			Amount:         lot.Amount,
			Target:         lot.Target,
		})
	}
	return data
}

// CoreState converts the serialized form back into a core snapshot.
func (sd *SnapshotData) CoreState() (*core.SnapshotState, error) {
	snap := &core.SnapshotState{
		Sequence:         sd.Sequence,
		Balances:         sd.Balances,
		Issuance:         sd.Issuance,
		DebitPool:        sd.DebitPool,
		AuctionSizes:     sd.AuctionSizes,
		LockedCollateral: sd.LockedCollateral,
		LotSequence:      sd.LotSequence,
		SequenceState:    sd.SequenceState,
		IdempotencyKeys:  sd.IdempotencyKeys,
	}
	copy(snap.StateHash[:], sd.StateHash)

	for _, ls := range sd.OpenLots {
		lotID, err := uuid.Parse(ls.LotID)
		if err != nil {
			return nil, fmt.Errorf("parse lot_id %q: %w", ls.LotID, err)
		}
		snap.OpenLots = append(snap.OpenLots, auction.CollateralLot{
			LotID:          lotID,
			RefundReceiver: ledger.AccountID(ls.RefundReceiver),
			Currency:       ledger.CurrencyID(ls.Currency),
			Amount:         ls.Amount,
			Target:         ls.Target,
		})
	}
	return snap, nil
}

// SaveSnapshot persists a snapshot to Postgres.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO treasury_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, len(data), snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM treasury_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as verified after an integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE treasury_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, currency, payload,
		       state_hash, prev_hash, timestamp, source_sequence
		FROM treasury_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Currency,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp, &e.SourceSequence,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM treasury_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
