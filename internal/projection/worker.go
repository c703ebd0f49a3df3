package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"CDPTreasury/internal/core"
	"CDPTreasury/internal/ledger"
)

// Worker maintains the read-model tables from processed events. Its input
// channel uses non-blocking sends from the core, so it may miss events under
// load; missed state is recovered by rebuilding from the event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan core.CoreOutput) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Envelope.Sequence, err)
				// Projections are eventually consistent; rebuild recovers
			}

			pw.lastSeq = output.Envelope.Sequence
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output core.CoreOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	for _, e := range output.Entries {
		if err := pw.applyEntry(ctx, tx, seq, e); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pools (id, debit_pool, surplus_pool, last_sequence, updated_at)
		VALUES ('main', $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
			SET debit_pool = $1, surplus_pool = $2, last_sequence = $3, updated_at = NOW()
	`, output.DebitPool, output.SurplusPool, seq); err != nil {
		return fmt.Errorf("pools update: %w", err)
	}

	if output.OpenLots != nil || output.LockedCollateral != nil {
		if err := pw.replaceAuctionBook(ctx, tx, seq, output); err != nil {
			return fmt.Errorf("auction book projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

// replaceAuctionBook rewrites the lot and collateral tables from the book
// snapshot the core attached to the output. The book is small, so a wholesale
// replace is simpler and safer than tracking per-lot deltas.
func (pw *Worker) replaceAuctionBook(ctx context.Context, tx *sql.Tx, seq int64, output core.CoreOutput) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM projections.lots`); err != nil {
		return err
	}
	for _, lot := range output.OpenLots {
		symbol := currencySymbol(lot.Currency)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.lots (lot_id, currency, amount, target, refund_receiver, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, lot.LotID, symbol, lot.Amount, lot.Target, string(lot.RefundReceiver), seq); err != nil {
			return err
		}
	}

	for currency, locked := range output.LockedCollateral {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.collateral (currency, in_auction, last_sequence)
			VALUES ($1, $2, $3)
			ON CONFLICT (currency) DO UPDATE SET in_auction = $2, last_sequence = $3
		`, currencySymbol(currency), locked, seq); err != nil {
			return err
		}
	}
	return nil
}

func currencySymbol(c ledger.CurrencyID) string {
	if s, ok := ledger.GetCurrencySymbol(c); ok {
		return s
	}
	return fmt.Sprintf("currency(%d)", c)
}

func (pw *Worker) applyEntry(ctx context.Context, tx *sql.Tx, seq int64, e ledger.Entry) error {
	delta := entryDelta(e)
	symbol := currencySymbol(e.Currency)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account, currency, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account, currency)
		DO UPDATE SET balance = projections.balances.balance + $3, last_sequence = $4
	`, string(e.Account), symbol, delta, seq)
	return err
}

// entryDelta returns the signed balance change for an entry.
func entryDelta(e ledger.Entry) int64 {
	switch e.Kind {
	case ledger.EntryTransferIn, ledger.EntryDeposit:
		return e.Amount
	default:
		return -e.Amount
	}
}

// Rebuild reconstructs the balance projection from the entry journal. The
// pools row is not rebuilt here; the next applied event refreshes it from
// core state.
func Rebuild(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// kind 1 (transfer in) and 2 (deposit) credit the account, the rest debit
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account, currency, balance, last_sequence)
		SELECT
			e.account,
			COALESCE(c.symbol, 'currency(' || e.currency || ')') AS currency,
			SUM(CASE WHEN e.kind IN (1, 2) THEN e.amount ELSE -e.amount END) AS balance,
			MAX(e.sequence) AS last_sequence
		FROM treasury_log.entries e
		LEFT JOIN (VALUES
			(1, 'AUSD'), (2, 'DOT'), (3, 'LDOT'), (4, 'XBTC'), (5, 'RENBTC')
		) AS c(id, symbol) ON c.id = e.currency
		GROUP BY e.account, c.symbol, e.currency
	`)
	if err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		SELECT 'main', COALESCE(MAX(sequence), 0), NOW() FROM treasury_log.entries
		ON CONFLICT (worker_id) DO UPDATE
			SET last_sequence = EXCLUDED.last_sequence, updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("rebuild watermark: %w", err)
	}

	log.Println("INFO: projection rebuild complete")
	return nil
}
