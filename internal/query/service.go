package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CDPTreasury/internal/ledger"
	"CDPTreasury/internal/observability"
)

// Service provides read-only access to the projection tables. Every response
// carries as_of_sequence so callers can reason about freshness.
type Service struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewService(db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{db: db, metrics: metrics}
}

// GetPools returns the debit and surplus pools.
func (s *Service) GetPools(ctx context.Context) (*PoolsResponse, error) {
	defer s.observe("pools", time.Now())

	var resp PoolsResponse
	err := s.db.QueryRowContext(ctx, `
		SELECT debit_pool, surplus_pool, last_sequence
		FROM projections.pools WHERE id = 'main'
	`).Scan(&resp.DebitPool, &resp.SurplusPool, &resp.AsOfSequence)
	if err == sql.ErrNoRows {
		return &PoolsResponse{}, nil
	}
	if err != nil {
		s.countError("pools")
		return nil, err
	}
	return &resp, nil
}

// GetCollateral returns treasury holdings for one collateral currency,
// including the amount locked in open auctions.
func (s *Service) GetCollateral(ctx context.Context, currency string) (*CollateralResponse, error) {
	defer s.observe("collateral", time.Now())

	if _, ok := ledger.GetCurrencyID(currency); !ok {
		return nil, fmt.Errorf("unknown currency: %s", currency)
	}

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		s.countError("collateral")
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var total int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account = $1 AND currency = $2
	`, string(ledger.TreasuryAccount), currency).Scan(&total)
	if err != nil && err != sql.ErrNoRows {
		s.countError("collateral")
		return nil, err
	}

	var inAuction int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(in_auction, 0) FROM projections.collateral
		WHERE currency = $1
	`, currency).Scan(&inAuction)
	if err != nil && err != sql.ErrNoRows {
		s.countError("collateral")
		return nil, err
	}

	return &CollateralResponse{
		Currency:     currency,
		Total:        total,
		InAuction:    inAuction,
		NotInAuction: ledger.SaturatingSub(total, inAuction),
		AsOfSequence: asOfSeq,
	}, nil
}

// ListOpenLots returns all open auction lots, optionally filtered by currency.
func (s *Service) ListOpenLots(ctx context.Context, currency string) (*LotsResponse, error) {
	defer s.observe("lots", time.Now())

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		s.countError("lots")
		return nil, err
	}

	query := `
		SELECT lot_id, currency, amount, target, refund_receiver
		FROM projections.lots
	`
	args := []interface{}{}
	if currency != "" {
		query += ` WHERE currency = $1`
		args = append(args, currency)
	}
	query += ` ORDER BY lot_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.countError("lots")
		return nil, err
	}
	defer rows.Close()

	resp := &LotsResponse{AsOfSequence: asOfSeq}
	for rows.Next() {
		var lot LotResponse
		if err := rows.Scan(&lot.LotID, &lot.Currency, &lot.Amount, &lot.Target, &lot.RefundReceiver); err != nil {
			s.countError("lots")
			return nil, err
		}
		resp.Lots = append(resp.Lots, lot)
	}
	return resp, rows.Err()
}

// GetBalance returns one projected account balance.
func (s *Service) GetBalance(ctx context.Context, account, currency string) (*BalanceResponse, error) {
	defer s.observe("balance", time.Now())

	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		s.countError("balance")
		return nil, err
	}

	var balance int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account = $1 AND currency = $2
	`, account, currency).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		s.countError("balance")
		return nil, err
	}

	return &BalanceResponse{
		Account:      account,
		Currency:     currency,
		Balance:      balance,
		AsOfSequence: asOfSeq,
	}, nil
}

// ListEvents returns event-log rows in descending sequence order with
// cursor-based pagination.
func (s *Service) ListEvents(ctx context.Context, limit int, beforeSequence *int64) ([]EventRecord, error) {
	defer s.observe("events", time.Now())

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT sequence, event_type, idempotency_key, currency, timestamp, source_sequence
		FROM treasury_log.events
	`
	args := []interface{}{}
	argIdx := 1
	if beforeSequence != nil {
		query += fmt.Sprintf(" WHERE sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.countError("events")
		return nil, err
	}
	defer rows.Close()

	var records []EventRecord
	for rows.Next() {
		var r EventRecord
		var ts time.Time
		if err := rows.Scan(&r.Sequence, &r.EventType, &r.IdempotencyKey, &r.Currency, &ts, &r.SourceSequence); err != nil {
			s.countError("events")
			return nil, err
		}
		r.Timestamp = ts.UnixMicro()
		records = append(records, r)
	}
	return records, rows.Err()
}

// VerifyIntegrity checks hash chain continuity and that no projected balance
// went negative.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	defer s.observe("integrity", time.Now())

	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM treasury_log.events e1
		JOIN treasury_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		s.countError("integrity")
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := s.db.QueryContext(ctx, `
		SELECT currency, SUM(balance)
		FROM projections.balances
		WHERE balance < 0
		GROUP BY currency
	`)
	if err != nil {
		s.countError("integrity")
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var m IssuanceMismatch
		if err := balanceRows.Scan(&m.Currency, &m.Imbalance); err != nil {
			return nil, err
		}
		report.IssuanceMismatches = append(report.IssuanceMismatches, m)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.IssuanceMismatches) == 0
	return report, nil
}

// --- helpers ---

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}

func (s *Service) observe(endpoint string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryRequests.WithLabelValues(endpoint, "ok").Inc()
	s.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (s *Service) countError(endpoint string) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueryErrors.WithLabelValues(endpoint, "internal").Inc()
}
