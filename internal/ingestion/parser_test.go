package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"CDPTreasury/internal/event"
	"CDPTreasury/internal/ingestion"
)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawEvent {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawEvent{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseSystemDebit(t *testing.T) {
	payload := map[string]interface{}{
		"debit_id":     "550e8400-e29b-41d4-a716-446655440000",
		"origin":       "cdp-engine",
		"amount":       int64(1_000_000),
		"sequence":     int64(42),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "SystemDebit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sd, ok := evt.(*event.SystemDebit)
	if !ok {
		t.Fatalf("expected *event.SystemDebit, got %T", evt)
	}
	if sd.Origin != "cdp-engine" {
		t.Errorf("origin: got %s, want cdp-engine", sd.Origin)
	}
	if sd.Amount != 1_000_000 {
		t.Errorf("amount: got %d, want 1_000_000", sd.Amount)
	}
	if sd.SourceSequence() != 42 {
		t.Errorf("sequence: got %d, want 42", sd.SourceSequence())
	}
	if sd.EventType() != event.EventTypeSystemDebit {
		t.Errorf("event type: got %v, want SystemDebit", sd.EventType())
	}
	if sd.Currency() != nil {
		t.Error("system debit should be a global event")
	}
}

func TestParseCollateralDeposit(t *testing.T) {
	payload := map[string]interface{}{
		"transfer_id":  "660e8400-e29b-41d4-a716-446655440001",
		"from":         "cdp/vault-7",
		"currency":     "DOT",
		"amount":       int64(250),
		"sequence":     int64(3),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "CollateralDeposit")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cd, ok := evt.(*event.CollateralDeposit)
	if !ok {
		t.Fatalf("expected *event.CollateralDeposit, got %T", evt)
	}
	if cd.From != "cdp/vault-7" {
		t.Errorf("from: got %s, want cdp/vault-7", cd.From)
	}
	if cd.Symbol != "DOT" {
		t.Errorf("currency: got %s, want DOT", cd.Symbol)
	}
	if cur := cd.Currency(); cur == nil || *cur != "DOT" {
		t.Errorf("partition currency: got %v, want DOT", cur)
	}
}

func TestParseAuctionCollateral(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":   "770e8400-e29b-41d4-a716-446655440002",
		"currency":     "DOT",
		"amount":       int64(250),
		"target":       int64(500),
		"split":        true,
		"sequence":     int64(7),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "AuctionCollateral")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ac, ok := evt.(*event.AuctionCollateral)
	if !ok {
		t.Fatalf("expected *event.AuctionCollateral, got %T", evt)
	}
	if ac.Amount != 250 || ac.Target != 500 {
		t.Errorf("amount/target: got %d/%d, want 250/500", ac.Amount, ac.Target)
	}
	if !ac.Split {
		t.Error("split: got false, want true")
	}
}

func TestParseSwapExactSupply(t *testing.T) {
	payload := map[string]interface{}{
		"request_id":            "880e8400-e29b-41d4-a716-446655440003",
		"currency":              "DOT",
		"path":                  []string{"DOT", "AUSD"},
		"supply_amount":         int64(100),
		"min_target":            int64(150),
		"collateral_in_auction": false,
		"sequence":              int64(9),
		"timestamp_us":          int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "SwapExactSupply")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	se, ok := evt.(*event.SwapExactSupply)
	if !ok {
		t.Fatalf("expected *event.SwapExactSupply, got %T", evt)
	}
	if len(se.Path) != 2 || se.Path[0] != "DOT" || se.Path[1] != "AUSD" {
		t.Errorf("path: got %v, want [DOT AUSD]", se.Path)
	}
	if se.SupplyAmount != 100 || se.MinTarget != 150 {
		t.Errorf("amounts: got %d/%d, want 100/150", se.SupplyAmount, se.MinTarget)
	}
}

func TestParseBlockFinalize(t *testing.T) {
	payload := map[string]interface{}{
		"block_number": int64(12345),
		"sequence":     int64(99),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "BlockFinalize")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	bf, ok := evt.(*event.BlockFinalize)
	if !ok {
		t.Fatalf("expected *event.BlockFinalize, got %T", evt)
	}
	if bf.BlockNumber != 12345 {
		t.Errorf("block number: got %d, want 12345", bf.BlockNumber)
	}
	if bf.IdempotencyKey() != "block:12345:finalize" {
		t.Errorf("idempotency key: got %s", bf.IdempotencyKey())
	}
}

func TestParseAuctionDealt(t *testing.T) {
	payload := map[string]interface{}{
		"lot_id":       "990e8400-e29b-41d4-a716-446655440004",
		"winner":       "user/bidder",
		"currency":     "DOT",
		"bid_amount":   int64(200),
		"sequence":     int64(11),
		"timestamp_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	evt, err := ingestion.ParseRawEvent(raw, "AuctionDealt")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ad, ok := evt.(*event.AuctionDealt)
	if !ok {
		t.Fatalf("expected *event.AuctionDealt, got %T", evt)
	}
	if ad.Winner != "user/bidder" || ad.BidAmount != 200 {
		t.Errorf("winner/bid: got %s/%d", ad.Winner, ad.BidAmount)
	}
}

func TestParseUnknownEventType_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawEvent(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawEvent{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawEvent(raw, "SystemDebit")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"debit_id":     "not-a-uuid",
		"origin":       "cdp-engine",
		"amount":       int64(1),
		"sequence":     int64(0),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawEvent(raw, "SystemDebit")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
