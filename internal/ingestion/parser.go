package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"CDPTreasury/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the settlement core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "SystemDebit":
		return parseSystemDebit(raw.Data)
	case "SystemSurplus":
		return parseSystemSurplus(raw.Data)
	case "CollateralDeposit":
		return parseCollateralDeposit(raw.Data)
	case "CollateralWithdraw":
		return parseCollateralWithdraw(raw.Data)
	case "SurplusExtract":
		return parseSurplusExtract(raw.Data)
	case "AuctionCollateral":
		return parseAuctionCollateral(raw.Data)
	case "AuctionDealt":
		return parseAuctionDealt(raw.Data)
	case "AuctionSizeUpdate":
		return parseAuctionSizeUpdate(raw.Data)
	case "SwapExactSupply":
		return parseSwapExactSupply(raw.Data)
	case "SwapExactTarget":
		return parseSwapExactTarget(raw.Data)
	case "BlockFinalize":
		return parseBlockFinalize(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers.

type systemDebitJSON struct {
	DebitID     string `json:"debit_id"`
	Origin      string `json:"origin"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSystemDebit(data []byte) (*event.SystemDebit, error) {
	var j systemDebitJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SystemDebit: %w", err)
	}
	debitID, err := uuid.Parse(j.DebitID)
	if err != nil {
		return nil, fmt.Errorf("parse debit_id: %w", err)
	}
	return &event.SystemDebit{
		DebitID:   debitID,
		Origin:    j.Origin,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type systemSurplusJSON struct {
	SurplusID   string `json:"surplus_id"`
	Origin      string `json:"origin"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSystemSurplus(data []byte) (*event.SystemSurplus, error) {
	var j systemSurplusJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SystemSurplus: %w", err)
	}
	surplusID, err := uuid.Parse(j.SurplusID)
	if err != nil {
		return nil, fmt.Errorf("parse surplus_id: %w", err)
	}
	return &event.SystemSurplus{
		SurplusID: surplusID,
		Origin:    j.Origin,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type collateralTransferJSON struct {
	TransferID  string `json:"transfer_id"`
	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseCollateralDeposit(data []byte) (*event.CollateralDeposit, error) {
	var j collateralTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralDeposit: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	return &event.CollateralDeposit{
		TransferID: transferID,
		From:       j.From,
		Symbol:     j.Currency,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

func parseCollateralWithdraw(data []byte) (*event.CollateralWithdraw, error) {
	var j collateralTransferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CollateralWithdraw: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	return &event.CollateralWithdraw{
		TransferID: transferID,
		To:         j.To,
		Symbol:     j.Currency,
		Amount:     j.Amount,
		Sequence:   j.Sequence,
		Timestamp:  j.TimestampUs,
	}, nil
}

type surplusExtractJSON struct {
	RequestID   string `json:"request_id"`
	Amount      int64  `json:"amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseSurplusExtract(data []byte) (*event.SurplusExtract, error) {
	var j surplusExtractJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SurplusExtract: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.SurplusExtract{
		RequestID: requestID,
		Amount:    j.Amount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type auctionCollateralJSON struct {
	RequestID   string `json:"request_id"`
	Currency    string `json:"currency"`
	Amount      int64  `json:"amount"`
	Target      int64  `json:"target"`
	Split       bool   `json:"split"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAuctionCollateral(data []byte) (*event.AuctionCollateral, error) {
	var j auctionCollateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AuctionCollateral: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.AuctionCollateral{
		RequestID: requestID,
		Symbol:    j.Currency,
		Amount:    j.Amount,
		Target:    j.Target,
		Split:     j.Split,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type auctionDealtJSON struct {
	LotID       string `json:"lot_id"`
	Winner      string `json:"winner"`
	Currency    string `json:"currency"`
	BidAmount   int64  `json:"bid_amount"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAuctionDealt(data []byte) (*event.AuctionDealt, error) {
	var j auctionDealtJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AuctionDealt: %w", err)
	}
	lotID, err := uuid.Parse(j.LotID)
	if err != nil {
		return nil, fmt.Errorf("parse lot_id: %w", err)
	}
	return &event.AuctionDealt{
		LotID:     lotID,
		Winner:    j.Winner,
		Symbol:    j.Currency,
		BidAmount: j.BidAmount,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type auctionSizeUpdateJSON struct {
	RequestID   string `json:"request_id"`
	Currency    string `json:"currency"`
	Size        int64  `json:"size"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parseAuctionSizeUpdate(data []byte) (*event.AuctionSizeUpdate, error) {
	var j auctionSizeUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse AuctionSizeUpdate: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.AuctionSizeUpdate{
		RequestID: requestID,
		Symbol:    j.Currency,
		Size:      j.Size,
		Sequence:  j.Sequence,
		Timestamp: j.TimestampUs,
	}, nil
}

type swapExactSupplyJSON struct {
	RequestID           string   `json:"request_id"`
	Currency            string   `json:"currency"`
	Path                []string `json:"path"`
	SupplyAmount        int64    `json:"supply_amount"`
	MinTarget           int64    `json:"min_target"`
	CollateralInAuction bool     `json:"collateral_in_auction"`
	Sequence            int64    `json:"sequence"`
	TimestampUs         int64    `json:"timestamp_us"`
}

func parseSwapExactSupply(data []byte) (*event.SwapExactSupply, error) {
	var j swapExactSupplyJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SwapExactSupply: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.SwapExactSupply{
		RequestID:           requestID,
		Symbol:              j.Currency,
		Path:                j.Path,
		SupplyAmount:        j.SupplyAmount,
		MinTarget:           j.MinTarget,
		CollateralInAuction: j.CollateralInAuction,
		Sequence:            j.Sequence,
		Timestamp:           j.TimestampUs,
	}, nil
}

type swapExactTargetJSON struct {
	RequestID           string   `json:"request_id"`
	Currency            string   `json:"currency"`
	Path                []string `json:"path"`
	TargetAmount        int64    `json:"target_amount"`
	MaxSupply           int64    `json:"max_supply"`
	CollateralInAuction bool     `json:"collateral_in_auction"`
	Sequence            int64    `json:"sequence"`
	TimestampUs         int64    `json:"timestamp_us"`
}

func parseSwapExactTarget(data []byte) (*event.SwapExactTarget, error) {
	var j swapExactTargetJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SwapExactTarget: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.SwapExactTarget{
		RequestID:           requestID,
		Symbol:              j.Currency,
		Path:                j.Path,
		TargetAmount:        j.TargetAmount,
		MaxSupply:           j.MaxSupply,
		CollateralInAuction: j.CollateralInAuction,
		Sequence:            j.Sequence,
		Timestamp:           j.TimestampUs,
	}, nil
}

type blockFinalizeJSON struct {
	BlockNumber int64 `json:"block_number"`
	Sequence    int64 `json:"sequence"`
	TimestampUs int64 `json:"timestamp_us"`
}

func parseBlockFinalize(data []byte) (*event.BlockFinalize, error) {
	var j blockFinalizeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BlockFinalize: %w", err)
	}
	return &event.BlockFinalize{
		BlockNumber: j.BlockNumber,
		Sequence:    j.Sequence,
		Timestamp:   j.TimestampUs,
	}, nil
}
