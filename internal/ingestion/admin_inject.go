package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CDPTreasury/internal/event"
)

// AdminIngestService injects privileged events into the core's event channel.
// It backs the admin HTTP surface: surplus extraction, manual liquidation,
// and auction size changes. High-throughput ingestion stays on NATS.
type AdminIngestService struct {
	eventChan chan<- event.Event
}

func NewAdminIngestService(eventChan chan<- event.Event) *AdminIngestService {
	return &AdminIngestService{eventChan: eventChan}
}

// EventChan exposes the injection channel.
func (s *AdminIngestService) EventChan() chan<- event.Event {
	return s.eventChan
}

// InjectSurplusExtract injects a SurplusExtract event.
func (s *AdminIngestService) InjectSurplusExtract(ctx context.Context, amount int64) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, fmt.Errorf("amount must be positive")
	}

	evt := &event.SurplusExtract{
		RequestID: uuid.New(),
		Amount:    amount,
		Sequence:  -1, // no upstream ordering; the core assigns the partition slot
		Timestamp: time.Now().UnixMicro(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

// InjectAuctionCollateral injects an AuctionCollateral event.
func (s *AdminIngestService) InjectAuctionCollateral(ctx context.Context, currency string, amount, target int64, split bool) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, fmt.Errorf("amount must be positive")
	}
	if target < 0 {
		return uuid.Nil, fmt.Errorf("target must be non-negative")
	}

	evt := &event.AuctionCollateral{
		RequestID: uuid.New(),
		Symbol:    currency,
		Amount:    amount,
		Target:    target,
		Split:     split,
		Sequence:  -1,
		Timestamp: time.Now().UnixMicro(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

// InjectAuctionSizeUpdate injects an AuctionSizeUpdate event.
func (s *AdminIngestService) InjectAuctionSizeUpdate(ctx context.Context, currency string, size int64) (uuid.UUID, error) {
	if size < 0 {
		return uuid.Nil, fmt.Errorf("size must be non-negative")
	}

	evt := &event.AuctionSizeUpdate{
		RequestID: uuid.New(),
		Symbol:    currency,
		Size:      size,
		Sequence:  -1,
		Timestamp: time.Now().UnixMicro(),
	}

	return evt.RequestID, s.send(ctx, evt)
}

func (s *AdminIngestService) send(ctx context.Context, evt event.Event) error {
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
