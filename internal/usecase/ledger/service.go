package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// LatestPriceResolver supplies the execution price for unpriced SEND/RECEIVE
// events at recording time
type LatestPriceResolver interface {
	LatestPrice(ctx context.Context, asset string) (domain.PriceSnapshot, error)
}

// RecordTransferInput represents the input for recording a transfer event
type RecordTransferInput struct {
	AccountID uuid.UUID
	Asset     string
	Kind      domain.EventKind
	Quantity  decimal.Decimal
	UnitPrice *decimal.Decimal // required for BUY/SELL, optional otherwise
	Timestamp *time.Time       // nil means now
}

// LedgerService records and removes transfer events. Events are immutable
// once recorded; corrections are made by deleting and re-recording.
type LedgerService struct {
	LedgerRepo domain.LedgerRepository
	Prices     LatestPriceResolver
}

// NewLedgerService creates a new LedgerService instance
func NewLedgerService(ledgerRepo domain.LedgerRepository, prices LatestPriceResolver) *LedgerService {
	return &LedgerService{
		LedgerRepo: ledgerRepo,
		Prices:     prices,
	}
}

// RecordTransfer validates and stores a new transfer event
// Logic:
//  1. Normalize the asset symbol and kind
//  2. SEND/RECEIVE without an explicit price get the latest snapshot price,
//     when one is known; an unknown price stays nil rather than zero
//  3. Validate and persist
func (s *LedgerService) RecordTransfer(ctx context.Context, input RecordTransferInput) (*domain.TransferEvent, error) {
	timestamp := time.Now()
	if input.Timestamp != nil {
		timestamp = *input.Timestamp
	}

	event := &domain.TransferEvent{
		ID:        uuid.New(),
		AccountID: input.AccountID,
		Asset:     strings.ToUpper(strings.TrimSpace(input.Asset)),
		Kind:      domain.EventKind(strings.ToUpper(string(input.Kind))),
		Quantity:  input.Quantity,
		UnitPrice: input.UnitPrice,
		Timestamp: timestamp,
	}

	if event.UnitPrice == nil && (event.Kind == domain.EventKindSend || event.Kind == domain.EventKindReceive) {
		if snap, err := s.Prices.LatestPrice(ctx, event.Asset); err == nil {
			price := snap.Price
			event.UnitPrice = &price
		}
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	if err := s.LedgerRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record transfer: %w", err)
	}
	return event, nil
}

// ListTransfers retrieves an account's events in chronological order
func (s *LedgerService) ListTransfers(ctx context.Context, accountID uuid.UUID) ([]domain.TransferEvent, error) {
	return s.LedgerRepo.ListEvents(ctx, accountID)
}

// ListAccounts retrieves every account with at least one event
func (s *LedgerService) ListAccounts(ctx context.Context) ([]uuid.UUID, error) {
	return s.LedgerRepo.ListAccounts(ctx)
}

// ListAssets retrieves the distinct assets referenced anywhere in the ledger
func (s *LedgerService) ListAssets(ctx context.Context) ([]string, error) {
	return s.LedgerRepo.ListAssets(ctx)
}

// DeleteTransfer removes an event by ID
func (s *LedgerService) DeleteTransfer(ctx context.Context, id uuid.UUID) error {
	if err := s.LedgerRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}
	return nil
}
