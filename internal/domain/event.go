package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventKind represents the type of a transfer event
type EventKind string

const (
	EventKindBuy     EventKind = "BUY"
	EventKindSell    EventKind = "SELL"
	EventKindSend    EventKind = "SEND"
	EventKindReceive EventKind = "RECEIVE"
)

// Valid reports whether the kind is one of the four supported kinds
func (k EventKind) Valid() bool {
	switch k {
	case EventKindBuy, EventKindSell, EventKindSend, EventKindReceive:
		return true
	}
	return false
}

// TransferEvent represents a single entry in an account's transfer ledger.
// Events are immutable once recorded; the ledger is owned by the external store.
type TransferEvent struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Asset     string
	Kind      EventKind
	Quantity  decimal.Decimal  // ABSOLUTE VALUE (Always Positive)
	UnitPrice *decimal.Decimal // USD at execution time; nil allowed for SEND/RECEIVE
	Timestamp time.Time
}

// Delta returns the signed contribution of the event to the asset's net quantity:
// BUY and RECEIVE add the quantity, SELL and SEND subtract it.
func (e *TransferEvent) Delta() decimal.Decimal {
	switch e.Kind {
	case EventKindBuy, EventKindReceive:
		return e.Quantity
	default:
		return e.Quantity.Neg()
	}
}

// Validate ensures the event adheres to domain rules
// Returns an error if validation fails
func (e *TransferEvent) Validate() error {
	if e.Asset == "" {
		return fmt.Errorf("%w: event asset cannot be empty", ErrInvalidInput)
	}

	if !e.Kind.Valid() {
		return fmt.Errorf("%w: event kind must be BUY, SELL, SEND or RECEIVE", ErrInvalidInput)
	}

	if e.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: event quantity must be positive", ErrInvalidInput)
	}

	// BUY and SELL are priced trades; SEND and RECEIVE may omit the unit price
	if e.Kind == EventKindBuy || e.Kind == EventKindSell {
		if e.UnitPrice == nil {
			return fmt.Errorf("%w: unit price is required for BUY and SELL events", ErrInvalidInput)
		}
		if e.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: unit price cannot be negative", ErrInvalidInput)
		}
	}

	return nil
}
