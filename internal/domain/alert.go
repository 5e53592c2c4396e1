package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AlertOperator represents the comparison of a threshold rule
type AlertOperator string

const (
	AlertOperatorAbove AlertOperator = ">"
	AlertOperatorBelow AlertOperator = "<"
)

// AlertRule represents a user-defined price threshold rule.
// A rule is deactivated once satisfied and is never reactivated automatically.
type AlertRule struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Asset       string
	Operator    AlertOperator
	Threshold   decimal.Decimal // USD
	Active      bool
	CreatedAt   time.Time
	TriggeredAt *time.Time
}

// Satisfied reports whether price meets the rule's condition
func (r *AlertRule) Satisfied(price decimal.Decimal) bool {
	if r.Operator == AlertOperatorAbove {
		return price.GreaterThan(r.Threshold)
	}
	return price.LessThan(r.Threshold)
}

// Validate ensures the rule adheres to domain rules
// Returns an error if validation fails
func (r *AlertRule) Validate() error {
	if r.Asset == "" {
		return fmt.Errorf("%w: alert asset cannot be empty", ErrInvalidInput)
	}

	if r.Operator != AlertOperatorAbove && r.Operator != AlertOperatorBelow {
		return fmt.Errorf("%w: alert operator must be > or <", ErrInvalidInput)
	}

	if r.Threshold.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: alert threshold must be positive", ErrInvalidInput)
	}

	return nil
}
