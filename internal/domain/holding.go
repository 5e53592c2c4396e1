package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding represents an account's derived position in a single asset.
// It is computed on demand and never persisted.
//
// NetQuantity is signed: over-selling or over-sending yields a negative net,
// which is surfaced as-is so data-entry mistakes can be corrected after the
// fact. ValueUSD is nil when no price snapshot exists for the asset; an
// unknown value is distinct from a confirmed zero.
type Holding struct {
	Asset       string
	NetQuantity decimal.Decimal
	ValueUSD    *decimal.Decimal
}

// ValuePoint captures the total USD value of a portfolio at a specific date
type ValuePoint struct {
	Time     time.Time
	ValueUSD decimal.Decimal
}
