package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// Fixed UUIDs for the demo accounts so re-seeding stays idempotent
var (
	DEMO_ACCOUNT_ALICE = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	DEMO_ACCOUNT_BOB   = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// DemoSeeder seeds a pair of demo accounts with sample transfer ledgers,
// giving a fresh install something to chart
type DemoSeeder struct {
	repo domain.LedgerRepository
}

// NewDemoSeeder creates a new DemoSeeder instance
func NewDemoSeeder(repo domain.LedgerRepository) *DemoSeeder {
	return &DemoSeeder{
		repo: repo,
	}
}

type demoTransfer struct {
	account   uuid.UUID
	asset     string
	kind      domain.EventKind
	quantity  string
	unitPrice string // empty for unpriced SEND/RECEIVE
	daysAgo   int
}

// Seed inserts the sample ledgers unless the demo accounts already have
// events. Existing data is never touched.
func (s *DemoSeeder) Seed(ctx context.Context) error {
	existing, err := s.repo.ListEvents(ctx, DEMO_ACCOUNT_ALICE)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	transfers := []demoTransfer{
		{DEMO_ACCOUNT_ALICE, "BTC", domain.EventKindBuy, "0.5", "40000", 90},
		{DEMO_ACCOUNT_ALICE, "BTC", domain.EventKindSell, "0.2", "45000", 30},
		{DEMO_ACCOUNT_ALICE, "ETH", domain.EventKindBuy, "4", "2500", 60},
		{DEMO_ACCOUNT_ALICE, "USDT", domain.EventKindReceive, "1500", "", 45},
		{DEMO_ACCOUNT_BOB, "SOL", domain.EventKindBuy, "25", "140", 75},
		{DEMO_ACCOUNT_BOB, "ETH", domain.EventKindReceive, "1.5", "", 40},
		{DEMO_ACCOUNT_BOB, "SOL", domain.EventKindSend, "5", "", 10},
	}

	now := time.Now()
	for _, t := range transfers {
		event := &domain.TransferEvent{
			ID:        uuid.New(),
			AccountID: t.account,
			Asset:     t.asset,
			Kind:      t.kind,
			Quantity:  decimal.RequireFromString(t.quantity),
			Timestamp: now.AddDate(0, 0, -t.daysAgo),
		}
		if t.unitPrice != "" {
			price := decimal.RequireFromString(t.unitPrice)
			event.UnitPrice = &price
		}

		if err := event.Validate(); err != nil {
			return err
		}

		if err := s.repo.Create(ctx, event); err != nil {
			return err
		}
	}

	return nil
}
