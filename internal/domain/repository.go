package domain

import (
	"context"

	"github.com/google/uuid"
)

// LedgerRepository defines the interface for transfer ledger persistence operations
type LedgerRepository interface {
	// ListEvents retrieves an account's transfer events in chronological order
	ListEvents(ctx context.Context, accountID uuid.UUID) ([]TransferEvent, error)

	// ListAccounts retrieves the identifiers of every account with at least one event
	ListAccounts(ctx context.Context) ([]uuid.UUID, error)

	// ListAssets retrieves the distinct assets referenced anywhere in the ledger
	ListAssets(ctx context.Context) ([]string, error)

	// Create records a new transfer event
	Create(ctx context.Context, event *TransferEvent) error

	// Delete removes a transfer event by ID
	Delete(ctx context.Context, id uuid.UUID) error
}

// PriceSnapshotRepository defines the interface for latest-price persistence operations
type PriceSnapshotRepository interface {
	// Upsert stores snapshots, superseding any older snapshot per asset
	Upsert(ctx context.Context, snapshots []PriceSnapshot) error

	// Latest retrieves the most recent snapshot per asset
	Latest(ctx context.Context) (map[string]PriceSnapshot, error)
}

// PriceSeriesCacheRepository defines the interface for the persistent
// canonical-series cache. Only complete, validated 365-day fetches are stored.
type PriceSeriesCacheRepository interface {
	// Get retrieves the cached canonical series for an asset
	// Returns ErrNotFound when no entry exists
	Get(ctx context.Context, asset string) (*CachedSeries, error)

	// Put stores the canonical series for an asset, replacing any previous entry
	Put(ctx context.Context, entry *CachedSeries) error
}

// AlertRuleRepository defines the interface for alert rule persistence operations
type AlertRuleRepository interface {
	// Create stores a new alert rule
	Create(ctx context.Context, rule *AlertRule) error

	// List retrieves all alert rules, active first, newest first
	List(ctx context.Context) ([]AlertRule, error)

	// ListActive retrieves only the active rules
	ListActive(ctx context.Context) ([]AlertRule, error)

	// Update writes back a rule mutated by the evaluator or by user edit
	Update(ctx context.Context, rule *AlertRule) error
}

// MarketDataSource defines the boundary to the external price service.
// The source is rate limited and unreliable per asset; callers own retries
// and fallbacks.
type MarketDataSource interface {
	// FetchSeries retrieves up to days of daily price history for an asset.
	// Fails with ErrRateLimited, ErrAssetNotSupported or ErrSourceUnavailable.
	FetchSeries(ctx context.Context, asset string, days int) ([]PricePoint, error)

	// FetchLatestPrice retrieves the current USD price for an asset.
	// Fails with ErrRateLimited, ErrAssetNotSupported or ErrSourceUnavailable.
	FetchLatestPrice(ctx context.Context, asset string) (PriceSnapshot, error)
}
