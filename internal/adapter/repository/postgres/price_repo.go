package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// priceSnapshotRepository implements domain.PriceSnapshotRepository
type priceSnapshotRepository struct {
	db *DB
}

// NewPriceSnapshotRepository creates a new price snapshot repository
func NewPriceSnapshotRepository(db *DB) domain.PriceSnapshotRepository {
	return &priceSnapshotRepository{db: db}
}

// Upsert stores snapshots, superseding any older snapshot per asset
func (r *priceSnapshotRepository) Upsert(ctx context.Context, snapshots []domain.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO price_snapshots (asset, price, observed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset) DO UPDATE
		SET price = EXCLUDED.price, observed_at = EXCLUDED.observed_at
		WHERE EXCLUDED.observed_at >= price_snapshots.observed_at
	`

	for _, snap := range snapshots {
		_, err = dbTx.ExecContext(ctx, query,
			snap.Asset,
			snap.Price.String(),
			snap.ObservedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert price snapshot: %w", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Latest retrieves the most recent snapshot per asset
func (r *priceSnapshotRepository) Latest(ctx context.Context) (map[string]domain.PriceSnapshot, error) {
	query := `
		SELECT asset, price, observed_at
		FROM price_snapshots
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query price snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make(map[string]domain.PriceSnapshot)
	for rows.Next() {
		var snap domain.PriceSnapshot
		var priceStr string

		if err := rows.Scan(&snap.Asset, &priceStr, &snap.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price snapshot: %w", err)
		}

		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse price: %w", err)
		}
		snap.Price = price

		snapshots[snap.Asset] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price snapshots: %w", err)
	}

	return snapshots, nil
}
