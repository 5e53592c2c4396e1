package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// seriesCacheRepository implements domain.PriceSeriesCacheRepository
type seriesCacheRepository struct {
	db *DB
}

// NewSeriesCacheRepository creates a new price series cache repository
func NewSeriesCacheRepository(db *DB) domain.PriceSeriesCacheRepository {
	return &seriesCacheRepository{db: db}
}

// seriesPoint is the JSONB representation of one daily price point
type seriesPoint struct {
	Time  time.Time       `json:"t"`
	Price decimal.Decimal `json:"p"`
}

// Get retrieves the cached canonical series for an asset
func (r *seriesCacheRepository) Get(ctx context.Context, asset string) (*domain.CachedSeries, error) {
	query := `
		SELECT asset, resolution_days, quality, points, fetched_at
		FROM price_series_cache
		WHERE asset = $1
	`

	var entry domain.CachedSeries
	var quality string
	var pointsRaw []byte

	err := r.db.QueryRowContext(ctx, query, asset).Scan(
		&entry.Series.Asset,
		&entry.Series.ResolutionDays,
		&quality,
		&pointsRaw,
		&entry.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cached series: %w", err)
	}

	entry.Series.Quality = domain.SeriesQuality(quality)

	var points []seriesPoint
	if err := json.Unmarshal(pointsRaw, &points); err != nil {
		return nil, fmt.Errorf("failed to parse cached series points: %w", err)
	}
	entry.Series.Points = make([]domain.PricePoint, len(points))
	for i, p := range points {
		entry.Series.Points[i] = domain.PricePoint{Time: p.Time, Price: p.Price}
	}

	return &entry, nil
}

// Put stores the canonical series for an asset, replacing any previous entry
func (r *seriesCacheRepository) Put(ctx context.Context, entry *domain.CachedSeries) error {
	points := make([]seriesPoint, len(entry.Series.Points))
	for i, p := range entry.Series.Points {
		points[i] = seriesPoint{Time: p.Time, Price: p.Price}
	}

	pointsRaw, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("failed to encode series points: %w", err)
	}

	query := `
		INSERT INTO price_series_cache (asset, resolution_days, quality, points, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (asset) DO UPDATE
		SET resolution_days = EXCLUDED.resolution_days,
		    quality = EXCLUDED.quality,
		    points = EXCLUDED.points,
		    fetched_at = EXCLUDED.fetched_at
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.Series.Asset,
		entry.Series.ResolutionDays,
		string(entry.Series.Quality),
		pointsRaw,
		entry.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cached series: %w", err)
	}

	return nil
}
