package pricecache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// Config holds the tunables of the price cache layer
type Config struct {
	// SeriesTTL is how long a cached canonical series stays fresh.
	// Daily-granularity data does not need sub-day freshness.
	SeriesTTL time.Duration

	// SnapshotTTL is how long a cached latest-price snapshot stays fresh
	SnapshotTTL time.Duration

	// MaxAttempts caps the fetch attempts per call, including the first
	MaxAttempts int

	// RetryBaseDelay is the first retry delay; it doubles per attempt
	RetryBaseDelay time.Duration

	// DegradedRetryAfter is the backoff window before a degraded asset is
	// given another fetch attempt
	DegradedRetryAfter time.Duration

	// PeggedAssets maps stablecoin symbols to their peg price. Pegged assets
	// are served synthetically and never hit the market data source.
	PeggedAssets map[string]decimal.Decimal
}

// DefaultConfig returns the production tunables
func DefaultConfig() Config {
	return Config{
		SeriesTTL:          6 * time.Hour,
		SnapshotTTL:        5 * time.Minute,
		MaxAttempts:        4,
		RetryBaseDelay:     500 * time.Millisecond,
		DegradedRetryAfter: 10 * time.Minute,
		PeggedAssets: map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(1),
			"USDC": decimal.NewFromInt(1),
			"DAI":  decimal.NewFromInt(1),
			"TUSD": decimal.NewFromInt(1),
		},
	}
}

// assetState is the per-asset cache entry. Each asset carries its own lock so
// one asset's fetch or backoff never blocks retrieval for another.
type assetState struct {
	mu sync.Mutex

	canonical *domain.PriceSeries // fresh 365-day series, nil when absent
	fetchedAt time.Time

	// degradedUntil is non-zero while the asset sits in Degraded state;
	// fetching is not re-attempted before it elapses
	degradedUntil time.Time

	snapshot   *domain.PriceSnapshot
	snapshotAt time.Time
}

// PriceCacheService owns all interaction with the market data source and
// serves price series at several resolutions, degrading gracefully when the
// source fails
type PriceCacheService struct {
	Source       domain.MarketDataSource
	SeriesCache  domain.PriceSeriesCacheRepository // optional persistent cache, may be nil
	SnapshotRepo domain.PriceSnapshotRepository    // optional snapshot persistence, may be nil
	Logger       *zap.Logger

	cfg    Config
	mu     sync.Mutex // guards assets map only
	assets map[string]*assetState

	// injected for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPriceCacheService creates a new PriceCacheService instance
func NewPriceCacheService(
	source domain.MarketDataSource,
	seriesCache domain.PriceSeriesCacheRepository,
	snapshotRepo domain.PriceSnapshotRepository,
	cfg Config,
	logger *zap.Logger,
) *PriceCacheService {
	return &PriceCacheService{
		Source:       source,
		SeriesCache:  seriesCache,
		SnapshotRepo: snapshotRepo,
		Logger:       logger,
		cfg:          cfg,
		assets:       make(map[string]*assetState),
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// state returns the per-asset entry, creating it on first use
func (s *PriceCacheService) state(asset string) *assetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.assets[asset]
	if !ok {
		st = &assetState{}
		s.assets[asset] = st
	}
	return st
}

// GetSeries returns a price series for the asset at the requested resolution.
//
// Per-asset state machine:
//   - Synthetic: configured pegged assets get a locally generated flat series,
//     terminal, no network call ever
//   - Cached: a fresh canonical 365-day series exists (in memory or in the
//     persistent cache); shorter resolutions are served by windowing it
//   - Fetching: the canonical series is fetched with bounded retries and
//     exponential backoff on throttling
//   - Degraded: fetching failed; the latest known snapshot is held flat across
//     the window and the result is tagged approximate. Fetching is retried on
//     the next call after the backoff window elapses.
func (s *PriceCacheService) GetSeries(ctx context.Context, asset string, resolutionDays int) (domain.PriceSeries, error) {
	if !domain.ValidResolution(resolutionDays) {
		return domain.PriceSeries{}, domain.ErrInvalidResolution
	}

	// Synthetic: never leaves this state, never calls the source
	if peg, ok := s.cfg.PeggedAssets[asset]; ok {
		return s.syntheticSeries(asset, peg, resolutionDays, domain.SeriesQualitySynthetic), nil
	}

	st := s.state(asset)
	st.mu.Lock()
	defer st.mu.Unlock()

	now := s.now()

	// Cached in memory and still fresh
	if st.canonical != nil && now.Sub(st.fetchedAt) < s.cfg.SeriesTTL {
		return st.canonical.Window(resolutionDays), nil
	}

	// Cached on disk and still fresh
	if s.SeriesCache != nil {
		if entry, err := s.SeriesCache.Get(ctx, asset); err == nil {
			if now.Sub(entry.FetchedAt) < s.cfg.SeriesTTL {
				series := entry.Series
				st.canonical = &series
				st.fetchedAt = entry.FetchedAt
				return series.Window(resolutionDays), nil
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.Logger.Warn("series cache read failed", zap.String("asset", asset), zap.Error(err))
		}
	}

	// Degraded and still inside the backoff window: do not hammer the source
	if now.Before(st.degradedUntil) {
		return s.degradedSeries(ctx, st, asset, resolutionDays)
	}

	// Fetching
	canonical, err := s.fetchCanonical(ctx, asset)
	if err != nil {
		// An abandoned call leaves the cache unharmed; only a source failure
		// enters Degraded
		if ctx.Err() != nil {
			return domain.PriceSeries{}, ctx.Err()
		}
		st.degradedUntil = now.Add(s.cfg.DegradedRetryAfter)
		s.Logger.Warn("canonical series fetch failed, entering degraded state",
			zap.String("asset", asset), zap.Error(err))
		return s.degradedSeries(ctx, st, asset, resolutionDays)
	}

	st.canonical = &canonical
	st.fetchedAt = s.now()
	st.degradedUntil = time.Time{}

	if s.SeriesCache != nil {
		entry := &domain.CachedSeries{Series: canonical, FetchedAt: st.fetchedAt}
		if err := s.SeriesCache.Put(ctx, entry); err != nil {
			s.Logger.Warn("series cache write failed", zap.String("asset", asset), zap.Error(err))
		}
	}

	return canonical.Window(resolutionDays), nil
}

// fetchCanonical pulls the 365-day series with a bounded retry loop.
// Only throttling errors are retried; the delay doubles per attempt.
// A series shorter than requested is kept and tagged partial, not failed.
func (s *PriceCacheService) fetchCanonical(ctx context.Context, asset string) (domain.PriceSeries, error) {
	var lastErr error
	delay := s.cfg.RetryBaseDelay

	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				return domain.PriceSeries{}, err
			}
			delay *= 2
		}

		points, err := s.Source.FetchSeries(ctx, asset, domain.CanonicalResolutionDays)
		if err == nil {
			if len(points) == 0 {
				return domain.PriceSeries{}, fmt.Errorf("%w: empty series for %s", domain.ErrSourceUnavailable, asset)
			}
			quality := domain.SeriesQualityLive
			if len(points) < domain.CanonicalResolutionDays {
				quality = domain.SeriesQualityPartial
			}
			return domain.PriceSeries{
				Asset:          asset,
				ResolutionDays: domain.CanonicalResolutionDays,
				Points:         points,
				Quality:        quality,
			}, nil
		}

		lastErr = err
		if !errors.Is(err, domain.ErrRateLimited) {
			break
		}
	}

	return domain.PriceSeries{}, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, lastErr)
}

// degradedSeries approximates history by holding the latest known snapshot
// flat across the requested window. Callers can tell it apart from real data
// through the Approximate quality tag.
// Requires st.mu held.
func (s *PriceCacheService) degradedSeries(ctx context.Context, st *assetState, asset string, resolutionDays int) (domain.PriceSeries, error) {
	snap, err := s.latestLocked(ctx, st, asset)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("%w: no snapshot to approximate %s", domain.ErrSourceUnavailable, asset)
	}
	return s.syntheticSeries(asset, snap.Price, resolutionDays, domain.SeriesQualityApproximate), nil
}

// syntheticSeries generates a flat daily series at price, ending today
func (s *PriceCacheService) syntheticSeries(asset string, price decimal.Decimal, days int, quality domain.SeriesQuality) domain.PriceSeries {
	end := s.now().UTC().Truncate(24 * time.Hour)
	points := make([]domain.PricePoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		points = append(points, domain.PricePoint{Time: end.AddDate(0, 0, -i), Price: price})
	}
	return domain.PriceSeries{
		Asset:          asset,
		ResolutionDays: days,
		Points:         points,
		Quality:        quality,
	}
}

// LatestPrice returns the current snapshot for one asset, served from the
// per-asset snapshot cache when fresh. The snapshot path is independent of
// the historical series path: a failing history endpoint does not make the
// live price unknown.
func (s *PriceCacheService) LatestPrice(ctx context.Context, asset string) (domain.PriceSnapshot, error) {
	if peg, ok := s.cfg.PeggedAssets[asset]; ok {
		return domain.PriceSnapshot{Asset: asset, Price: peg, ObservedAt: s.now()}, nil
	}

	st := s.state(asset)
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.latestLocked(ctx, st, asset)
}

// latestLocked resolves the latest snapshot with st.mu held
func (s *PriceCacheService) latestLocked(ctx context.Context, st *assetState, asset string) (domain.PriceSnapshot, error) {
	now := s.now()
	if st.snapshot != nil && now.Sub(st.snapshotAt) < s.cfg.SnapshotTTL {
		return *st.snapshot, nil
	}

	snap, err := s.Source.FetchLatestPrice(ctx, asset)
	if err != nil {
		// A stale snapshot is still the last known price
		if st.snapshot != nil {
			return *st.snapshot, nil
		}
		return domain.PriceSnapshot{}, fmt.Errorf("%w: %s: %v", domain.ErrUnknownPrice, asset, err)
	}

	st.snapshot = &snap
	st.snapshotAt = now
	return snap, nil
}

// LatestPrices resolves snapshots for several assets. Assets with no known
// price are omitted from the result rather than failing the whole call; the
// caller reports them as unknown.
func (s *PriceCacheService) LatestPrices(ctx context.Context, assets []string) (map[string]domain.PriceSnapshot, error) {
	out := make(map[string]domain.PriceSnapshot, len(assets))

	var persisted map[string]domain.PriceSnapshot
	for _, asset := range assets {
		snap, err := s.LatestPrice(ctx, asset)
		if err == nil {
			out[asset] = snap
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Cold source: fall back to the persisted snapshot store once
		if s.SnapshotRepo != nil {
			if persisted == nil {
				persisted, err = s.SnapshotRepo.Latest(ctx)
				if err != nil {
					s.Logger.Warn("persisted snapshots unavailable", zap.Error(err))
					persisted = map[string]domain.PriceSnapshot{}
				}
			}
			if snap, ok := persisted[asset]; ok {
				out[asset] = snap
			}
		}
	}
	return out, nil
}

// Refresh fetches fresh snapshots for the given assets and persists them,
// superseding the previous ones. Failing assets are skipped; the refresh is
// best-effort per asset.
func (s *PriceCacheService) Refresh(ctx context.Context, assets []string) ([]domain.PriceSnapshot, error) {
	snapshots := make([]domain.PriceSnapshot, 0, len(assets))
	for _, asset := range assets {
		snap, err := s.LatestPrice(ctx, asset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.Logger.Warn("snapshot refresh failed", zap.String("asset", asset), zap.Error(err))
			continue
		}
		snapshots = append(snapshots, snap)
	}

	if s.SnapshotRepo != nil && len(snapshots) > 0 {
		if err := s.SnapshotRepo.Upsert(ctx, snapshots); err != nil {
			return nil, fmt.Errorf("failed to persist snapshots: %w", err)
		}
	}
	return snapshots, nil
}
