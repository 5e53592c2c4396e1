package pricecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// MockMarketDataSource is a mock implementation of MarketDataSource for testing
type MockMarketDataSource struct {
	mock.Mock
}

func (m *MockMarketDataSource) FetchSeries(ctx context.Context, asset string, days int) ([]domain.PricePoint, error) {
	args := m.Called(ctx, asset, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PricePoint), args.Error(1)
}

func (m *MockMarketDataSource) FetchLatestPrice(ctx context.Context, asset string) (domain.PriceSnapshot, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(domain.PriceSnapshot), args.Error(1)
}

// MockSeriesCacheRepository is a mock implementation of PriceSeriesCacheRepository for testing
type MockSeriesCacheRepository struct {
	mock.Mock
}

func (m *MockSeriesCacheRepository) Get(ctx context.Context, asset string) (*domain.CachedSeries, error) {
	args := m.Called(ctx, asset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CachedSeries), args.Error(1)
}

func (m *MockSeriesCacheRepository) Put(ctx context.Context, entry *domain.CachedSeries) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockSnapshotRepository is a mock implementation of PriceSnapshotRepository for testing
type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Upsert(ctx context.Context, snapshots []domain.PriceSnapshot) error {
	args := m.Called(ctx, snapshots)
	return args.Error(0)
}

func (m *MockSnapshotRepository) Latest(ctx context.Context) (map[string]domain.PriceSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.PriceSnapshot), args.Error(1)
}

var testNow = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

// newTestService wires a service with a frozen clock and no real sleeping
func newTestService(source domain.MarketDataSource, seriesCache domain.PriceSeriesCacheRepository, snapshotRepo domain.PriceSnapshotRepository) *PriceCacheService {
	s := NewPriceCacheService(source, seriesCache, snapshotRepo, DefaultConfig(), zap.NewNop())
	s.now = func() time.Time { return testNow }
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func canonicalPoints(n int, price int64) []domain.PricePoint {
	end := testNow.Truncate(24 * time.Hour)
	points := make([]domain.PricePoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		points = append(points, domain.PricePoint{Time: end.AddDate(0, 0, -i), Price: decimal.NewFromInt(price)})
	}
	return points
}

func TestGetSeries_SyntheticPeggedAsset(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	for _, days := range []int{7, 30, 90, 180, 365} {
		series, err := service.GetSeries(context.Background(), "USDT", days)

		require.NoError(t, err)
		assert.Equal(t, domain.SeriesQualitySynthetic, series.Quality)
		require.Len(t, series.Points, days)
		for _, p := range series.Points {
			assert.True(t, p.Price.Equal(decimal.NewFromInt(1)), "every point equals the peg exactly")
		}
	}

	// Synthetic is terminal: the source is never consulted
	source.AssertNotCalled(t, "FetchSeries")
	source.AssertNotCalled(t, "FetchLatestPrice")
}

func TestGetSeries_FetchThenCache(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "BTC", 365).Return(canonicalPoints(365, 50000), nil).Once()

	first, err := service.GetSeries(context.Background(), "BTC", 30)
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityLive, first.Quality)
	assert.Len(t, first.Points, 30)

	// Second request at a different resolution windows the cached canonical
	// series; no second network call
	second, err := service.GetSeries(context.Background(), "BTC", 90)
	require.NoError(t, err)
	assert.Len(t, second.Points, 90)

	source.AssertNumberOfCalls(t, "FetchSeries", 1)
}

func TestGetSeries_WindowRoundTrip(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "BTC", 365).Return(canonicalPoints(365, 50000), nil).Once()

	full, err := service.GetSeries(context.Background(), "BTC", 365)
	require.NoError(t, err)
	windowed, err := service.GetSeries(context.Background(), "BTC", 30)
	require.NoError(t, err)

	// The 30-day window is the most recent suffix of the 365-day series
	suffix := full.Points[len(full.Points)-30:]
	require.Len(t, windowed.Points, 30)
	for i, p := range windowed.Points {
		assert.True(t, p.Time.Equal(suffix[i].Time))
		assert.True(t, p.Price.Equal(suffix[i].Price))
	}
}

func TestGetSeries_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "ETH", 365).Return(nil, domain.ErrRateLimited).Twice()
	source.On("FetchSeries", mock.Anything, "ETH", 365).Return(canonicalPoints(365, 2000), nil).Once()

	series, err := service.GetSeries(context.Background(), "ETH", 7)

	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityLive, series.Quality)
	source.AssertNumberOfCalls(t, "FetchSeries", 3)
}

func TestGetSeries_DegradedFallbackIsFlatAndApproximate(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "DOGE", 365).Return(nil, domain.ErrRateLimited)
	source.On("FetchLatestPrice", mock.Anything, "DOGE").Return(
		domain.PriceSnapshot{Asset: "DOGE", Price: decimal.RequireFromString("0.25"), ObservedAt: testNow}, nil)

	series, err := service.GetSeries(context.Background(), "DOGE", 30)

	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityApproximate, series.Quality)
	require.Len(t, series.Points, 30)
	for _, p := range series.Points {
		assert.True(t, p.Price.Equal(decimal.RequireFromString("0.25")),
			"degraded series holds the last known snapshot flat")
	}

	// Retries were bounded
	source.AssertNumberOfCalls(t, "FetchSeries", DefaultConfig().MaxAttempts)
}

func TestGetSeries_DegradedBackoffWindowSkipsRefetch(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "DOGE", 365).Return(nil, errors.New("connection refused")).Once()
	source.On("FetchLatestPrice", mock.Anything, "DOGE").Return(
		domain.PriceSnapshot{Asset: "DOGE", Price: decimal.NewFromInt(1), ObservedAt: testNow}, nil)

	_, err := service.GetSeries(context.Background(), "DOGE", 7)
	require.NoError(t, err)

	// Still inside the backoff window: served degraded again without a fetch
	series, err := service.GetSeries(context.Background(), "DOGE", 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityApproximate, series.Quality)
	source.AssertNumberOfCalls(t, "FetchSeries", 1)
}

func TestGetSeries_DegradedRetriesAfterBackoffElapses(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "DOGE", 365).Return(nil, errors.New("connection refused")).Once()
	source.On("FetchLatestPrice", mock.Anything, "DOGE").Return(
		domain.PriceSnapshot{Asset: "DOGE", Price: decimal.NewFromInt(1), ObservedAt: testNow}, nil)

	_, err := service.GetSeries(context.Background(), "DOGE", 7)
	require.NoError(t, err)

	// Advance past the backoff window: a fresh fetching transition succeeds
	service.now = func() time.Time { return testNow.Add(DefaultConfig().DegradedRetryAfter + time.Minute) }
	source.On("FetchSeries", mock.Anything, "DOGE", 365).Return(canonicalPoints(365, 1), nil).Once()

	series, err := service.GetSeries(context.Background(), "DOGE", 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityLive, series.Quality)
	source.AssertNumberOfCalls(t, "FetchSeries", 2)
}

func TestGetSeries_CancelledCallDoesNotEnterDegraded(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source.On("FetchSeries", mock.Anything, "BTC", 365).Return(nil, context.Canceled).Once()

	_, err := service.GetSeries(ctx, "BTC", 30)
	require.ErrorIs(t, err, context.Canceled)

	// The abandoned call left no Degraded state behind: the next healthy
	// caller re-fetches and gets live data, not a flat approximation
	source.On("FetchSeries", mock.Anything, "BTC", 365).Return(canonicalPoints(365, 50000), nil).Once()

	series, err := service.GetSeries(context.Background(), "BTC", 30)
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityLive, series.Quality)
	source.AssertNotCalled(t, "FetchLatestPrice", mock.Anything, mock.Anything)
}

func TestGetSeries_CancelledDuringBackoffLeavesStateClean(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)
	service.sleep = sleepCtx

	// Throttled once, then the retry delay is interrupted by cancellation
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source.On("FetchSeries", mock.Anything, "ETH", 365).Return(nil, domain.ErrRateLimited).Once()

	_, err := service.GetSeries(ctx, "ETH", 30)
	require.ErrorIs(t, err, context.Canceled)

	source.On("FetchSeries", mock.Anything, "ETH", 365).Return(canonicalPoints(365, 2800), nil).Once()

	series, err := service.GetSeries(context.Background(), "ETH", 30)
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityLive, series.Quality)
}

func TestGetSeries_NoSnapshotAtAllFails(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "VRA", 365).Return(nil, errors.New("connection refused"))
	source.On("FetchLatestPrice", mock.Anything, "VRA").Return(domain.PriceSnapshot{}, domain.ErrSourceUnavailable)

	_, err := service.GetSeries(context.Background(), "VRA", 30)

	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestGetSeries_ShortHistoryTaggedPartial(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	// Asset with only 40 days of history
	source.On("FetchSeries", mock.Anything, "NEW", 365).Return(canonicalPoints(40, 5), nil).Once()

	series, err := service.GetSeries(context.Background(), "NEW", 365)

	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityPartial, series.Quality)
	assert.Len(t, series.Points, 40)
}

func TestGetSeries_PersistentCacheHitAvoidsNetwork(t *testing.T) {
	source := new(MockMarketDataSource)
	seriesCache := new(MockSeriesCacheRepository)
	service := newTestService(source, seriesCache, nil)

	cached := &domain.CachedSeries{
		Series: domain.PriceSeries{
			Asset:          "BTC",
			ResolutionDays: 365,
			Points:         canonicalPoints(365, 48000),
			Quality:        domain.SeriesQualityLive,
		},
		FetchedAt: testNow.Add(-time.Hour),
	}
	seriesCache.On("Get", mock.Anything, "BTC").Return(cached, nil).Once()

	series, err := service.GetSeries(context.Background(), "BTC", 30)

	require.NoError(t, err)
	assert.Len(t, series.Points, 30)
	source.AssertNotCalled(t, "FetchSeries")
}

func TestGetSeries_SuccessfulFetchIsWrittenThrough(t *testing.T) {
	source := new(MockMarketDataSource)
	seriesCache := new(MockSeriesCacheRepository)
	service := newTestService(source, seriesCache, nil)

	seriesCache.On("Get", mock.Anything, "BTC").Return(nil, domain.ErrNotFound).Once()
	source.On("FetchSeries", mock.Anything, "BTC", 365).Return(canonicalPoints(365, 50000), nil).Once()
	seriesCache.On("Put", mock.Anything, mock.MatchedBy(func(entry *domain.CachedSeries) bool {
		return entry.Series.Asset == "BTC" && len(entry.Series.Points) == 365
	})).Return(nil).Once()

	_, err := service.GetSeries(context.Background(), "BTC", 30)

	require.NoError(t, err)
	seriesCache.AssertExpectations(t)
}

func TestGetSeries_StaleCacheIsRefetched(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "BTC", 365).Return(canonicalPoints(365, 50000), nil).Twice()

	_, err := service.GetSeries(context.Background(), "BTC", 30)
	require.NoError(t, err)

	// Past the TTL the entry is stale and lazily refetched
	service.now = func() time.Time { return testNow.Add(DefaultConfig().SeriesTTL + time.Minute) }
	_, err = service.GetSeries(context.Background(), "BTC", 30)
	require.NoError(t, err)

	source.AssertNumberOfCalls(t, "FetchSeries", 2)
}

func TestGetSeries_InvalidResolution(t *testing.T) {
	service := newTestService(new(MockMarketDataSource), nil, nil)

	_, err := service.GetSeries(context.Background(), "BTC", 42)

	assert.ErrorIs(t, err, domain.ErrInvalidResolution)
}

func TestGetSeries_FailureIsolatedPerAsset(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchSeries", mock.Anything, "DOGE", 365).Return(nil, errors.New("connection refused"))
	source.On("FetchLatestPrice", mock.Anything, "DOGE").Return(domain.PriceSnapshot{}, domain.ErrSourceUnavailable)
	source.On("FetchSeries", mock.Anything, "BTC", 365).Return(canonicalPoints(365, 50000), nil).Once()

	_, err := service.GetSeries(context.Background(), "DOGE", 30)
	require.Error(t, err)

	// DOGE being degraded never blocks BTC
	series, err := service.GetSeries(context.Background(), "BTC", 30)
	require.NoError(t, err)
	assert.Equal(t, domain.SeriesQualityLive, series.Quality)
}

func TestLatestPrice_CachedWithinTTL(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchLatestPrice", mock.Anything, "BTC").Return(
		domain.PriceSnapshot{Asset: "BTC", Price: decimal.NewFromInt(50000), ObservedAt: testNow}, nil).Once()

	first, err := service.LatestPrice(context.Background(), "BTC")
	require.NoError(t, err)
	second, err := service.LatestPrice(context.Background(), "BTC")
	require.NoError(t, err)

	assert.True(t, first.Price.Equal(second.Price))
	source.AssertNumberOfCalls(t, "FetchLatestPrice", 1)
}

func TestLatestPrice_PeggedAnsweredLocally(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	snap, err := service.LatestPrice(context.Background(), "USDC")

	require.NoError(t, err)
	assert.True(t, snap.Price.Equal(decimal.NewFromInt(1)))
	source.AssertNotCalled(t, "FetchLatestPrice")
}

func TestLatestPrice_UnknownAsset(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchLatestPrice", mock.Anything, "NOPE").Return(domain.PriceSnapshot{}, domain.ErrAssetNotSupported)

	_, err := service.LatestPrice(context.Background(), "NOPE")

	assert.ErrorIs(t, err, domain.ErrUnknownPrice)
}

func TestLatestPrices_OmitsUnknownAssets(t *testing.T) {
	source := new(MockMarketDataSource)
	service := newTestService(source, nil, nil)

	source.On("FetchLatestPrice", mock.Anything, "BTC").Return(
		domain.PriceSnapshot{Asset: "BTC", Price: decimal.NewFromInt(50000), ObservedAt: testNow}, nil)
	source.On("FetchLatestPrice", mock.Anything, "NOPE").Return(domain.PriceSnapshot{}, domain.ErrAssetNotSupported)

	prices, err := service.LatestPrices(context.Background(), []string{"BTC", "NOPE"})

	require.NoError(t, err)
	assert.Contains(t, prices, "BTC")
	assert.NotContains(t, prices, "NOPE")
}

func TestLatestPrices_FallsBackToPersistedSnapshots(t *testing.T) {
	source := new(MockMarketDataSource)
	snapshotRepo := new(MockSnapshotRepository)
	service := newTestService(source, nil, snapshotRepo)

	source.On("FetchLatestPrice", mock.Anything, "BTC").Return(domain.PriceSnapshot{}, domain.ErrSourceUnavailable)
	snapshotRepo.On("Latest", mock.Anything).Return(map[string]domain.PriceSnapshot{
		"BTC": {Asset: "BTC", Price: decimal.NewFromInt(49000), ObservedAt: testNow.Add(-time.Hour)},
	}, nil).Once()

	prices, err := service.LatestPrices(context.Background(), []string{"BTC"})

	require.NoError(t, err)
	require.Contains(t, prices, "BTC")
	assert.True(t, prices["BTC"].Price.Equal(decimal.NewFromInt(49000)))
}

func TestRefresh_PersistsFetchedSnapshots(t *testing.T) {
	source := new(MockMarketDataSource)
	snapshotRepo := new(MockSnapshotRepository)
	service := newTestService(source, nil, snapshotRepo)

	source.On("FetchLatestPrice", mock.Anything, "BTC").Return(
		domain.PriceSnapshot{Asset: "BTC", Price: decimal.NewFromInt(50000), ObservedAt: testNow}, nil)
	source.On("FetchLatestPrice", mock.Anything, "VRA").Return(domain.PriceSnapshot{}, domain.ErrAssetNotSupported)
	snapshotRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(snaps []domain.PriceSnapshot) bool {
		return len(snaps) == 1 && snaps[0].Asset == "BTC"
	})).Return(nil).Once()

	snapshots, err := service.Refresh(context.Background(), []string{"BTC", "VRA"})

	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
	snapshotRepo.AssertExpectations(t)
}
