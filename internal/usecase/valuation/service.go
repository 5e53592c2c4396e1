package valuation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

// PriceProvider provides price data without creating a dependency on the
// price cache package
type PriceProvider interface {
	GetSeries(ctx context.Context, asset string, resolutionDays int) (domain.PriceSeries, error)
	LatestPrices(ctx context.Context, assets []string) (map[string]domain.PriceSnapshot, error)
}

// PortfolioResult represents an account's current holdings and total value
type PortfolioResult struct {
	AccountID     uuid.UUID
	Holdings      []domain.Holding
	TotalUSD      decimal.Decimal // sum over holdings with a known value
	UnpricedCount int             // holdings whose value is unknown
}

// HistoryResult represents an account's portfolio value over time.
// Approximate is set when any contributing series was degraded or partial,
// so charts can label the data instead of presenting it as authoritative.
type HistoryResult struct {
	AccountID   uuid.UUID
	Points      []domain.ValuePoint
	Approximate bool
	// Skipped lists assets for which no series could be obtained at all
	Skipped []string
}

// AccountTotal represents one entry of the account ranking
type AccountTotal struct {
	AccountID uuid.UUID
	TotalUSD  decimal.Decimal
}

// ValuationService reduces transfer ledgers and price data into holdings,
// historical value and account rankings
type ValuationService struct {
	LedgerRepo domain.LedgerRepository
	Prices     PriceProvider
	Logger     *zap.Logger
}

// NewValuationService creates a new ValuationService instance
func NewValuationService(ledgerRepo domain.LedgerRepository, prices PriceProvider, logger *zap.Logger) *ValuationService {
	return &ValuationService{
		LedgerRepo: ledgerRepo,
		Prices:     prices,
		Logger:     logger,
	}
}

// ComputeHoldings folds a transfer ledger into per-asset holdings.
// Pure function: identical inputs always yield identical output.
//
// BUY and RECEIVE add to the net quantity, SELL and SEND subtract. A negative
// net (over-selling) is surfaced as-is, never rejected or coerced to zero, so
// the caller can decide whether to warn. Assets whose events cancel out to
// zero are still returned, which keeps "closed position" distinguishable from
// "never held". An asset with no snapshot in prices gets a nil ValueUSD.
func ComputeHoldings(events []domain.TransferEvent, prices map[string]domain.PriceSnapshot) []domain.Holding {
	net := make(map[string]decimal.Decimal)
	for _, e := range events {
		net[e.Asset] = net[e.Asset].Add(e.Delta())
	}

	assets := make([]string, 0, len(net))
	for asset := range net {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	holdings := make([]domain.Holding, 0, len(assets))
	for _, asset := range assets {
		h := domain.Holding{Asset: asset, NetQuantity: net[asset]}
		if snap, ok := prices[asset]; ok {
			value := net[asset].Mul(snap.Price)
			h.ValueUSD = &value
		}
		holdings = append(holdings, h)
	}
	return holdings
}

// ComputePortfolioHistory reconstructs total portfolio value over time.
//
// The time axis is the sorted union of all per-asset series timestamps. At
// each timestamp t, every asset contributes its cumulative net quantity over
// events with Timestamp <= t, multiplied by the series price nearest to t.
// An asset contributes nothing at timestamps outside its own series range;
// prices are never extrapolated. The result is recomputable from scratch at
// any time from the same inputs.
func ComputePortfolioHistory(events []domain.TransferEvent, series map[string]domain.PriceSeries, resolutionDays int) []domain.ValuePoint {
	axis := commonAxis(series)
	if len(axis) == 0 {
		return nil
	}

	// Per-asset events in chronological order, walked once during the sweep
	byAsset := make(map[string][]domain.TransferEvent)
	for _, e := range events {
		byAsset[e.Asset] = append(byAsset[e.Asset], e)
	}
	for asset := range byAsset {
		evs := byAsset[asset]
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
	}

	cursor := make(map[string]int, len(byAsset))
	net := make(map[string]decimal.Decimal, len(byAsset))

	points := make([]domain.ValuePoint, 0, len(axis))
	for _, t := range axis {
		total := decimal.Zero
		for asset, s := range series {
			evs := byAsset[asset]
			for cursor[asset] < len(evs) && !evs[cursor[asset]].Timestamp.After(t) {
				net[asset] = net[asset].Add(evs[cursor[asset]].Delta())
				cursor[asset]++
			}
			if price, ok := s.PriceAt(t); ok {
				total = total.Add(net[asset].Mul(price))
			}
		}
		points = append(points, domain.ValuePoint{Time: t, ValueUSD: total})
	}
	return points
}

// commonAxis returns the sorted union of all series timestamps
func commonAxis(series map[string]domain.PriceSeries) []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range series {
		for _, p := range s.Points {
			seen[p.Time.Unix()] = p.Time
		}
	}
	axis := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		axis = append(axis, t)
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i].Before(axis[j]) })
	return axis
}

// Portfolio computes an account's current holdings and total USD value
// Logic:
//  1. Load the account's ledger
//  2. Resolve the latest price snapshot for every asset it ever touched
//  3. Fold events into holdings and sum the known values
func (s *ValuationService) Portfolio(ctx context.Context, accountID uuid.UUID) (*PortfolioResult, error) {
	events, err := s.LedgerRepo.ListEvents(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	prices, err := s.Prices.LatestPrices(ctx, assetsOf(events))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest prices: %w", err)
	}

	holdings := ComputeHoldings(events, prices)

	result := &PortfolioResult{AccountID: accountID, Holdings: holdings, TotalUSD: decimal.Zero}
	for _, h := range holdings {
		if h.ValueUSD == nil {
			result.UnpricedCount++
			continue
		}
		result.TotalUSD = result.TotalUSD.Add(*h.ValueUSD)
	}
	return result, nil
}

// History reconstructs an account's portfolio value over the requested
// resolution. Series are fetched concurrently, one goroutine per asset, so a
// slow or failing asset never stalls the others; cancelling ctx abandons all
// in-flight fetches.
func (s *ValuationService) History(ctx context.Context, accountID uuid.UUID, resolutionDays int) (*HistoryResult, error) {
	if !domain.ValidResolution(resolutionDays) {
		return nil, domain.ErrInvalidResolution
	}

	events, err := s.LedgerRepo.ListEvents(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	assets := assetsOf(events)

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		series = make(map[string]domain.PriceSeries, len(assets))
		result = &HistoryResult{AccountID: accountID}
	)
	for _, asset := range assets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			ps, err := s.Prices.GetSeries(ctx, asset, resolutionDays)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Per-asset isolation: chart the rest, flag the gap
				s.Logger.Warn("no series for asset, skipping",
					zap.String("asset", asset), zap.Error(err))
				result.Skipped = append(result.Skipped, asset)
				return
			}
			series[asset] = ps
			if ps.Quality == domain.SeriesQualityApproximate || ps.Quality == domain.SeriesQualityPartial {
				result.Approximate = true
			}
		}(asset)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Strings(result.Skipped)
	result.Points = ComputePortfolioHistory(events, series, resolutionDays)
	return result, nil
}

// TopAccounts ranks accounts by total portfolio value, descending.
// Ties are broken by account identifier ascending for determinism.
func (s *ValuationService) TopAccounts(ctx context.Context, n int) ([]AccountTotal, error) {
	accounts, err := s.LedgerRepo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	totals := make([]AccountTotal, 0, len(accounts))
	for _, accountID := range accounts {
		portfolio, err := s.Portfolio(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to value account %s: %w", accountID, err)
		}
		totals = append(totals, AccountTotal{AccountID: accountID, TotalUSD: portfolio.TotalUSD})
	}

	sort.Slice(totals, func(i, j int) bool {
		if !totals[i].TotalUSD.Equal(totals[j].TotalUSD) {
			return totals[i].TotalUSD.GreaterThan(totals[j].TotalUSD)
		}
		return totals[i].AccountID.String() < totals[j].AccountID.String()
	})

	if n > 0 && n < len(totals) {
		totals = totals[:n]
	}
	return totals, nil
}

// assetsOf returns the distinct assets referenced by events, sorted ascending
func assetsOf(events []domain.TransferEvent) []string {
	seen := make(map[string]struct{})
	for _, e := range events {
		seen[e.Asset] = struct{}{}
	}
	assets := make([]string, 0, len(seen))
	for asset := range seen {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
