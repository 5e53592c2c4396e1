package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalResolutionDays is the only span ever requested from the market data
// source; every shorter resolution is a window of the canonical series.
const CanonicalResolutionDays = 365

// resolutions supported for price series requests, in days
var supportedResolutions = [...]int{7, 30, 90, 180, 365}

// ValidResolution reports whether days is a supported series resolution
func ValidResolution(days int) bool {
	for _, d := range supportedResolutions {
		if d == days {
			return true
		}
	}
	return false
}

// SeriesQuality tags how trustworthy a price series is
type SeriesQuality string

const (
	// SeriesQualityLive means every point came from the market data source
	SeriesQualityLive SeriesQuality = "LIVE"
	// SeriesQualitySynthetic means the series was generated locally for a pegged asset
	SeriesQualitySynthetic SeriesQuality = "SYNTHETIC"
	// SeriesQualityApproximate means the latest snapshot was held flat because
	// no historical data could be obtained
	SeriesQualityApproximate SeriesQuality = "APPROXIMATE"
	// SeriesQualityPartial means the source returned fewer days than requested
	SeriesQualityPartial SeriesQuality = "PARTIAL"
)

// PriceSnapshot represents the latest known USD price for an asset.
// A newer snapshot supersedes an older one; snapshots are never merged.
type PriceSnapshot struct {
	Asset      string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// PricePoint represents the daily closing price for an asset at a date
type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}

// PriceSeries holds an ordered daily price history for one asset
type PriceSeries struct {
	Asset          string
	ResolutionDays int
	Points         []PricePoint
	Quality        SeriesQuality
}

// Window returns a non-destructive slice of the series covering the most
// recent days. The receiver is never mutated, so the canonical series can be
// windowed repeatedly. Quality is carried over unchanged.
func (s PriceSeries) Window(days int) PriceSeries {
	out := PriceSeries{
		Asset:          s.Asset,
		ResolutionDays: days,
		Quality:        s.Quality,
	}
	if len(s.Points) == 0 {
		return out
	}

	cutoff := s.Points[len(s.Points)-1].Time.AddDate(0, 0, -(days - 1))
	for _, p := range s.Points {
		if !p.Time.Before(cutoff) {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// PriceAt returns the price at the point nearest to t, or false when t falls
// outside the series' own range. Prices are never extrapolated beyond the
// first or last point.
func (s PriceSeries) PriceAt(t time.Time) (decimal.Decimal, bool) {
	if len(s.Points) == 0 {
		return decimal.Zero, false
	}
	if t.Before(s.Points[0].Time) || t.After(s.Points[len(s.Points)-1].Time) {
		return decimal.Zero, false
	}

	nearest := s.Points[0]
	best := absDuration(t.Sub(nearest.Time))
	for _, p := range s.Points[1:] {
		if d := absDuration(t.Sub(p.Time)); d < best {
			nearest, best = p, d
		}
	}
	return nearest.Price, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// CachedSeries is a canonical 365-day series together with the instant it was
// fetched, as stored in the persistent series cache.
type CachedSeries struct {
	Series    PriceSeries
	FetchedAt time.Time
}
