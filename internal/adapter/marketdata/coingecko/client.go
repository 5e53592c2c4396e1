package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Koss-Lab/crypto-portfolio-tracker/internal/domain"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Config holds the CoinGecko client settings
type Config struct {
	BaseURL string        // defaults to the public API
	APIKey  string        // demo API key, optional
	Timeout time.Duration // per-request timeout, defaults to 25s
}

// Client implements domain.MarketDataSource against the CoinGecko API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new CoinGecko client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 25 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchSeries retrieves up to days of daily price history for an asset.
// Points are deduplicated per UTC day (the API may return several intraday
// samples) and returned in ascending order.
func (c *Client) FetchSeries(ctx context.Context, asset string, days int) ([]domain.PricePoint, error) {
	id, ok := assetIDs[strings.ToUpper(asset)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotSupported, asset)
	}

	endpoint := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d&interval=daily", c.baseURL, id, days)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var chart struct {
		Prices [][]float64 `json:"prices"`
	}
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal market chart: %v", domain.ErrSourceUnavailable, err)
	}

	// One point per UTC day, last sample of the day wins
	perDay := make(map[time.Time]decimal.Decimal)
	for _, row := range chart.Prices {
		if len(row) < 2 {
			continue
		}
		day := time.UnixMilli(int64(row[0])).UTC().Truncate(24 * time.Hour)
		perDay[day] = decimal.NewFromFloat(row[1])
	}

	points := make([]domain.PricePoint, 0, len(perDay))
	for day, price := range perDay {
		points = append(points, domain.PricePoint{Time: day, Price: price})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })

	c.logger.Debug("fetched market chart",
		zap.String("asset", asset), zap.Int("days", days), zap.Int("points", len(points)))
	return points, nil
}

// FetchLatestPrice retrieves the current USD price for an asset
func (c *Client) FetchLatestPrice(ctx context.Context, asset string) (domain.PriceSnapshot, error) {
	symbol := strings.ToUpper(asset)
	id, ok := assetIDs[symbol]
	if !ok {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: %s", domain.ErrAssetNotSupported, asset)
	}

	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(id))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}

	var quote map[string]map[string]float64
	if err := json.Unmarshal(body, &quote); err != nil {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: failed to unmarshal quote: %v", domain.ErrSourceUnavailable, err)
	}

	price, ok := quote[id]["usd"]
	if !ok {
		return domain.PriceSnapshot{}, fmt.Errorf("%w: no quote for %s", domain.ErrSourceUnavailable, asset)
	}

	return domain.PriceSnapshot{
		Asset:      symbol,
		Price:      decimal.NewFromFloat(price),
		ObservedAt: time.Now(),
	}, nil
}

// get performs a single GET and maps HTTP failures onto the domain error
// taxonomy. Retrying is the caller's responsibility.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", domain.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		// The key goes in headers only, never in the query string
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		// CoinGecko throttles with both 429 and 418
		return nil, domain.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrAssetNotSupported
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", domain.ErrSourceUnavailable, err)
	}
	return body, nil
}
