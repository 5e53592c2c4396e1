package domain

import "errors"

// Failure modes of the market data source and the price layer.
// All of them are recoverable: callers either retry, fall back to an
// approximate series, or skip the asset for the current cycle.
var (
	// ErrRateLimited means the market data source throttled the request
	ErrRateLimited = errors.New("market data source rate limited")

	// ErrAssetNotSupported means the asset has no market data source mapping
	ErrAssetNotSupported = errors.New("asset not supported by market data source")

	// ErrSourceUnavailable means the source could not be reached or retries
	// were exhausted and no fallback data exists
	ErrSourceUnavailable = errors.New("market data source unavailable")

	// ErrUnknownPrice means no price snapshot exists at all for an asset
	ErrUnknownPrice = errors.New("no known price for asset")

	// ErrInvalidResolution means the requested series resolution is not supported
	ErrInvalidResolution = errors.New("unsupported series resolution")

	// ErrNotFound means a persisted record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput means an entity failed domain validation
	ErrInvalidInput = errors.New("invalid input")
)
