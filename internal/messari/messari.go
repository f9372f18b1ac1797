// Package messari provides a client for the Messari data API.
//
// The package exposes small interfaces for the two endpoint families the
// collector needs, the per-asset price time series and the per-asset metrics
// snapshot, together with an HTTP implementation. Callers depend on the
// interfaces so the collector can be tested against fakes.
package messari

import (
	"context"

	"github.com/johnayoung/go-messari-collector/internal/models"
)

// PriceHistoryFetcher retrieves daily price observations for one asset.
type PriceHistoryFetcher interface {
	// FetchPriceHistory returns the observations for asset within the inclusive
	// range. Open sides of the range are left to the API default. An asset with
	// no observations yields an empty slice without error.
	//
	// Failures are classified: transport failures and non-2xx responses are
	// request errors, malformed bodies are parse errors.
	FetchPriceHistory(ctx context.Context, asset models.AssetSymbol, dates models.DateRange) ([]models.TimeSeriesPoint, error)
}

// MetricsFetcher retrieves the current metrics snapshot for one asset.
type MetricsFetcher interface {
	// FetchMetrics returns the numeric metrics reported for asset. Nested
	// objects are flattened into underscore separated names.
	FetchMetrics(ctx context.Context, asset models.AssetSymbol) (models.MetricRecord, error)
}

// HealthChecker reports whether the API is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Fetcher combines the endpoints the collector calls for every asset.
type Fetcher interface {
	PriceHistoryFetcher
	MetricsFetcher
}
