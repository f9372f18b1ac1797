// Package collector orchestrates a single fetch-and-assemble run.
//
// For every requested asset, in order, the collector fetches the price history
// and the metrics snapshot and merges each into its accumulating table. The
// run is all-or-nothing: the first failure aborts it and no table is returned.
package collector

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/johnayoung/go-messari-collector/internal/errors"
	"github.com/johnayoung/go-messari-collector/internal/logger"
	"github.com/johnayoung/go-messari-collector/internal/messari"
	"github.com/johnayoung/go-messari-collector/internal/models"
	"github.com/johnayoung/go-messari-collector/internal/table"
)

// Request describes one run.
type Request struct {
	Assets  []models.AssetSymbol
	Range   models.DateRange
	Flatten bool
}

// Validate rejects empty or duplicate asset lists and inverted ranges.
func (r Request) Validate() error {
	if len(r.Assets) == 0 {
		return apperrors.NewArgumentError("assets", "at least one asset is required")
	}
	seen := make(map[models.AssetSymbol]bool, len(r.Assets))
	for _, asset := range r.Assets {
		normalized, err := models.ParseAssetSymbol(asset.String())
		if err != nil {
			return err
		}
		if normalized != asset {
			return apperrors.NewArgumentError("assets", "asset %q is not normalized, expected %q", asset.String(), normalized.String())
		}
		if seen[asset] {
			return apperrors.NewArgumentError("assets", "duplicate asset %q", asset.String())
		}
		seen[asset] = true
	}
	return r.Range.Validate()
}

// Result holds the assembled tables of a successful run.
type Result struct {
	PriceHistory *table.PriceHistoryTable
	Metrics      *table.MetricsTable
	TraceID      string
	Stats        RunStats
}

// Collector runs requests against a Fetcher.
type Collector struct {
	fetcher messari.Fetcher
	logger  *slog.Logger
}

// New creates a collector. A nil logger uses slog.Default.
func New(fetcher messari.Fetcher, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		fetcher: fetcher,
		logger:  log.With("component", "collector"),
	}
}

// Run fetches and merges every asset in order, then flattens the metrics table
// when requested. On any error the result is nil.
func (c *Collector) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	traceID := logger.GetTraceID(ctx)
	if traceID == "" {
		traceID = logger.NewTraceID()
		ctx = logger.WithTraceID(ctx, traceID)
	}
	log := logger.FromContext(ctx, c.logger)

	stats := newRunStats()
	prices := table.NewPriceHistoryTable()
	metrics := table.NewMetricsTable()

	log.Info("starting collection",
		"assets", len(req.Assets),
		"range", req.Range.String(),
		"flatten", req.Flatten)

	for _, asset := range req.Assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		assetCtx := logger.WithAsset(ctx, asset.String())
		if err := c.collectAsset(assetCtx, asset, req.Range, prices, metrics, stats); err != nil {
			log.Error("collection aborted",
				"asset", asset,
				"assets_completed", stats.AssetsCompleted,
				"error", err)
			return nil, fmt.Errorf("asset %s: %w", asset, err)
		}
	}

	if req.Flatten {
		metrics = metrics.Flatten()
	}

	stats.finish()
	log.Info("collection completed",
		"assets", stats.AssetsCompleted,
		"dates", prices.Len(),
		"metrics", metrics.Len(),
		"duration", stats.Duration)

	return &Result{
		PriceHistory: prices,
		Metrics:      metrics,
		TraceID:      traceID,
		Stats:        *stats,
	}, nil
}

func (c *Collector) collectAsset(
	ctx context.Context,
	asset models.AssetSymbol,
	dates models.DateRange,
	prices *table.PriceHistoryTable,
	metrics *table.MetricsTable,
	stats *RunStats,
) error {
	var points []models.TimeSeriesPoint
	err := logger.TimedOperation(ctx, c.logger, "fetch_price_history", func() error {
		var err error
		points, err = c.fetcher.FetchPriceHistory(ctx, asset, dates)
		return err
	})
	stats.recordRequest(err)
	if err != nil {
		return err
	}

	var record models.MetricRecord
	err = logger.TimedOperation(ctx, c.logger, "fetch_metrics", func() error {
		var err error
		record, err = c.fetcher.FetchMetrics(ctx, asset)
		return err
	})
	stats.recordRequest(err)
	if err != nil {
		return err
	}

	if err := prices.Merge(asset, points); err != nil {
		return err
	}
	if err := metrics.Merge(asset, record); err != nil {
		return err
	}

	stats.recordAsset(len(points), len(record))
	logger.FromContext(ctx, c.logger).Debug("merged asset",
		"points", len(points),
		"metrics", len(record))
	return nil
}
