package messari

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/johnayoung/go-messari-collector/internal/config"
	apperrors "github.com/johnayoung/go-messari-collector/internal/errors"
	"github.com/johnayoung/go-messari-collector/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Messari data API root
	DefaultBaseURL = "https://data.messari.io"

	// API endpoints
	timeSeriesEndpoint = "/api/v1/assets/%s/metrics/price/time-series"
	metricsEndpoint    = "/api/v1/assets/%s/metrics"
	assetsEndpoint     = "/api/v1/assets"

	// APIKeyHeader carries the credential when one is configured
	APIKeyHeader = "x-messari-api-key"

	// MetricSeparator joins nested metric keys
	MetricSeparator = "_"

	component          = "messari"
	userAgent          = "go-messari-collector/1.0"
	defaultTimeout     = 30 * time.Second
	healthCheckTimeout = 5 * time.Second
	maxErrorBodyBytes  = 512
)

// Config holds the settings for a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int // 0 disables pacing
	Interval          string
	Column            string
	MetricFields      string
	RetryPolicy       config.RetryPolicyConfig
	Logger            *slog.Logger
	HTTPClient        *http.Client
}

// ConfigFromAPI converts the application API settings into a client Config.
func ConfigFromAPI(api config.APIConfig, logger *slog.Logger) Config {
	return Config{
		BaseURL:           api.BaseURL,
		APIKey:            api.APIKey,
		Timeout:           api.TimeoutDuration(),
		RequestsPerMinute: api.RateLimit,
		Interval:          api.Interval,
		Column:            api.Column,
		MetricFields:      api.MetricFields,
		RetryPolicy:       api.RetryPolicy,
		Logger:            logger,
	}
}

var (
	_ Fetcher       = (*Client)(nil)
	_ HealthChecker = (*Client)(nil)
)

// Client implements Fetcher and HealthChecker over HTTP.
type Client struct {
	httpClient   *http.Client
	rateLimiter  *rate.Limiter
	baseURL      string
	apiKey       string
	interval     string
	column       string
	metricFields string
	retryPolicy  config.RetryPolicyConfig
	logger       *slog.Logger
}

// NewClient creates a client from cfg, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Interval == "" {
		cfg.Interval = "1d"
	}
	if cfg.Column == "" {
		cfg.Column = "close"
	}
	if cfg.RetryPolicy.MaxAttempts < 1 {
		cfg.RetryPolicy.MaxAttempts = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Client{
		httpClient:   httpClient,
		rateLimiter:  rate.NewLimiter(limit, 1),
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		interval:     cfg.Interval,
		column:       cfg.Column,
		metricFields: cfg.MetricFields,
		retryPolicy:  cfg.RetryPolicy,
		logger:       cfg.Logger.With("component", component),
	}
}

// timeSeriesResponse mirrors the time-series payload. Rows are
// [timestamp_ms, value] pairs; value may be null.
type timeSeriesResponse struct {
	Data *struct {
		Values [][]*float64 `json:"values"`
	} `json:"data"`
}

// FetchPriceHistory implements PriceHistoryFetcher.
func (c *Client) FetchPriceHistory(ctx context.Context, asset models.AssetSymbol, dates models.DateRange) ([]models.TimeSeriesPoint, error) {
	const operation = "fetch_price_history"

	if err := dates.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("interval", c.interval)
	params.Set("columns", c.column)
	if dates.HasStart() {
		params.Set("start", dates.Start.Format(models.DateLayout))
	}
	if dates.HasEnd() {
		params.Set("end", dates.End.Format(models.DateLayout))
	}

	c.logger.Debug("fetching price history",
		"asset", asset,
		"range", dates.String(),
		"interval", c.interval)

	body, err := c.get(ctx, operation, fmt.Sprintf(timeSeriesEndpoint, url.PathEscape(asset.String())), params)
	if err != nil {
		return nil, err
	}

	var payload timeSeriesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewParseError(component, operation,
			fmt.Errorf("asset %s: invalid time-series response: %w", asset, err))
	}
	if payload.Data == nil {
		return nil, apperrors.NewParseError(component, operation,
			fmt.Errorf("asset %s: time-series response has no data", asset))
	}

	points := make([]models.TimeSeriesPoint, 0, len(payload.Data.Values))
	for i, row := range payload.Data.Values {
		if len(row) < 2 || row[0] == nil {
			return nil, apperrors.NewParseError(component, operation,
				fmt.Errorf("asset %s: malformed time-series row %d", asset, i))
		}
		if row[1] == nil {
			continue
		}
		points = append(points, models.TimeSeriesPoint{
			Date:  models.DateOf(time.UnixMilli(int64(*row[0]))),
			Value: *row[1],
		})
	}

	c.logger.Debug("fetched price history", "asset", asset, "points", len(points))
	return points, nil
}

// FetchMetrics implements MetricsFetcher.
func (c *Client) FetchMetrics(ctx context.Context, asset models.AssetSymbol) (models.MetricRecord, error) {
	const operation = "fetch_metrics"

	params := url.Values{}
	if c.metricFields != "" {
		params.Set("fields", c.metricFields)
	}

	c.logger.Debug("fetching metrics", "asset", asset)

	body, err := c.get(ctx, operation, fmt.Sprintf(metricsEndpoint, url.PathEscape(asset.String())), params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewParseError(component, operation,
			fmt.Errorf("asset %s: invalid metrics response: %w", asset, err))
	}

	decoder := json.NewDecoder(bytes.NewReader(payload.Data))
	decoder.UseNumber()

	var data map[string]interface{}
	if len(payload.Data) == 0 || decoder.Decode(&data) != nil || data == nil {
		return nil, apperrors.NewParseError(component, operation,
			fmt.Errorf("asset %s: metrics response data is not an object", asset))
	}

	record := make(models.MetricRecord)
	flattenMetrics(record, "", data)

	c.logger.Debug("fetched metrics", "asset", asset, "metrics", len(record))
	return record, nil
}

// HealthCheck implements HealthChecker using a lightweight listing request.
func (c *Client) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("limit", "1")

	if _, err := c.get(healthCtx, "health_check", assetsEndpoint, params); err != nil {
		return err
	}

	c.logger.Debug("health check passed")
	return nil
}

// flattenMetrics walks a decoded metrics object and stores every numeric leaf
// under its underscore joined path. Nulls, strings, booleans and arrays are dropped.
func flattenMetrics(out models.MetricRecord, prefix string, node map[string]interface{}) {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + MetricSeparator + k
		}

		switch v := node[k].(type) {
		case map[string]interface{}:
			flattenMetrics(out, name, v)
		case json.Number:
			if f, err := v.Float64(); err == nil {
				out[name] = f
			}
		}
	}
}

// get issues one GET under the configured rate limit and retry policy and
// returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, operation, path string, params url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	var body []byte
	err := apperrors.Retry(ctx, c.retryPolicy, c.logger, func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return apperrors.NewRequestError(component, operation, 0, fmt.Errorf("rate limit wait failed: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return apperrors.NewConfigurationError(operation, fmt.Errorf("failed to create request: %w", err))
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if c.apiKey != "" {
			req.Header.Set(APIKeyHeader, c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperrors.NewRequestError(component, operation, 0, fmt.Errorf("request failed: %w", err))
		}
		defer resp.Body.Close()

		responseBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.NewRequestError(component, operation, 0, fmt.Errorf("failed to read response body: %w", err))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return apperrors.NewRequestError(component, operation, resp.StatusCode,
				fmt.Errorf("GET %s: %s", path, describeFailure(resp.StatusCode, responseBody)))
		}

		body = responseBody
		return nil
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

// describeFailure renders the status with the API's error message when the
// body carries one, falling back to a truncated body.
func describeFailure(status int, body []byte) string {
	var envelope struct {
		Status struct {
			ErrorCode    int    `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	}

	text := fmt.Sprintf("status %d %s", status, http.StatusText(status))
	if json.Unmarshal(body, &envelope) == nil && envelope.Status.ErrorMessage != "" {
		return text + ": " + envelope.Status.ErrorMessage
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return text
	}
	if len(trimmed) > maxErrorBodyBytes {
		trimmed = trimmed[:maxErrorBodyBytes] + "..."
	}
	return text + ": " + trimmed
}
