package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/johnayoung/go-messari-collector/internal/models"
	"github.com/johnayoung/go-messari-collector/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTables(t *testing.T) (*table.PriceHistoryTable, *table.MetricsTable) {
	t.Helper()

	prices := table.NewPriceHistoryTable()
	require.NoError(t, prices.Merge("BTC", []models.TimeSeriesPoint{
		{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Value: 7200.123456789},
		{Date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Value: 6985.47},
	}))
	require.NoError(t, prices.Merge("ETH", []models.TimeSeriesPoint{
		{Date: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), Value: 127.41},
	}))

	metrics := table.NewMetricsTable()
	require.NoError(t, metrics.Merge("BTC", models.MetricRecord{"price_usd": 7200.17, "supply": 18150000}))
	require.NoError(t, metrics.Merge("ETH", models.MetricRecord{"price_usd": 127.41}))

	return prices, metrics
}

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"table", "CSV", " json "} {
		_, err := ParseFormat(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestTableFormat(t *testing.T) {
	prices, metrics := sampleTables(t)
	var buf bytes.Buffer
	w := NewWriter(&buf, FormatTable, 2)

	require.NoError(t, w.WritePriceHistory(prices))
	require.NoError(t, w.WriteMetrics(metrics))

	out := buf.String()
	assert.Contains(t, out, "Price history (2 rows)")
	assert.Contains(t, out, "Asset metrics (2 rows)")
	assert.Contains(t, out, "7200.12")
	assert.NotContains(t, out, "7200.123")

	lines := strings.Split(out, "\n")
	var first, supply string
	for _, line := range lines {
		if strings.Contains(line, "2020-01-01") {
			first = line
		}
		if strings.Contains(line, "supply") {
			supply = line
		}
	}
	assert.Equal(t, []string{"2020-01-01", "7200.12", "0"}, strings.Fields(first))
	assert.Equal(t, []string{"supply", "18150000", MissingCell}, strings.Fields(supply))
}

func TestCSVFormat(t *testing.T) {
	prices, metrics := sampleTables(t)

	var buf bytes.Buffer
	w := NewWriter(&buf, FormatCSV, 8)
	require.NoError(t, w.WritePriceHistory(prices))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"date", "BTC", "ETH"},
		{"2020-01-01", "7200.12345679", "0"},
		{"2020-01-02", "6985.47", "127.41"},
	}, records)

	buf.Reset()
	require.NoError(t, w.WriteMetrics(metrics.Flatten()))

	records, err = csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"index", "BTC", "ETH"},
		{"0", "7200.17", "127.41"},
		{"1", "18150000", ""},
	}, records)
}

func TestJSONFormat(t *testing.T) {
	prices, metrics := sampleTables(t)

	var buf bytes.Buffer
	w := NewWriter(&buf, FormatJSON, 8)
	require.NoError(t, w.WritePriceHistory(prices))

	var priceDoc struct {
		PriceHistory struct {
			Assets []string `json:"assets"`
			Rows   []struct {
				Date   string            `json:"date"`
				Values map[string]string `json:"values"`
			} `json:"rows"`
		} `json:"price_history"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &priceDoc))
	assert.Equal(t, []string{"BTC", "ETH"}, priceDoc.PriceHistory.Assets)
	require.Len(t, priceDoc.PriceHistory.Rows, 2)
	assert.Equal(t, "2020-01-01", priceDoc.PriceHistory.Rows[0].Date)
	assert.Equal(t, "0", priceDoc.PriceHistory.Rows[0].Values["ETH"])

	buf.Reset()
	require.NoError(t, w.WriteMetrics(metrics))

	var metricsDoc struct {
		Metrics struct {
			Flat bool `json:"flat"`
			Rows []struct {
				Metric string             `json:"metric"`
				Values map[string]*string `json:"values"`
			} `json:"rows"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &metricsDoc))
	assert.False(t, metricsDoc.Metrics.Flat)
	require.Len(t, metricsDoc.Metrics.Rows, 2)
	assert.Equal(t, "supply", metricsDoc.Metrics.Rows[1].Metric)
	assert.Nil(t, metricsDoc.Metrics.Rows[1].Values["ETH"], "missing metric is null")
	require.NotNil(t, metricsDoc.Metrics.Rows[1].Values["BTC"])
	assert.Equal(t, "18150000", *metricsDoc.Metrics.Rows[1].Values["BTC"])
}
