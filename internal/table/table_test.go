package table

import (
	"testing"
	"time"

	"github.com/johnayoung/go-messari-collector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC)
}

func series(values map[int]float64) []models.TimeSeriesPoint {
	points := make([]models.TimeSeriesPoint, 0, len(values))
	for d, v := range values {
		points = append(points, models.TimeSeriesPoint{Date: day(d), Value: v})
	}
	return points
}

func TestPriceHistoryMerge(t *testing.T) {
	t.Run("zero fill for dates an asset lacks", func(t *testing.T) {
		tbl := NewPriceHistoryTable()
		require.NoError(t, tbl.Merge("BTC", series(map[int]float64{1: 7200, 2: 6985, 3: 7344})))
		require.NoError(t, tbl.Merge("ETH", series(map[int]float64{2: 127.4})))

		assert.Equal(t, []time.Time{day(1), day(2), day(3)}, tbl.Dates())
		assert.Equal(t, []models.AssetSymbol{"BTC", "ETH"}, tbl.Assets())
		assert.Equal(t, []float64{7200, 6985, 7344}, tbl.Column("BTC"))
		assert.Equal(t, []float64{0.0, 127.4, 0.0}, tbl.Column("ETH"))
	})

	t.Run("new dates backfill earlier columns", func(t *testing.T) {
		tbl := NewPriceHistoryTable()
		require.NoError(t, tbl.Merge("ETH", series(map[int]float64{2: 127.4})))
		require.NoError(t, tbl.Merge("BTC", series(map[int]float64{1: 7200, 3: 7344})))

		assert.Equal(t, 3, tbl.Len())
		assert.Equal(t, []float64{0.0, 127.4, 0.0}, tbl.Column("ETH"))
		assert.Equal(t, []float64{7200, 0.0, 7344}, tbl.Column("BTC"))

		v, ok := tbl.Value(day(1), "ETH")
		assert.True(t, ok)
		assert.Equal(t, 0.0, v)

		_, ok = tbl.Value(day(9), "ETH")
		assert.False(t, ok, "date outside index")
		_, ok = tbl.Value(day(1), "SOL")
		assert.False(t, ok, "unknown asset")
	})

	t.Run("index is the sorted union without duplicates", func(t *testing.T) {
		tbl := NewPriceHistoryTable()
		require.NoError(t, tbl.Merge("A", series(map[int]float64{5: 1, 1: 1, 3: 1})))
		require.NoError(t, tbl.Merge("B", series(map[int]float64{3: 2, 4: 2, 1: 2})))
		require.NoError(t, tbl.Merge("C", nil))

		dates := tbl.Dates()
		assert.Equal(t, []time.Time{day(1), day(3), day(4), day(5)}, dates)
		for i := 1; i < len(dates); i++ {
			assert.True(t, dates[i-1].Before(dates[i]))
		}
		assert.Equal(t, []float64{0, 0, 0, 0}, tbl.Column("C"))
	})

	t.Run("intraday timestamps collapse to the calendar day", func(t *testing.T) {
		tbl := NewPriceHistoryTable()
		require.NoError(t, tbl.Merge("BTC", []models.TimeSeriesPoint{
			{Date: day(1).Add(3 * time.Hour), Value: 1},
			{Date: day(1).Add(20 * time.Hour), Value: 2},
		}))

		assert.Equal(t, []time.Time{day(1)}, tbl.Dates())
		assert.Equal(t, []float64{2}, tbl.Column("BTC"), "last value wins")
	})

	t.Run("rejects merging the same asset twice", func(t *testing.T) {
		tbl := NewPriceHistoryTable()
		require.NoError(t, tbl.Merge("BTC", nil))
		require.Error(t, tbl.Merge("BTC", nil))
		assert.Nil(t, tbl.Column("ETH"))
	})
}

func TestMetricsMerge(t *testing.T) {
	tbl := NewMetricsTable()
	require.NoError(t, tbl.Merge("BTC", models.MetricRecord{"price_usd": 7200, "supply": 18e6}))
	require.NoError(t, tbl.Merge("ETH", models.MetricRecord{"price_usd": 127.4, "gas_used": 0}))

	assert.Equal(t, []string{"price_usd", "supply", "gas_used"}, tbl.Metrics())
	assert.Equal(t, []models.AssetSymbol{"BTC", "ETH"}, tbl.Assets())
	assert.Equal(t, 3, tbl.Len())

	cell, ok := tbl.Cell("supply", "ETH")
	require.True(t, ok)
	assert.False(t, cell.Valid, "absent metric is a missing marker")

	cell, ok = tbl.Cell("gas_used", "ETH")
	require.True(t, ok)
	assert.True(t, cell.Valid, "reported zero stays a value")
	assert.Equal(t, 0.0, cell.Float64)

	cell, ok = tbl.Cell("gas_used", "BTC")
	require.True(t, ok)
	assert.False(t, cell.Valid)

	cell, _ = tbl.Cell("price_usd", "BTC")
	assert.Equal(t, 7200.0, cell.Float64)

	_, ok = tbl.Cell("unknown", "BTC")
	assert.False(t, ok)

	require.Error(t, tbl.Merge("ETH", models.MetricRecord{}))
}

func TestMetricsFlatten(t *testing.T) {
	tbl := NewMetricsTable()
	require.NoError(t, tbl.Merge("BTC", models.MetricRecord{"a": 1, "b": 2}))
	require.NoError(t, tbl.Merge("ETH", models.MetricRecord{"b": 3, "c": 4}))

	flat := tbl.Flatten()

	assert.True(t, flat.IsFlat())
	assert.False(t, tbl.IsFlat(), "source table unchanged")
	assert.Equal(t, tbl.Len(), flat.Len())
	assert.Equal(t, tbl.Assets(), flat.Assets())
	assert.Nil(t, flat.Metrics())

	for i := 0; i < tbl.Len(); i++ {
		label, ok := flat.RowLabel(i)
		require.True(t, ok)
		assert.Equal(t, []string{"0", "1", "2"}[i], label)
		for _, asset := range tbl.Assets() {
			assert.Equal(t, tbl.CellAt(i, asset), flat.CellAt(i, asset))
		}
	}

	_, ok := flat.Cell("a", "BTC")
	assert.False(t, ok, "name lookup unavailable after flatten")
	_, ok = flat.RowLabel(3)
	assert.False(t, ok)

	require.Error(t, flat.Merge("SOL", models.MetricRecord{"a": 1}))
}

func TestMergeIsDeterministic(t *testing.T) {
	build := func() ([]float64, []string) {
		prices := NewPriceHistoryTable()
		metrics := NewMetricsTable()
		for _, asset := range []models.AssetSymbol{"BTC", "ETH", "SOL"} {
			require.NoError(t, prices.Merge(asset, series(map[int]float64{1: 1, 2: 2, 3: 3})))
			require.NoError(t, metrics.Merge(asset, models.MetricRecord{"z": 1, "y": 2, "x": 3, string(asset): 4}))
		}
		return prices.Column("ETH"), metrics.Metrics()
	}

	firstPrices, firstMetrics := build()
	for i := 0; i < 5; i++ {
		prices, metrics := build()
		assert.Equal(t, firstPrices, prices)
		assert.Equal(t, firstMetrics, metrics)
	}
	assert.Equal(t, []string{"BTC", "x", "y", "z", "ETH", "SOL"}, firstMetrics)
}
