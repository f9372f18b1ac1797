// Package table assembles per-asset results into the two combined tables the
// collector returns: a date-indexed price history and a metric-indexed snapshot.
//
// Both tables grow one asset column at a time through an outer join on their
// row index. Absent price cells read as 0.0. Absent metric cells read as an
// invalid null.Float so "not reported" stays distinguishable from zero.
package table

import (
	"sort"
	"strconv"
	"time"

	"github.com/guregu/null/v5"
	apperrors "github.com/johnayoung/go-messari-collector/internal/errors"
	"github.com/johnayoung/go-messari-collector/internal/models"
)

// PriceFill is the value of a price cell for which the asset has no observation.
const PriceFill = 0.0

// PriceHistoryTable is indexed by date ascending with one column per asset.
type PriceHistoryTable struct {
	dates  []time.Time
	index  map[int64]struct{}
	assets []models.AssetSymbol
	cells  map[models.AssetSymbol]map[int64]float64
}

// NewPriceHistoryTable returns an empty table.
func NewPriceHistoryTable() *PriceHistoryTable {
	return &PriceHistoryTable{
		index: make(map[int64]struct{}),
		cells: make(map[models.AssetSymbol]map[int64]float64),
	}
}

// Merge outer-joins the asset's series into the table. Dates are truncated to
// their UTC calendar day; when a series repeats a date the later point wins.
func (t *PriceHistoryTable) Merge(asset models.AssetSymbol, points []models.TimeSeriesPoint) error {
	if _, exists := t.cells[asset]; exists {
		return apperrors.NewArgumentError("assets", "asset %q already merged into price history", asset.String())
	}

	column := make(map[int64]float64, len(points))
	added := false
	for _, p := range points {
		key := models.DateOf(p.Date).Unix()
		column[key] = p.Value

		if _, ok := t.index[key]; !ok {
			t.index[key] = struct{}{}
			t.dates = append(t.dates, time.Unix(key, 0).UTC())
			added = true
		}
	}

	if added {
		sort.Slice(t.dates, func(i, j int) bool { return t.dates[i].Before(t.dates[j]) })
	}

	t.assets = append(t.assets, asset)
	t.cells[asset] = column
	return nil
}

// Dates returns the row index in ascending order.
func (t *PriceHistoryTable) Dates() []time.Time {
	out := make([]time.Time, len(t.dates))
	copy(out, t.dates)
	return out
}

// Assets returns the columns in merge order.
func (t *PriceHistoryTable) Assets() []models.AssetSymbol {
	out := make([]models.AssetSymbol, len(t.assets))
	copy(out, t.assets)
	return out
}

// Len returns the number of rows.
func (t *PriceHistoryTable) Len() int {
	return len(t.dates)
}

// Column returns the asset's values aligned with Dates, or nil for an unknown asset.
func (t *PriceHistoryTable) Column(asset models.AssetSymbol) []float64 {
	cells, ok := t.cells[asset]
	if !ok {
		return nil
	}

	out := make([]float64, len(t.dates))
	for i, d := range t.dates {
		if v, ok := cells[d.Unix()]; ok {
			out[i] = v
		} else {
			out[i] = PriceFill
		}
	}
	return out
}

// Value returns the cell at date for asset. ok is false when the date is not a
// row or the asset is not a column.
func (t *PriceHistoryTable) Value(date time.Time, asset models.AssetSymbol) (float64, bool) {
	cells, ok := t.cells[asset]
	if !ok {
		return 0, false
	}
	key := models.DateOf(date).Unix()
	if _, ok := t.index[key]; !ok {
		return 0, false
	}
	if v, ok := cells[key]; ok {
		return v, true
	}
	return PriceFill, true
}

// MetricsTable is indexed by metric name with one column per asset. After
// Flatten the index is positional and name lookups fail.
type MetricsTable struct {
	labels    []string
	positions map[string]int
	assets    []models.AssetSymbol
	cells     map[models.AssetSymbol]map[int]float64
	flat      bool
}

// NewMetricsTable returns an empty table.
func NewMetricsTable() *MetricsTable {
	return &MetricsTable{
		positions: make(map[string]int),
		cells:     make(map[models.AssetSymbol]map[int]float64),
	}
}

// Merge outer-joins the asset's record into the table. Metric names not yet in
// the index are appended in lexical order.
func (t *MetricsTable) Merge(asset models.AssetSymbol, record models.MetricRecord) error {
	if t.flat {
		return apperrors.NewArgumentError("metrics", "cannot merge into a flattened metrics table")
	}
	if _, exists := t.cells[asset]; exists {
		return apperrors.NewArgumentError("assets", "asset %q already merged into metrics", asset.String())
	}

	column := make(map[int]float64, len(record))
	for _, name := range record.Names() {
		pos, ok := t.positions[name]
		if !ok {
			pos = len(t.labels)
			t.positions[name] = pos
			t.labels = append(t.labels, name)
		}
		column[pos] = record[name]
	}

	t.assets = append(t.assets, asset)
	t.cells[asset] = column
	return nil
}

// Flatten returns a copy whose row index is positional. Values and columns are unchanged.
func (t *MetricsTable) Flatten() *MetricsTable {
	out := &MetricsTable{
		labels: make([]string, len(t.labels)),
		assets: make([]models.AssetSymbol, len(t.assets)),
		cells:  make(map[models.AssetSymbol]map[int]float64, len(t.cells)),
		flat:   true,
	}
	copy(out.labels, t.labels)
	copy(out.assets, t.assets)

	for asset, column := range t.cells {
		c := make(map[int]float64, len(column))
		for pos, v := range column {
			c[pos] = v
		}
		out.cells[asset] = c
	}
	return out
}

// IsFlat reports whether the table has a positional index.
func (t *MetricsTable) IsFlat() bool {
	return t.flat
}

// Len returns the number of rows.
func (t *MetricsTable) Len() int {
	return len(t.labels)
}

// Assets returns the columns in merge order.
func (t *MetricsTable) Assets() []models.AssetSymbol {
	out := make([]models.AssetSymbol, len(t.assets))
	copy(out, t.assets)
	return out
}

// Metrics returns the metric names in row order, or nil once flattened.
func (t *MetricsTable) Metrics() []string {
	if t.flat {
		return nil
	}
	out := make([]string, len(t.labels))
	copy(out, t.labels)
	return out
}

// RowLabel returns the name of row i, or its decimal position once flattened.
func (t *MetricsTable) RowLabel(i int) (string, bool) {
	if i < 0 || i >= len(t.labels) {
		return "", false
	}
	if t.flat {
		return strconv.Itoa(i), true
	}
	return t.labels[i], true
}

// Cell looks up a value by metric name. ok is false for an unknown metric and
// always false for a flattened table.
func (t *MetricsTable) Cell(metric string, asset models.AssetSymbol) (null.Float, bool) {
	if t.flat {
		return null.Float{}, false
	}
	pos, ok := t.positions[metric]
	if !ok {
		return null.Float{}, false
	}
	return t.CellAt(pos, asset), true
}

// CellAt returns the value at row i for asset. The result is invalid when the
// asset did not report that metric or the coordinates are out of range.
func (t *MetricsTable) CellAt(i int, asset models.AssetSymbol) null.Float {
	column, ok := t.cells[asset]
	if !ok {
		return null.Float{}
	}
	if v, ok := column[i]; ok {
		return null.FloatFrom(v)
	}
	return null.Float{}
}
