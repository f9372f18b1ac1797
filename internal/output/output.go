// Package output renders the collector's tables as aligned text, CSV or JSON.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/guregu/null/v5"
	"github.com/johnayoung/go-messari-collector/internal/models"
	"github.com/johnayoung/go-messari-collector/internal/table"
	"github.com/shopspring/decimal"
)

// Format selects the rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

// MissingCell is printed for absent metric cells in the table view.
const MissingCell = "-"

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q, expected table, csv or json", s)
	}
}

// Writer renders tables to an io.Writer.
type Writer struct {
	out       io.Writer
	format    Format
	precision int32
}

// NewWriter creates a writer. Numeric cells are rounded to precision decimal places.
func NewWriter(out io.Writer, format Format, precision int) *Writer {
	return &Writer{out: out, format: format, precision: int32(precision)}
}

type grid struct {
	title  string
	corner string
	header []string
	rows   [][]string
}

// WritePriceHistory renders the date-indexed price table.
func (w *Writer) WritePriceHistory(t *table.PriceHistoryTable) error {
	assets := t.Assets()
	dates := t.Dates()
	columns := make([][]float64, len(assets))
	for j, asset := range assets {
		columns[j] = t.Column(asset)
	}

	if w.format == FormatJSON {
		doc := priceHistoryDocument{
			Assets: symbols(assets),
			Rows:   make([]priceHistoryRow, len(dates)),
		}
		for i, d := range dates {
			row := priceHistoryRow{Date: d.Format(models.DateLayout), Values: make(map[string]decimal.Decimal, len(assets))}
			for j, asset := range assets {
				row.Values[asset.String()] = w.round(columns[j][i])
			}
			doc.Rows[i] = row
		}
		return w.encodeJSON(map[string]interface{}{"price_history": doc})
	}

	g := grid{title: "Price history", corner: "date", header: symbols(assets)}
	for i, d := range dates {
		row := make([]string, 0, len(assets)+1)
		row = append(row, d.Format(models.DateLayout))
		for j := range assets {
			row = append(row, w.round(columns[j][i]).String())
		}
		g.rows = append(g.rows, row)
	}
	return w.writeGrid(g)
}

// WriteMetrics renders the metrics table. A flattened table is labelled by position.
func (w *Writer) WriteMetrics(t *table.MetricsTable) error {
	assets := t.Assets()

	if w.format == FormatJSON {
		doc := metricsDocument{
			Assets: symbols(assets),
			Flat:   t.IsFlat(),
			Rows:   make([]metricsRow, t.Len()),
		}
		for i := 0; i < t.Len(); i++ {
			row := metricsRow{Values: make(map[string]*decimal.Decimal, len(assets))}
			if !t.IsFlat() {
				row.Metric, _ = t.RowLabel(i)
			}
			for _, asset := range assets {
				cell := t.CellAt(i, asset)
				if cell.Valid {
					d := w.round(cell.Float64)
					row.Values[asset.String()] = &d
				} else {
					row.Values[asset.String()] = nil
				}
			}
			doc.Rows[i] = row
		}
		return w.encodeJSON(map[string]interface{}{"metrics": doc})
	}

	corner := "metric"
	if t.IsFlat() {
		corner = "index"
	}
	g := grid{title: "Asset metrics", corner: corner, header: symbols(assets)}
	for i := 0; i < t.Len(); i++ {
		label, _ := t.RowLabel(i)
		row := make([]string, 0, len(assets)+1)
		row = append(row, label)
		for _, asset := range assets {
			row = append(row, w.metricCell(t.CellAt(i, asset)))
		}
		g.rows = append(g.rows, row)
	}
	return w.writeGrid(g)
}

func (w *Writer) metricCell(cell null.Float) string {
	if !cell.Valid {
		if w.format == FormatCSV {
			return ""
		}
		return MissingCell
	}
	return w.round(cell.Float64).String()
}

func (w *Writer) round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(w.precision)
}

func (w *Writer) writeGrid(g grid) error {
	header := append([]string{g.corner}, g.header...)

	if w.format == FormatCSV {
		cw := csv.NewWriter(w.out)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
		if err := cw.WriteAll(g.rows); err != nil {
			return fmt.Errorf("failed to write csv rows: %w", err)
		}
		return nil
	}

	if _, err := fmt.Fprintf(w.out, "%s (%d rows)\n", g.title, len(g.rows)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for _, row := range g.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	_, err := fmt.Fprintln(w.out)
	return err
}

func (w *Writer) encodeJSON(v interface{}) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

type priceHistoryDocument struct {
	Assets []string          `json:"assets"`
	Rows   []priceHistoryRow `json:"rows"`
}

type priceHistoryRow struct {
	Date   string                     `json:"date"`
	Values map[string]decimal.Decimal `json:"values"`
}

type metricsDocument struct {
	Assets []string     `json:"assets"`
	Flat   bool         `json:"flat"`
	Rows   []metricsRow `json:"rows"`
}

type metricsRow struct {
	Metric string                      `json:"metric,omitempty"`
	Values map[string]*decimal.Decimal `json:"values"`
}

func symbols(assets []models.AssetSymbol) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.String()
	}
	return out
}
