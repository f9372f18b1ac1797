// Package models provides the domain types shared by the Messari client, the
// table assembler and the collector: asset symbols, date ranges, time-series
// points and metric snapshots.
package models

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/johnayoung/go-messari-collector/internal/errors"
)

// DateLayout is the calendar date format accepted on the command line and sent to the API.
const DateLayout = "2006-01-02"

// MaxSymbolLength bounds the length of an asset symbol or slug.
const MaxSymbolLength = 32

// AssetSymbol identifies one asset, e.g. "BTC".
type AssetSymbol string

// String returns the symbol text.
func (s AssetSymbol) String() string {
	return string(s)
}

// ParseAssetSymbol normalizes raw into an upper-case symbol and validates its characters.
func ParseAssetSymbol(raw string) (AssetSymbol, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))

	if symbol == "" {
		return "", apperrors.NewArgumentError("assets", "asset symbol cannot be empty")
	}
	if len(symbol) > MaxSymbolLength {
		return "", apperrors.NewArgumentError("assets", "asset symbol %q exceeds %d characters", symbol, MaxSymbolLength)
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return "", apperrors.NewArgumentError("assets", "asset symbol %q contains invalid character %q", symbol, r)
		}
	}

	return AssetSymbol(symbol), nil
}

// ParseAssetSymbols parses each argument, splitting comma separated lists, and
// returns the symbols in the order given. Empty lists and duplicates are rejected.
func ParseAssetSymbols(args []string) ([]AssetSymbol, error) {
	var symbols []AssetSymbol
	seen := make(map[AssetSymbol]bool)

	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			if strings.TrimSpace(part) == "" && strings.Contains(arg, ",") {
				continue
			}
			symbol, err := ParseAssetSymbol(part)
			if err != nil {
				return nil, err
			}
			if seen[symbol] {
				return nil, apperrors.NewArgumentError("assets", "duplicate asset %q", symbol.String())
			}
			seen[symbol] = true
			symbols = append(symbols, symbol)
		}
	}

	if len(symbols) == 0 {
		return nil, apperrors.NewArgumentError("assets", "at least one asset is required")
	}

	return symbols, nil
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperrors.NewArgumentError(field, "invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// DateRange is an optional inclusive span of calendar dates. A zero side is omitted.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses optional start and end strings. Empty strings leave that side open.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error

	if strings.TrimSpace(start) != "" {
		if r.Start, err = ParseDate("start", start); err != nil {
			return DateRange{}, err
		}
	}
	if strings.TrimSpace(end) != "" {
		if r.End, err = ParseDate("end", end); err != nil {
			return DateRange{}, err
		}
	}

	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// HasStart reports whether a start date was supplied.
func (r DateRange) HasStart() bool { return !r.Start.IsZero() }

// HasEnd reports whether an end date was supplied.
func (r DateRange) HasEnd() bool { return !r.End.IsZero() }

// Validate checks that start does not fall after end.
func (r DateRange) Validate() error {
	if r.HasStart() && r.HasEnd() && r.Start.After(r.End) {
		return apperrors.NewArgumentError("start",
			"start date %s is after end date %s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return nil
}

// String renders the range for logs, using ".." for an open side.
func (r DateRange) String() string {
	start, end := "..", ".."
	if r.HasStart() {
		start = r.Start.Format(DateLayout)
	}
	if r.HasEnd() {
		end = r.End.Format(DateLayout)
	}
	return start + "/" + end
}

// TimeSeriesPoint is one dated observation for an asset.
type TimeSeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// MetricRecord maps metric names to values for one asset at a single point in time.
type MetricRecord map[string]float64

// Names returns the metric names in lexical order.
func (m MetricRecord) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
