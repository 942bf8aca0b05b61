package refdata

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// numericColumns is the allow-list for Describe.
var numericColumns = map[string]bool{
	"country_number":  true,
	"currency_number": true,
}

// groupColumns is the allow-list for Distribution.
var groupColumns = map[string]bool{
	"currency_code": true,
	"currency_name": true,
	"country_code":  true,
}

// Summary is the headline counts of the reference table.
type Summary struct {
	TotalRecords         int     `json:"total_records"`
	UniqueCountries      int     `json:"unique_countries"`
	UniqueCurrencies     int     `json:"unique_currencies"`
	CountriesPerCurrency float64 `json:"countries_per_currency"`
}

// DistributionEntry is one bucket of a grouped count.
type DistributionEntry struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ColumnStats holds descriptive statistics for a numeric column.
type ColumnStats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Analytics computes summaries over the reference table. Counting and
// grouping are pushed into the warehouse; descriptive statistics are
// computed here over a single fetched column.
type Analytics struct {
	q     Queryer
	table string
	cache ResultCache
}

// NewAnalytics builds analytics over the same Queryer as the store.
func NewAnalytics(q Queryer, table string, c ResultCache) *Analytics {
	return &Analytics{q: q, table: table, cache: c}
}

// Summarize returns total and distinct counts in a single statement.
func (a *Analytics) Summarize(ctx context.Context) (*Summary, error) {
	key := cachePrefix + "analytics:summary"
	var cached Summary
	if a.cache != nil && a.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := a.q.Query(ctx,
		"SELECT COUNT(*) AS total, COUNT(DISTINCT country_code) AS countries,"+
			" COUNT(DISTINCT currency_code) AS currencies FROM "+a.table)
	if err != nil {
		return nil, fmt.Errorf("summarizing table: %w", err)
	}
	if len(rows) == 0 {
		return &Summary{}, nil
	}

	s := &Summary{
		TotalRecords:     intVal(rows[0]["total"]),
		UniqueCountries:  intVal(rows[0]["countries"]),
		UniqueCurrencies: intVal(rows[0]["currencies"]),
	}
	if s.UniqueCurrencies > 0 {
		s.CountriesPerCurrency = float64(s.UniqueCountries) / float64(s.UniqueCurrencies)
	}
	if a.cache != nil {
		a.cache.SetJSON(ctx, key, s)
	}
	return s, nil
}

// Distribution returns per-value counts for the column, largest first.
func (a *Analytics) Distribution(ctx context.Context, column string) ([]DistributionEntry, error) {
	if !groupColumns[column] {
		return nil, fmt.Errorf("%w: %q", ErrBadColumn, column)
	}

	key := cachePrefix + "analytics:dist:" + column
	var cached []DistributionEntry
	if a.cache != nil && a.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	rows, err := a.q.Query(ctx,
		"SELECT "+column+" AS value, COUNT(*) AS count FROM "+a.table+
			" GROUP BY "+column+" ORDER BY count DESC, value ASC")
	if err != nil {
		return nil, fmt.Errorf("distribution of %s: %w", column, err)
	}

	entries := make([]DistributionEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, DistributionEntry{
			Value: stringVal(row["value"]),
			Count: intVal(row["count"]),
		})
	}
	if a.cache != nil {
		a.cache.SetJSON(ctx, key, entries)
	}
	return entries, nil
}

// Describe computes count, mean, median, standard deviation, min and max
// for a numeric column.
func (a *Analytics) Describe(ctx context.Context, column string) (*ColumnStats, error) {
	if !numericColumns[column] {
		return nil, fmt.Errorf("%w: %q", ErrBadColumn, column)
	}

	key := cachePrefix + "analytics:describe:" + column
	var cached ColumnStats
	if a.cache != nil && a.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := a.q.Query(ctx, "SELECT "+column+" FROM "+a.table)
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", column, err)
	}

	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := floatVal(row[column]); ok {
			values = append(values, v)
		}
	}

	stats := describe(column, values)
	if a.cache != nil {
		a.cache.SetJSON(ctx, key, stats)
	}
	return stats, nil
}

func describe(column string, values []float64) *ColumnStats {
	stats := &ColumnStats{Column: column, Count: len(values)}
	if len(values) == 0 {
		return stats
	}

	sort.Float64s(values)
	stats.Min = values[0]
	stats.Max = values[len(values)-1]

	var sum float64
	for _, v := range values {
		sum += v
	}
	stats.Mean = sum / float64(len(values))

	mid := len(values) / 2
	if len(values)%2 == 0 {
		stats.Median = (values[mid-1] + values[mid]) / 2
	} else {
		stats.Median = values[mid]
	}

	// Sample standard deviation, matching what describe() reports in
	// typical dataframe tooling. Zero for a single value.
	if len(values) > 1 {
		var sq float64
		for _, v := range values {
			d := v - stats.Mean
			sq += d * d
		}
		stats.StdDev = math.Sqrt(sq / float64(len(values)-1))
	}

	return stats
}
