package refdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// requiredHeaders must all be present in an uploaded CSV. The numeric
// columns are optional and default to zero.
var requiredHeaders = []string{"country_code", "country", "currency_code", "currency_name"}

// RowError describes why one CSV row was rejected. Row is the 1-based
// line number in the file, counting the header line.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// UploadResult summarizes a batch import.
type UploadResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors,omitempty"`
}

// Batch performs CSV import and export against the store.
type Batch struct {
	store *Store

	// Workers bounds concurrent upserts. Defaults to 4, which stays
	// under the default session pool size and leaves headroom for
	// interactive requests.
	Workers int
}

// NewBatch builds a batch importer over the store.
func NewBatch(store *Store) *Batch {
	return &Batch{store: store, Workers: 4}
}

type parsedRow struct {
	line   int
	record Record
}

// ImportCSV reads records from r and upserts them. Rows failing
// validation are reported in the result and skipped; a warehouse error
// on any row aborts the remaining upserts.
func (b *Batch) ImportCSV(ctx context.Context, r io.Reader) (*UploadResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range requiredHeaders {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("CSV is missing required column %q", required)
		}
	}

	result := &UploadResult{}
	var rows []parsedRow

	for line := 2; ; line++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RowError{Row: line, Message: err.Error()})
			continue
		}

		rec, problems := parseRow(fields, index)
		if len(problems) > 0 {
			result.Failed++
			result.Errors = append(result.Errors, RowError{
				Row:     line,
				Message: strings.Join(problems, "; "),
			})
			continue
		}
		rows = append(rows, parsedRow{line: line, record: rec})
	}

	if err := b.upsertAll(ctx, rows, result); err != nil {
		return result, err
	}

	log.Printf("[refdata] batch import done: %d created, %d updated, %d failed",
		result.Created, result.Updated, result.Failed)
	return result, nil
}

// upsertAll runs the validated rows through the store with bounded
// concurrency.
func (b *Batch) upsertAll(ctx context.Context, rows []parsedRow, result *UploadResult) error {
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, row := range rows {
		g.Go(func() error {
			created, err := b.upsert(ctx, &row.record)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, RowError{Row: row.line, Message: err.Error()})
				return fmt.Errorf("row %d: %w", row.line, err)
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
			return nil
		})
	}

	return g.Wait()
}

// upsert creates or updates one record and reports whether it was new.
func (b *Batch) upsert(ctx context.Context, rec *Record) (bool, error) {
	exists, err := b.store.Exists(ctx, rec.CountryCode)
	if err != nil {
		return false, err
	}
	if exists {
		return false, b.store.Update(ctx, rec)
	}
	err = b.store.Create(ctx, rec)
	if errors.Is(err, ErrDuplicate) {
		// Another row in the same batch won the insert.
		return false, b.store.Update(ctx, rec)
	}
	return err == nil, err
}

// parseRow maps one CSV line onto a Record and validates it.
func parseRow(fields []string, index map[string]int) (Record, []string) {
	get := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}
	getNum := func(name string) (int, error) {
		raw := get(name)
		if raw == "" {
			return 0, nil
		}
		return strconv.Atoi(raw)
	}

	rec := Record{
		CountryCode:  strings.ToUpper(get("country_code")),
		Country:      get("country"),
		CurrencyCode: strings.ToUpper(get("currency_code")),
		CurrencyName: get("currency_name"),
	}

	var problems []string
	n, err := getNum("country_number")
	if err != nil {
		problems = append(problems, "country_number must be an integer")
	}
	rec.CountryNumber = n

	n, err = getNum("currency_number")
	if err != nil {
		problems = append(problems, "currency_number must be an integer")
	}
	rec.CurrencyNumber = n

	problems = append(problems, rec.Validate()...)
	return rec, problems
}

// ExportCSV writes every record to w in canonical column order, sorted
// by country code.
func (b *Batch) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	opts := ListOptions{SortBy: "country_code", PageSize: 200}
	writer := csv.NewWriter(w)

	if err := writer.Write(Columns); err != nil {
		return 0, fmt.Errorf("writing CSV header: %w", err)
	}

	written := 0
	for page := 1; ; page++ {
		opts.Page = page
		result, err := b.store.List(ctx, opts)
		if err != nil {
			return written, err
		}
		for _, rec := range result.Records {
			row := []string{
				rec.CountryCode,
				strconv.Itoa(rec.CountryNumber),
				rec.Country,
				rec.CurrencyName,
				rec.CurrencyCode,
				strconv.Itoa(rec.CurrencyNumber),
			}
			if err := writer.Write(row); err != nil {
				return written, fmt.Errorf("writing CSV row: %w", err)
			}
			written++
		}
		if len(result.Records) < opts.PageSize {
			break
		}
	}

	writer.Flush()
	return written, writer.Error()
}
