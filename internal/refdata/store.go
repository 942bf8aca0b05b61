package refdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"refadmin/internal/warehouse"
)

var (
	// ErrNotFound is returned for operations on a country code that does
	// not exist in the reference table.
	ErrNotFound = errors.New("refdata: record not found")

	// ErrDuplicate is returned when creating a record whose country code
	// already exists.
	ErrDuplicate = errors.New("refdata: record already exists")

	// ErrBadColumn is returned for sort or analytics columns outside the
	// allow-list. Identifiers cannot be bound as parameters, so anything
	// not on the list is rejected outright.
	ErrBadColumn = errors.New("refdata: column not allowed")
)

// Queryer executes statements against the warehouse. *warehouse.Client
// satisfies it; tests substitute fakes.
type Queryer interface {
	Query(ctx context.Context, stmt string, args ...any) (warehouse.Rows, error)
	Exec(ctx context.Context, stmt string, args ...any) error
}

// ResultCache caches read results as JSON. *cache.Cache satisfies it;
// tests substitute in-memory fakes. A nil ResultCache disables caching.
type ResultCache interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, value any)
	Invalidate(ctx context.Context, prefix string)
}

// sortColumns is the allow-list for ORDER BY.
var sortColumns = map[string]bool{
	"country_code":    true,
	"country_number":  true,
	"country":         true,
	"currency_name":   true,
	"currency_code":   true,
	"currency_number": true,
}

const cachePrefix = "refadmin:records:"

// Store performs CRUD operations on the reference table.
type Store struct {
	q     Queryer
	table string
	cache ResultCache
}

// NewStore builds a store over the given Queryer and fully qualified table
// name. c may be nil to disable read caching.
func NewStore(q Queryer, table string, c ResultCache) *Store {
	return &Store{q: q, table: table, cache: c}
}

// ListOptions controls filtering, sorting and pagination of List.
type ListOptions struct {
	// Search matches case-insensitively against country, country_code,
	// currency_name and currency_code.
	Search string

	SortBy     string
	Descending bool

	Page     int
	PageSize int

	CountryNumberMin  *int
	CountryNumberMax  *int
	CurrencyNumberMin *int
	CurrencyNumberMax *int
}

func (o *ListOptions) normalize() error {
	if o.SortBy == "" {
		o.SortBy = "country_code"
	}
	if !sortColumns[o.SortBy] {
		return fmt.Errorf("%w: %q", ErrBadColumn, o.SortBy)
	}
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = 20
	}
	if o.PageSize > 200 {
		o.PageSize = 200
	}
	return nil
}

// key returns a stable cache key for this option set. Pointer filters are
// formatted by value ("-" when unset) so two equal requests share a key.
func (o *ListOptions) key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%slist:%s:%s:%t:%d:%d", cachePrefix, o.Search, o.SortBy, o.Descending, o.Page, o.PageSize)
	for _, bound := range []*int{o.CountryNumberMin, o.CountryNumberMax, o.CurrencyNumberMin, o.CurrencyNumberMax} {
		if bound == nil {
			b.WriteString(":-")
		} else {
			fmt.Fprintf(&b, ":%d", *bound)
		}
	}
	return b.String()
}

// where builds the WHERE clause and its bind parameters.
func (o *ListOptions) where() (string, []any) {
	var clauses []string
	var args []any

	if o.Search != "" {
		pattern := "%" + o.Search + "%"
		clauses = append(clauses,
			"(LOWER(country) LIKE LOWER(?) OR LOWER(country_code) LIKE LOWER(?)"+
				" OR LOWER(currency_name) LIKE LOWER(?) OR LOWER(currency_code) LIKE LOWER(?))")
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if o.CountryNumberMin != nil && o.CountryNumberMax != nil {
		clauses = append(clauses, "country_number BETWEEN ? AND ?")
		args = append(args, *o.CountryNumberMin, *o.CountryNumberMax)
	}
	if o.CurrencyNumberMin != nil && o.CurrencyNumberMax != nil {
		clauses = append(clauses, "currency_number BETWEEN ? AND ?")
		args = append(args, *o.CurrencyNumberMin, *o.CurrencyNumberMax)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListResult is one page of records plus the total match count.
type ListResult struct {
	Records  []Record `json:"records"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// List returns one page of records matching the options.
func (s *Store) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	key := opts.key()
	var cached ListResult
	if s.cache != nil && s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	where, args := opts.where()

	countRows, err := s.q.Query(ctx, "SELECT COUNT(*) AS count FROM "+s.table+where, args...)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	total := 0
	if len(countRows) > 0 {
		total = intVal(countRows[0]["count"])
	}

	dir := "ASC"
	if opts.Descending {
		dir = "DESC"
	}
	stmt := "SELECT " + strings.Join(Columns, ", ") + " FROM " + s.table + where +
		" ORDER BY " + opts.SortBy + " " + dir + " LIMIT ? OFFSET ?"
	args = append(args, opts.PageSize, (opts.Page-1)*opts.PageSize)

	rows, err := s.q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	result := &ListResult{
		Records:  make([]Record, 0, len(rows)),
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.PageSize,
	}
	for _, row := range rows {
		result.Records = append(result.Records, recordFromRow(row))
	}

	if s.cache != nil {
		s.cache.SetJSON(ctx, key, result)
	}
	return result, nil
}

// Get returns the record for a country code.
func (s *Store) Get(ctx context.Context, code string) (*Record, error) {
	key := cachePrefix + "get:" + code
	var cached Record
	if s.cache != nil && s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.q.Query(ctx,
		"SELECT "+strings.Join(Columns, ", ")+" FROM "+s.table+" WHERE country_code = ?", code)
	if err != nil {
		return nil, fmt.Errorf("fetching record %s: %w", code, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	rec := recordFromRow(rows[0])
	if s.cache != nil {
		s.cache.SetJSON(ctx, key, &rec)
	}
	return &rec, nil
}

// Exists reports whether a record with the country code is present.
func (s *Store) Exists(ctx context.Context, code string) (bool, error) {
	rows, err := s.q.Query(ctx,
		"SELECT COUNT(*) AS count FROM "+s.table+" WHERE country_code = ?", code)
	if err != nil {
		return false, fmt.Errorf("checking record %s: %w", code, err)
	}
	return len(rows) > 0 && intVal(rows[0]["count"]) > 0, nil
}

// Create inserts a new record. The country code must not already exist.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	exists, err := s.Exists(ctx, rec.CountryCode)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.CountryCode)
	}

	err = s.q.Exec(ctx,
		"INSERT INTO "+s.table+" ("+strings.Join(Columns, ", ")+") VALUES (?, ?, ?, ?, ?, ?)",
		rec.CountryCode, rec.CountryNumber, rec.Country,
		rec.CurrencyName, rec.CurrencyCode, rec.CurrencyNumber)
	if err != nil {
		return fmt.Errorf("creating record %s: %w", rec.CountryCode, err)
	}

	log.Printf("[refdata] record created: %s", rec.CountryCode)
	s.invalidate(ctx)
	return nil
}

// Update rewrites an existing record identified by its country code.
func (s *Store) Update(ctx context.Context, rec *Record) error {
	exists, err := s.Exists(ctx, rec.CountryCode)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.CountryCode)
	}

	err = s.q.Exec(ctx,
		"UPDATE "+s.table+" SET country_number = ?, country = ?, currency_name = ?,"+
			" currency_code = ?, currency_number = ? WHERE country_code = ?",
		rec.CountryNumber, rec.Country, rec.CurrencyName,
		rec.CurrencyCode, rec.CurrencyNumber, rec.CountryCode)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", rec.CountryCode, err)
	}

	log.Printf("[refdata] record updated: %s", rec.CountryCode)
	s.invalidate(ctx)
	return nil
}

// Delete removes the record for a country code.
func (s *Store) Delete(ctx context.Context, code string) error {
	exists, err := s.Exists(ctx, code)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, code)
	}

	if err := s.q.Exec(ctx, "DELETE FROM "+s.table+" WHERE country_code = ?", code); err != nil {
		return fmt.Errorf("deleting record %s: %w", code, err)
	}

	log.Printf("[refdata] record deleted: %s", code)
	s.invalidate(ctx)
	return nil
}

// Count returns the total number of records in the table.
func (s *Store) Count(ctx context.Context) (int, error) {
	rows, err := s.q.Query(ctx, "SELECT COUNT(*) AS count FROM "+s.table)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return intVal(rows[0]["count"]), nil
}

// invalidate drops every cached read after a mutation.
func (s *Store) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, cachePrefix)
	}
}
