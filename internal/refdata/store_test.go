package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"refadmin/internal/warehouse"
)

// memQueryer interprets the statements the store issues against an
// in-memory record map, enough to exercise CRUD and export paths
// without a warehouse.
type memQueryer struct {
	mu      sync.Mutex
	records map[string]Record
	execErr error
}

func newMemQueryer(seed ...Record) *memQueryer {
	m := &memQueryer{records: make(map[string]Record)}
	for _, rec := range seed {
		m.records[rec.CountryCode] = rec
	}
	return m
}

func (m *memQueryer) sorted() []Record {
	codes := make([]string, 0, len(m.records))
	for code := range m.records {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	out := make([]Record, 0, len(codes))
	for _, code := range codes {
		out = append(out, m.records[code])
	}
	return out
}

func recordToRow(rec Record) warehouse.Row {
	return warehouse.Row{
		"country_code":    rec.CountryCode,
		"country_number":  rec.CountryNumber,
		"country":         rec.Country,
		"currency_name":   rec.CurrencyName,
		"currency_code":   rec.CurrencyCode,
		"currency_number": rec.CurrencyNumber,
	}
}

func (m *memQueryer) Query(_ context.Context, stmt string, args ...any) (warehouse.Rows, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case strings.Contains(stmt, "COUNT(*)") && strings.Contains(stmt, "country_code = ?"):
		count := 0
		if _, ok := m.records[args[0].(string)]; ok {
			count = 1
		}
		return warehouse.Rows{{"count": count}}, nil

	case strings.Contains(stmt, "COUNT(*)"):
		return warehouse.Rows{{"count": len(m.records)}}, nil

	case strings.Contains(stmt, "country_code = ?"):
		rec, ok := m.records[args[0].(string)]
		if !ok {
			return nil, nil
		}
		return warehouse.Rows{recordToRow(rec)}, nil

	case strings.Contains(stmt, "ORDER BY"):
		limit := args[len(args)-2].(int)
		offset := args[len(args)-1].(int)
		all := m.sorted()
		if offset >= len(all) {
			return nil, nil
		}
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		rows := make(warehouse.Rows, 0, end-offset)
		for _, rec := range all[offset:end] {
			rows = append(rows, recordToRow(rec))
		}
		return rows, nil
	}

	return nil, nil
}

func (m *memQueryer) Exec(_ context.Context, stmt string, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.execErr != nil {
		return m.execErr
	}

	switch {
	case strings.HasPrefix(stmt, "INSERT"):
		m.records[args[0].(string)] = Record{
			CountryCode:    args[0].(string),
			CountryNumber:  args[1].(int),
			Country:        args[2].(string),
			CurrencyName:   args[3].(string),
			CurrencyCode:   args[4].(string),
			CurrencyNumber: args[5].(int),
		}
	case strings.HasPrefix(stmt, "UPDATE"):
		m.records[args[5].(string)] = Record{
			CountryCode:    args[5].(string),
			CountryNumber:  args[0].(int),
			Country:        args[1].(string),
			CurrencyName:   args[2].(string),
			CurrencyCode:   args[3].(string),
			CurrencyNumber: args[4].(int),
		}
	case strings.HasPrefix(stmt, "DELETE"):
		delete(m.records, args[0].(string))
	}
	return nil
}

// scriptedQueryer records statements and replays canned responses, for
// asserting the SQL the store builds.
type scriptedQueryer struct {
	mu    sync.Mutex
	calls []scriptedCall
	reply func(stmt string, args []any) (warehouse.Rows, error)
}

type scriptedCall struct {
	stmt string
	args []any
}

func (s *scriptedQueryer) Query(_ context.Context, stmt string, args ...any) (warehouse.Rows, error) {
	s.mu.Lock()
	s.calls = append(s.calls, scriptedCall{stmt: stmt, args: args})
	s.mu.Unlock()
	if s.reply != nil {
		return s.reply(stmt, args)
	}
	return nil, nil
}

func (s *scriptedQueryer) Exec(_ context.Context, stmt string, args ...any) error {
	s.mu.Lock()
	s.calls = append(s.calls, scriptedCall{stmt: stmt, args: args})
	s.mu.Unlock()
	return nil
}

// fakeCache is an in-memory ResultCache recording hits, sets and
// invalidations.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) GetJSON(_ context.Context, key string, dest any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.entries[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false
	}
	f.hits++
	return true
}

func (f *fakeCache) SetJSON(_ context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = data
	f.sets++
}

func (f *fakeCache) Invalidate(_ context.Context, prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.entries {
		if strings.HasPrefix(key, prefix) {
			delete(f.entries, key)
		}
	}
}

func (f *fakeCache) hitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

const testTable = "main.default.country_currency"

func TestStoreCRUDLifecycle(t *testing.T) {
	ctx := context.Background()
	q := newMemQueryer()
	store := NewStore(q, testTable, nil)

	rec := validRecord()
	if err := store.Create(ctx, &rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "BRA")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != rec {
		t.Errorf("Get = %+v, want %+v", got, rec)
	}

	rec.CurrencyName = "Real"
	if err := store.Update(ctx, &rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = store.Get(ctx, "BRA")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.CurrencyName != "Real" {
		t.Errorf("CurrencyName = %q after update", got.CurrencyName)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}

	if err := store.Delete(ctx, "BRA"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "BRA"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestStoreCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	rec := validRecord()
	store := NewStore(newMemQueryer(rec), testTable, nil)

	dup := validRecord()
	if err := store.Create(ctx, &dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create duplicate = %v, want ErrDuplicate", err)
	}
}

func TestStoreUpdateMissing(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newMemQueryer(), testTable, nil)

	rec := validRecord()
	if err := store.Update(ctx, &rec); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "BRA"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete missing = %v, want ErrNotFound", err)
	}
}

func TestStoreListBuildsFilters(t *testing.T) {
	ctx := context.Background()
	q := &scriptedQueryer{reply: func(stmt string, _ []any) (warehouse.Rows, error) {
		if strings.Contains(stmt, "COUNT(*)") {
			return warehouse.Rows{{"count": 0}}, nil
		}
		return nil, nil
	}}
	store := NewStore(q, testTable, nil)

	low, high := 0, 500
	_, err := store.List(ctx, ListOptions{
		Search:           "real",
		SortBy:           "currency_code",
		Descending:       true,
		Page:             3,
		PageSize:         10,
		CountryNumberMin: &low,
		CountryNumberMax: &high,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(q.calls) != 2 {
		t.Fatalf("got %d statements, want count + select", len(q.calls))
	}

	sel := q.calls[1]
	for _, want := range []string{
		"LOWER(country) LIKE LOWER(?)",
		"country_number BETWEEN ? AND ?",
		"ORDER BY currency_code DESC",
		"LIMIT ? OFFSET ?",
	} {
		if !strings.Contains(sel.stmt, want) {
			t.Errorf("statement missing %q:\n%s", want, sel.stmt)
		}
	}

	// 4 search patterns, 2 range bounds, limit, offset.
	if len(sel.args) != 8 {
		t.Fatalf("got %d args, want 8: %v", len(sel.args), sel.args)
	}
	if sel.args[0] != "%real%" {
		t.Errorf("search arg = %v", sel.args[0])
	}
	if sel.args[6] != 10 || sel.args[7] != 20 {
		t.Errorf("limit/offset = %v/%v, want 10/20", sel.args[6], sel.args[7])
	}
}

func TestStoreListRejectsUnknownSortColumn(t *testing.T) {
	store := NewStore(&scriptedQueryer{}, testTable, nil)
	_, err := store.List(context.Background(), ListOptions{SortBy: "country; DROP TABLE x"})
	if !errors.Is(err, ErrBadColumn) {
		t.Errorf("List = %v, want ErrBadColumn", err)
	}
}

func TestListOptionsKeyStableAcrossAllocations(t *testing.T) {
	lowA, highA := 10, 500
	lowB, highB := 10, 500
	a := ListOptions{Search: "peso", SortBy: "country_code", Page: 2, PageSize: 10,
		CountryNumberMin: &lowA, CountryNumberMax: &highA}
	b := ListOptions{Search: "peso", SortBy: "country_code", Page: 2, PageSize: 10,
		CountryNumberMin: &lowB, CountryNumberMax: &highB}

	if a.key() != b.key() {
		t.Errorf("equal options produced different keys:\n%s\n%s", a.key(), b.key())
	}

	otherLow := 20
	c := a
	c.CountryNumberMin = &otherLow
	if a.key() == c.key() {
		t.Errorf("different bounds share a key: %s", a.key())
	}

	zero := 0
	d := ListOptions{Search: "peso", SortBy: "country_code", Page: 2, PageSize: 10,
		CountryNumberMin: &zero, CountryNumberMax: &highA}
	e := ListOptions{Search: "peso", SortBy: "country_code", Page: 2, PageSize: 10,
		CountryNumberMax: &highA}
	if d.key() == e.key() {
		t.Errorf("zero bound and unset bound share a key: %s", d.key())
	}
}

func TestStoreListServedFromCache(t *testing.T) {
	ctx := context.Background()
	q := &scriptedQueryer{reply: func(stmt string, _ []any) (warehouse.Rows, error) {
		if strings.Contains(stmt, "COUNT(*)") {
			return warehouse.Rows{{"count": 1}}, nil
		}
		return warehouse.Rows{recordToRow(validRecord())}, nil
	}}
	fc := newFakeCache()
	store := NewStore(q, testTable, fc)

	// Fresh bound allocations per request, as an HTTP handler produces.
	low1, high1 := 0, 999
	first, err := store.List(ctx, ListOptions{Search: "real", CountryNumberMin: &low1, CountryNumberMax: &high1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	queriesAfterFirst := len(q.calls)
	low2, high2 := 0, 999
	second, err := store.List(ctx, ListOptions{Search: "real", CountryNumberMin: &low2, CountryNumberMax: &high2})
	if err != nil {
		t.Fatalf("cached List: %v", err)
	}

	if len(q.calls) != queriesAfterFirst {
		t.Errorf("second List reached the warehouse: %d statements, want %d", len(q.calls), queriesAfterFirst)
	}
	if fc.hitCount() != 1 {
		t.Errorf("cache hits = %d, want 1", fc.hitCount())
	}
	if second.Total != first.Total || len(second.Records) != len(first.Records) {
		t.Errorf("cached result = %+v, want %+v", second, first)
	}
}

func TestStoreMutationInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	fc := newFakeCache()
	store := NewStore(newMemQueryer(validRecord()), testTable, fc)

	if _, err := store.Get(ctx, "BRA"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(fc.entries) == 0 {
		t.Fatal("Get did not populate the cache")
	}

	updated := validRecord()
	updated.CurrencyName = "Real"
	if err := store.Update(ctx, &updated); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(fc.entries) != 0 {
		t.Errorf("cache still holds %d entries after mutation", len(fc.entries))
	}

	got, err := store.Get(ctx, "BRA")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.CurrencyName != "Real" {
		t.Errorf("CurrencyName = %q, stale cached read", got.CurrencyName)
	}
}

func TestStoreListPaginates(t *testing.T) {
	ctx := context.Background()
	seed := []Record{
		{CountryCode: "ARG", CountryNumber: 32, Country: "Argentina", CurrencyName: "Argentine Peso", CurrencyCode: "ARS", CurrencyNumber: 32},
		{CountryCode: "BRA", CountryNumber: 76, Country: "Brazil", CurrencyName: "Brazilian Real", CurrencyCode: "BRL", CurrencyNumber: 986},
		{CountryCode: "CHL", CountryNumber: 152, Country: "Chile", CurrencyName: "Chilean Peso", CurrencyCode: "CLP", CurrencyNumber: 152},
	}
	store := NewStore(newMemQueryer(seed...), testTable, nil)

	page, err := store.List(ctx, ListOptions{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("Total = %d, want 3", page.Total)
	}
	if len(page.Records) != 1 || page.Records[0].CountryCode != "CHL" {
		t.Errorf("page 2 records = %+v", page.Records)
	}
}
