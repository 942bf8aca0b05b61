// Package refdata implements operations on the country/currency reference
// table: the record model with its validation rules, CRUD with filtering,
// sorting and pagination, CSV batch import/export, and descriptive
// analytics. All warehouse access goes through the injected Queryer.
package refdata

import (
	"fmt"
	"regexp"
	"strconv"

	"refadmin/internal/warehouse"
)

// Columns is the canonical column order of the reference table.
var Columns = []string{
	"country_code",
	"country_number",
	"country",
	"currency_name",
	"currency_code",
	"currency_number",
}

// Record is one row of the country/currency reference table.
// country_code is the primary key.
type Record struct {
	CountryCode    string `json:"country_code"`
	CountryNumber  int    `json:"country_number"`
	Country        string `json:"country"`
	CurrencyName   string `json:"currency_name"`
	CurrencyCode   string `json:"currency_code"`
	CurrencyNumber int    `json:"currency_number"`
}

var codePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Validate returns every rule violation, or nil when the record is valid.
// Codes are ISO-style 3-letter upper-case; numeric codes fit 0..999.
func (r *Record) Validate() []string {
	var problems []string

	if !codePattern.MatchString(r.CountryCode) {
		problems = append(problems, "country_code must be exactly 3 uppercase letters")
	}
	if !codePattern.MatchString(r.CurrencyCode) {
		problems = append(problems, "currency_code must be exactly 3 uppercase letters")
	}
	if l := len(r.Country); l < 2 || l > 100 {
		problems = append(problems, "country must be between 2 and 100 characters")
	}
	if l := len(r.CurrencyName); l < 2 || l > 100 {
		problems = append(problems, "currency_name must be between 2 and 100 characters")
	}
	if r.CountryNumber < 0 || r.CountryNumber > 999 {
		problems = append(problems, "country_number must be between 0 and 999")
	}
	if r.CurrencyNumber < 0 || r.CurrencyNumber > 999 {
		problems = append(problems, "currency_number must be between 0 and 999")
	}

	return problems
}

// String renders the record the way it is shown in listings.
func (r *Record) String() string {
	return fmt.Sprintf("%s (%s) - %s (%s)", r.Country, r.CountryCode, r.CurrencyName, r.CurrencyCode)
}

// recordFromRow maps a warehouse result row onto a Record. Numeric columns
// may arrive as JSON numbers or strings depending on the warehouse's
// result encoding.
func recordFromRow(row warehouse.Row) Record {
	return Record{
		CountryCode:    stringVal(row["country_code"]),
		CountryNumber:  intVal(row["country_number"]),
		Country:        stringVal(row["country"]),
		CurrencyName:   stringVal(row["currency_name"]),
		CurrencyCode:   stringVal(row["currency_code"]),
		CurrencyNumber: intVal(row["currency_number"]),
	}
}

func stringVal(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func intVal(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

func floatVal(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
