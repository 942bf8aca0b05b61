package refdata

import (
	"strings"
	"testing"

	"refadmin/internal/warehouse"
)

func validRecord() Record {
	return Record{
		CountryCode:    "BRA",
		CountryNumber:  76,
		Country:        "Brazil",
		CurrencyName:   "Brazilian Real",
		CurrencyCode:   "BRL",
		CurrencyNumber: 986,
	}
}

func TestValidateAcceptsValidRecord(t *testing.T) {
	rec := validRecord()
	if problems := rec.Validate(); len(problems) != 0 {
		t.Errorf("unexpected problems: %v", problems)
	}
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Record)
		want   string
	}{
		{"lowercase country code", func(r *Record) { r.CountryCode = "bra" }, "country_code"},
		{"short country code", func(r *Record) { r.CountryCode = "BR" }, "country_code"},
		{"long country code", func(r *Record) { r.CountryCode = "BRAZ" }, "country_code"},
		{"digits in currency code", func(r *Record) { r.CurrencyCode = "BR1" }, "currency_code"},
		{"country too short", func(r *Record) { r.Country = "B" }, "country must"},
		{"country too long", func(r *Record) { r.Country = strings.Repeat("x", 101) }, "country must"},
		{"currency name too short", func(r *Record) { r.CurrencyName = "R" }, "currency_name"},
		{"country number negative", func(r *Record) { r.CountryNumber = -1 }, "country_number"},
		{"country number too large", func(r *Record) { r.CountryNumber = 1000 }, "country_number"},
		{"currency number too large", func(r *Record) { r.CurrencyNumber = 1000 }, "currency_number"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			tc.mutate(&rec)
			problems := rec.Validate()
			if len(problems) == 0 {
				t.Fatal("expected a validation problem")
			}
			found := false
			for _, p := range problems {
				if strings.Contains(p, tc.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("problems %v do not mention %q", problems, tc.want)
			}
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	rec := Record{CountryCode: "xx", Country: "A", CurrencyName: "B", CurrencyCode: "yy", CountryNumber: -5}
	problems := rec.Validate()
	if len(problems) != 5 {
		t.Errorf("got %d problems, want 5: %v", len(problems), problems)
	}
}

func TestRecordFromRowCoercesTypes(t *testing.T) {
	row := warehouse.Row{
		"country_code":    "BRA",
		"country_number":  "76",
		"country":         "Brazil",
		"currency_name":   "Brazilian Real",
		"currency_code":   "BRL",
		"currency_number": float64(986),
	}
	rec := recordFromRow(row)
	if rec.CountryNumber != 76 {
		t.Errorf("CountryNumber = %d, want 76", rec.CountryNumber)
	}
	if rec.CurrencyNumber != 986 {
		t.Errorf("CurrencyNumber = %d, want 986", rec.CurrencyNumber)
	}
	if rec.String() != "Brazil (BRA) - Brazilian Real (BRL)" {
		t.Errorf("String() = %q", rec.String())
	}
}
