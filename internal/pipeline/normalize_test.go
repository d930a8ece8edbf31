package pipeline

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/table"
	"github.com/google/go-cmp/cmp"
)

func TestNormalizeColumns_RenamesAndCoerces(t *testing.T) {
	raw := table.New(
		[]string{"Datum", "Empfänger", "Betrag", "Notiz"},
		[][]any{
			{"01/03/2024", "  Acme   Corp ", "1.000,00", "first"},
			{"2024-03-15", nil, "n/a", "second"},
			{"not a date", "Globex", 12.5, nil},
		},
	)
	mapping := domain.BuildMapping("Datum", "Empfänger", "Betrag")

	got := NormalizeColumns(raw, mapping)

	wantCols := []string{domain.ColumnDate, domain.ColumnPartner, domain.ColumnAmount, "Notiz"}
	if diff := cmp.Diff(wantCols, got.Columns()); diff != "" {
		t.Fatalf("Columns() mismatch (-want +got):\n%s", diff)
	}

	want := [][]any{
		{civil.Date{Year: 2024, Month: time.March, Day: 1}, "Acme Corp", 1000.0, "first"},
		{civil.Date{Year: 2024, Month: time.March, Day: 15}, "", nil, "second"},
		{nil, "Globex", 12.5, nil},
	}
	for i := range want {
		if diff := cmp.Diff(want[i], got.Row(i)); diff != "" {
			t.Errorf("Row(%d) mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestNormalizeColumns_DoesNotMutateInput(t *testing.T) {
	raw := table.New([]string{"d", "amt"}, [][]any{{"2024-01-02", "3,50"}})
	before := raw.Row(0)

	_ = NormalizeColumns(raw, domain.BuildMapping("d", "", "amt"))

	if diff := cmp.Diff([]string{"d", "amt"}, raw.Columns()); diff != "" {
		t.Errorf("input columns changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before, raw.Row(0)); diff != "" {
		t.Errorf("input row changed (-want +got):\n%s", diff)
	}
}

func TestNormalizeColumns_IdentityMappingIsIdempotent(t *testing.T) {
	raw := table.New(
		domain.CanonicalColumns,
		[][]any{
			{"2024-02-29", " Initech  Ltd", "-7,25"},
			{nil, nil, nil},
		},
	)
	mapping := domain.BuildMapping(domain.ColumnDate, domain.ColumnPartner, domain.ColumnAmount)

	once := NormalizeColumns(raw, mapping)
	twice := NormalizeColumns(once, mapping)

	for i := 0; i < once.Len(); i++ {
		if diff := cmp.Diff(once.Row(i), twice.Row(i)); diff != "" {
			t.Errorf("Row(%d) changed on second pass (-first +second):\n%s", i, diff)
		}
	}
}

func TestNormalizeColumns_MissingCanonicalStaysAbsent(t *testing.T) {
	raw := table.New([]string{"who"}, [][]any{{"x"}})

	got := NormalizeColumns(raw, domain.BuildMapping("", "who", ""))

	if got.Has(domain.ColumnDate) || got.Has(domain.ColumnAmount) {
		t.Errorf("Columns() = %v, want only partner", got.Columns())
	}
}

func TestCleanPartner(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{input: "  Acme   Corp ", want: "Acme Corp"},
		{input: "Tab\tand\nnewline", want: "Tab and newline"},
		{input: nil, want: ""},
		{input: 42, want: "42"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		if got := CleanPartner(tt.input); got != tt.want {
			t.Errorf("CleanPartner(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   civil.Date
		wantOK bool
	}{
		{name: "iso", input: "2024-03-15", want: civil.Date{Year: 2024, Month: time.March, Day: 15}, wantOK: true},
		{name: "day first slash", input: "01/03/2024", want: civil.Date{Year: 2024, Month: time.March, Day: 1}, wantOK: true},
		{name: "day first dot", input: "31.12.2023", want: civil.Date{Year: 2023, Month: time.December, Day: 31}, wantOK: true},
		{name: "day first dot ambiguous", input: "01.03.2024", want: civil.Date{Year: 2024, Month: time.March, Day: 1}, wantOK: true},
		{name: "day first dot unambiguous", input: "15.03.2024", want: civil.Date{Year: 2024, Month: time.March, Day: 15}, wantOK: true},
		{name: "day first dash", input: "15-03-2024", want: civil.Date{Year: 2024, Month: time.March, Day: 15}, wantOK: true},
		{name: "single digit day and month", input: "5.2.2024", want: civil.Date{Year: 2024, Month: time.February, Day: 5}, wantOK: true},
		{name: "day first with time", input: "15.03.2024 08:30", want: civil.Date{Year: 2024, Month: time.March, Day: 15}, wantOK: true},
		{name: "impossible day", input: "31.02.2024", wantOK: false},
		{name: "amount text", input: "1.000,00", wantOK: false},
		{name: "slash fragment", input: "1/", wantOK: false},
		{name: "colon fragment", input: "1:", wantOK: false},
		{name: "too many parts", input: "01/02/03/04", wantOK: false},
		{name: "year zero iso", input: "0000-01-01", wantOK: false},
		{name: "time component dropped", input: "2024-03-15 13:45:00", want: civil.Date{Year: 2024, Month: time.March, Day: 15}, wantOK: true},
		{name: "time.Time", input: time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC), want: civil.Date{Year: 2024, Month: time.May, Day: 6}, wantOK: true},
		{name: "civil.Date", input: civil.Date{Year: 2022, Month: time.July, Day: 9}, want: civil.Date{Year: 2022, Month: time.July, Day: 9}, wantOK: true},
		{name: "garbage", input: "not a date", wantOK: false},
		{name: "empty", input: "  ", wantOK: false},
		{name: "nil", input: nil, wantOK: false},
		{name: "bool", input: true, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseDate(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseDate(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
