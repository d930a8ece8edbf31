package pipeline

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestSummarize(t *testing.T) {
	bronze := bronzeOf(
		[]any{"2024-03-01", "X", 10.0, "a.csv", "t"},
		[]any{"2024-03-01", "X", 10.0, "a.csv", "t"},
		[]any{"2024-01-15", "Y", 5.0, "a.csv", "t"},
		[]any{nil, nil, nil, "b.csv", "t"},
	)
	silver, err := ToSilver(bronze)
	if err != nil {
		t.Fatalf("ToSilver() error = %v", err)
	}

	got := Summarize(bronze, silver)

	want := Summary{
		BronzeRows:     4,
		UniquePartners: 2,
		TotalAmount:    25,
		DateMin:        &civil.Date{Year: 2024, Month: time.January, Day: 15},
		DateMax:        &civil.Date{Year: 2024, Month: time.March, Day: 1},
		Completeness:   85,
		Duplicates:     1,
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_EmptyBronze(t *testing.T) {
	got := Summarize(AssembleBronze(), nil)

	if got.BronzeRows != 0 || got.DateMin != nil || got.DateMax != nil {
		t.Errorf("Summarize() = %+v, want zero rows and no date range", got)
	}
	if got.Completeness != 100 {
		t.Errorf("Completeness = %v, want 100", got.Completeness)
	}
}

func TestMonthlyTotals(t *testing.T) {
	silver := []domain.SilverRow{
		{Partner: "A", Month: month(2024, time.February), Amount: 2},
		{Partner: "B", Month: month(2024, time.January), Amount: 3},
		{Partner: "C", Month: month(2024, time.February), Amount: 0.5},
	}

	got := MonthlyTotals(silver)

	want := []MonthTotal{
		{Month: month(2024, time.January), Amount: 3},
		{Month: month(2024, time.February), Amount: 2.5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MonthlyTotals() mismatch (-want +got):\n%s", diff)
	}
}
