package bigquery

import (
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

func TestSilverNDJSON(t *testing.T) {
	updated := time.Date(2024, 4, 1, 8, 30, 0, 0, time.FixedZone("CET", 3600))
	rows := []*SilverRow{
		{
			Partner:   "Acme, Inc.",
			Month:     civil.Date{Year: 2024, Month: time.March, Day: 1},
			Amount:    1500.25,
			RunID:     "run-1",
			UpdatedTS: updated,
		},
		{
			Partner:   "",
			Month:     civil.Date{Year: 2024, Month: time.April, Day: 1},
			Amount:    -3,
			RunID:     "run-1",
			UpdatedTS: updated,
		},
	}

	got, err := silverNDJSON(rows)
	if err != nil {
		t.Fatalf("silverNDJSON() error = %v", err)
	}

	want := `{"partner":"Acme, Inc.","month":"2024-03-01","amount":1500.25,"run_id":"run-1","updated_ts":"2024-04-01 07:30:00.000000"}` + "\n" +
		`{"partner":"","month":"2024-04-01","amount":-3,"run_id":"run-1","updated_ts":"2024-04-01 07:30:00.000000"}` + "\n"
	if string(got) != want {
		t.Errorf("silverNDJSON() = %q, want %q", got, want)
	}
}

func TestSilverLoadSource(t *testing.T) {
	src, err := silverLoadSource([]*SilverRow{{Partner: "", Month: civil.Date{Year: 2024, Month: time.May, Day: 1}}})
	if err != nil {
		t.Fatalf("silverLoadSource() error = %v", err)
	}
	if src.SourceFormat != bigquery.JSON {
		t.Errorf("SourceFormat = %v, want %v", src.SourceFormat, bigquery.JSON)
	}
	if len(src.Schema) != len(silverSchema) || src.Schema[0].Name != "partner" || !src.Schema[0].Required {
		t.Errorf("Schema = %+v, want silverSchema", src.Schema)
	}
}

func TestTableSQL(t *testing.T) {
	tbl := Table{ProjectID: "p", DatasetID: "ledger", Name: "silver"}
	if got := tbl.SQL(); got != "`p.ledger.silver`" {
		t.Errorf("SQL() = %s", got)
	}
}
