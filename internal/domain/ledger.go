package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Canonical column names shared by every normalized batch.
const (
	ColumnDate       = "date"
	ColumnPartner    = "partner"
	ColumnAmount     = "amount"
	ColumnSourceFile = "source_file"
	ColumnIngestedAt = "ingested_at"
	ColumnMonth      = "month"
)

// CanonicalColumns are the business columns every source is normalized into.
var CanonicalColumns = []string{ColumnDate, ColumnPartner, ColumnAmount}

// BronzeColumns is the fixed column order of the Bronze table.
var BronzeColumns = []string{ColumnDate, ColumnPartner, ColumnAmount, ColumnSourceFile, ColumnIngestedAt}

// SilverColumns is the fixed column order of the Silver table.
var SilverColumns = []string{ColumnPartner, ColumnMonth, ColumnAmount}

// ColumnMapping maps a source column name to one of the canonical names.
type ColumnMapping map[string]string

// BuildMapping builds a ColumnMapping from the source names of the date,
// partner and amount columns. Names are trimmed and blank ones are omitted.
// If two canonical columns share a source name, the later one wins.
func BuildMapping(dateCol, partnerCol, amountCol string) ColumnMapping {
	m := make(ColumnMapping, 3)
	if s := strings.TrimSpace(dateCol); s != "" {
		m[s] = ColumnDate
	}
	if s := strings.TrimSpace(partnerCol); s != "" {
		m[s] = ColumnPartner
	}
	if s := strings.TrimSpace(amountCol); s != "" {
		m[s] = ColumnAmount
	}
	return m
}

// IsCanonical reports whether name is one of date, partner or amount.
func IsCanonical(name string) bool {
	for _, c := range CanonicalColumns {
		if c == name {
			return true
		}
	}
	return false
}

// BronzeRow is the typed view of one Bronze table row.
// Nil pointers are nulls.
type BronzeRow struct {
	Date       *civil.Date
	Partner    *string
	Amount     *float64
	SourceFile string
	IngestedAt time.Time // UTC, shared by every row of one tagged batch
}

// SilverRow is one partner × month aggregate.
type SilverRow struct {
	Partner string
	Month   civil.Date // always the first day of the month
	Amount  float64
}
