// Package export renders Bronze and Silver rows as CSV or Parquet files and
// publishes them to a directory or a Cloud Storage bucket.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dvloznov/ledger-lake/internal/domain"
)

// WriteBronzeCSV writes Bronze rows with a header row. Nulls are written as
// empty fields, dates as YYYY-MM-DD and ingested_at as RFC 3339 UTC.
func WriteBronzeCSV(w io.Writer, rows []domain.BronzeRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.BronzeColumns); err != nil {
		return fmt.Errorf("WriteBronzeCSV: header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			formatDate(row),
			stringOrEmpty(row.Partner),
			floatOrEmpty(row.Amount),
			row.SourceFile,
			formatTimestamp(row.IngestedAt),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteBronzeCSV: row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteBronzeCSV: flush: %w", err)
	}
	return nil
}

// WriteSilverCSV writes Silver rows with a header row.
func WriteSilverCSV(w io.Writer, rows []domain.SilverRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.SilverColumns); err != nil {
		return fmt.Errorf("WriteSilverCSV: header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.Partner,
			row.Month.String(),
			strconv.FormatFloat(row.Amount, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteSilverCSV: row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteSilverCSV: flush: %w", err)
	}
	return nil
}

func formatDate(row domain.BronzeRow) string {
	if row.Date == nil {
		return ""
	}
	return row.Date.String()
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
