package export

import (
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type bronzeParquetRow struct {
	Date       *int32   `parquet:"name=date, type=INT32, convertedtype=DATE, repetitiontype=OPTIONAL"`
	Partner    *string  `parquet:"name=partner, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Amount     *float64 `parquet:"name=amount, type=DOUBLE, repetitiontype=OPTIONAL"`
	SourceFile string   `parquet:"name=source_file, type=BYTE_ARRAY, convertedtype=UTF8"`
	IngestedAt *int64   `parquet:"name=ingested_at, type=INT64, convertedtype=TIMESTAMP_MICROS, repetitiontype=OPTIONAL"`
}

type silverParquetRow struct {
	Partner string  `parquet:"name=partner, type=BYTE_ARRAY, convertedtype=UTF8"`
	Month   int32   `parquet:"name=month, type=INT32, convertedtype=DATE"`
	Amount  float64 `parquet:"name=amount, type=DOUBLE"`
}

var epoch = civil.Date{Year: 1970, Month: time.January, Day: 1}

// WriteBronzeParquet writes Bronze rows as a Snappy-compressed Parquet file.
// Dates are stored as DATE and ingested_at as TIMESTAMP_MICROS.
func WriteBronzeParquet(w io.Writer, rows []domain.BronzeRow) error {
	records := make([]any, len(rows))
	for i, row := range rows {
		pr := &bronzeParquetRow{
			Partner:    row.Partner,
			Amount:     row.Amount,
			SourceFile: row.SourceFile,
		}
		if row.Date != nil {
			days := daysSinceEpoch(*row.Date)
			pr.Date = &days
		}
		if !row.IngestedAt.IsZero() {
			micros := row.IngestedAt.UnixMicro()
			pr.IngestedAt = &micros
		}
		records[i] = pr
	}

	if err := writeParquet(w, new(bronzeParquetRow), records); err != nil {
		return fmt.Errorf("WriteBronzeParquet: %w", err)
	}
	return nil
}

// WriteSilverParquet writes Silver rows as a Snappy-compressed Parquet file.
func WriteSilverParquet(w io.Writer, rows []domain.SilverRow) error {
	records := make([]any, len(rows))
	for i, row := range rows {
		records[i] = &silverParquetRow{
			Partner: row.Partner,
			Month:   daysSinceEpoch(row.Month),
			Amount:  row.Amount,
		}
	}

	if err := writeParquet(w, new(silverParquetRow), records); err != nil {
		return fmt.Errorf("WriteSilverParquet: %w", err)
	}
	return nil
}

func writeParquet(w io.Writer, schema any, records []any) error {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	if err != nil {
		return fmt.Errorf("parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		if err := pw.Write(rec); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("parquet flush: %w", err)
	}
	return nil
}

func daysSinceEpoch(d civil.Date) int32 {
	return int32(d.DaysSince(epoch))
}
