package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/gcs"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
)

// Supported file formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
)

// ErrUnknownFormat is returned for a format other than csv or parquet.
var ErrUnknownFormat = errors.New("unknown export format")

// Artifact is one rendered export file.
type Artifact struct {
	Name        string // e.g. "bronze.csv"
	ContentType string
	Data        []byte
}

// BronzeArtifacts renders Bronze rows in every requested format.
func BronzeArtifacts(rows []domain.BronzeRow, formats []string) ([]Artifact, error) {
	return render("bronze", formats,
		func(b *bytes.Buffer) error { return WriteBronzeCSV(b, rows) },
		func(b *bytes.Buffer) error { return WriteBronzeParquet(b, rows) },
	)
}

// SilverArtifacts renders Silver rows in every requested format.
func SilverArtifacts(rows []domain.SilverRow, formats []string) ([]Artifact, error) {
	return render("silver", formats,
		func(b *bytes.Buffer) error { return WriteSilverCSV(b, rows) },
		func(b *bytes.Buffer) error { return WriteSilverParquet(b, rows) },
	)
}

// ValidateFormats checks that every format is supported.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		switch strings.ToLower(f) {
		case FormatCSV, FormatParquet:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
		}
	}
	return nil
}

func render(layer string, formats []string, csvFn, parquetFn func(*bytes.Buffer) error) ([]Artifact, error) {
	if len(formats) == 0 {
		formats = []string{FormatCSV}
	}

	out := make([]Artifact, 0, len(formats))
	for _, f := range formats {
		var (
			buf bytes.Buffer
			err error
			a   Artifact
		)
		switch strings.ToLower(f) {
		case FormatCSV:
			err = csvFn(&buf)
			a = Artifact{Name: layer + ".csv", ContentType: "text/csv; charset=utf-8"}
		case FormatParquet:
			err = parquetFn(&buf)
			a = Artifact{Name: layer + ".parquet", ContentType: "application/vnd.apache.parquet"}
		default:
			return nil, fmt.Errorf("render %s: %w: %q", layer, ErrUnknownFormat, f)
		}
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", layer, err)
		}
		a.Data = buf.Bytes()
		out = append(out, a)
	}
	return out, nil
}

var (
	_ pipeline.Publisher = (*DirPublisher)(nil)
	_ pipeline.Publisher = (*GCSPublisher)(nil)
)

// DirPublisher writes artifacts to Dir/<run id>/.
type DirPublisher struct {
	Dir     string
	Formats []string
}

func (p *DirPublisher) PublishBronze(ctx context.Context, runID string, rows []domain.BronzeRow) error {
	artifacts, err := BronzeArtifacts(rows, p.Formats)
	if err != nil {
		return fmt.Errorf("DirPublisher.PublishBronze: %w", err)
	}
	return p.write(ctx, runID, artifacts)
}

func (p *DirPublisher) PublishSilver(ctx context.Context, runID string, rows []domain.SilverRow) error {
	artifacts, err := SilverArtifacts(rows, p.Formats)
	if err != nil {
		return fmt.Errorf("DirPublisher.PublishSilver: %w", err)
	}
	return p.write(ctx, runID, artifacts)
}

func (p *DirPublisher) write(ctx context.Context, runID string, artifacts []Artifact) error {
	dir := filepath.Join(p.Dir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("DirPublisher: creating %s: %w", dir, err)
	}

	log := logger.FromContext(ctx)
	for _, a := range artifacts {
		path := filepath.Join(dir, a.Name)
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return fmt.Errorf("DirPublisher: writing %s: %w", path, err)
		}
		log.Info().Str("path", path).Int("bytes", len(a.Data)).Msg("Wrote export file")
	}
	return nil
}

// GCSPublisher uploads artifacts to gs://Bucket/Prefix/<run id>/.
type GCSPublisher struct {
	Storage gcs.StorageService
	Bucket  string
	Prefix  string
	Formats []string
}

func (p *GCSPublisher) PublishBronze(ctx context.Context, runID string, rows []domain.BronzeRow) error {
	artifacts, err := BronzeArtifacts(rows, p.Formats)
	if err != nil {
		return fmt.Errorf("GCSPublisher.PublishBronze: %w", err)
	}
	return p.upload(ctx, runID, artifacts)
}

func (p *GCSPublisher) PublishSilver(ctx context.Context, runID string, rows []domain.SilverRow) error {
	artifacts, err := SilverArtifacts(rows, p.Formats)
	if err != nil {
		return fmt.Errorf("GCSPublisher.PublishSilver: %w", err)
	}
	return p.upload(ctx, runID, artifacts)
}

func (p *GCSPublisher) upload(ctx context.Context, runID string, artifacts []Artifact) error {
	log := logger.FromContext(ctx)
	for _, a := range artifacts {
		object := gcs.ObjectName(p.Prefix, runID, a.Name)
		if err := p.Storage.UploadBytes(ctx, p.Bucket, object, a.Data, a.ContentType); err != nil {
			return fmt.Errorf("GCSPublisher: %w", err)
		}
		log.Info().Str("uri", gcs.Scheme+p.Bucket+"/"+object).Int("bytes", len(a.Data)).Msg("Uploaded export file")
	}
	return nil
}
