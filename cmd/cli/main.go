package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-lake/internal/app"
	"github.com/dvloznov/ledger-lake/internal/config"
	"github.com/dvloznov/ledger-lake/internal/domain"
	"github.com/dvloznov/ledger-lake/internal/gcs"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
	"github.com/dvloznov/ledger-lake/internal/reader"
	"github.com/rs/zerolog"
)

// Exit codes of the ingest command.
const (
	exitFailed     = 1
	exitViolations = 2
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(log)
	case "inspect":
		runInspect(log)
	case "runs":
		runRuns(log)
	case "silver":
		runSilver(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Ledger Lake CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Build Bronze and Silver from CSV/XLSX files (local paths or gs:// URIs)")
	fmt.Println("  inspect   Show the columns and first rows of one file")
	fmt.Println("  runs      List recent ingestion runs recorded in BigQuery")
	fmt.Println("  silver    Query Silver aggregates from BigQuery")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadConfig loads configuration and rebuilds the logger from it.
func loadConfig(path string) (*config.Config, zerolog.Logger) {
	bootLog := logger.New()
	cfg, err := config.Load(path)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to create logger")
	}
	return cfg, log
}

func runIngest(log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("LEDGER_CONFIG"), "Path to a YAML config file")
	dateCol := fs.String("date-column", "", "Source column holding the date (overrides mapping.date)")
	partnerCol := fs.String("partner-column", "", "Source column holding the partner (overrides mapping.partner)")
	amountCol := fs.String("amount-column", "", "Source column holding the amount (overrides mapping.amount)")
	outDir := fs.String("out", "", "Directory for export files (overrides export.dir)")
	formats := fs.String("formats", "", "Comma-separated export formats: csv, parquet (overrides export.formats)")
	concurrency := fs.Int("concurrency", 0, "Maximum files fetched at once (overrides ingest.concurrency)")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall timeout")
	fs.Parse(os.Args[2:])

	locations := fs.Args()
	if len(locations) == 0 {
		log.Fatal().Msg("Usage: cli ingest [options] FILE [FILE...]")
	}

	cfg, log := loadConfig(*configPath)
	if *dateCol != "" {
		cfg.Mapping.Date = *dateCol
	}
	if *partnerCol != "" {
		cfg.Mapping.Partner = *partnerCol
	}
	if *amountCol != "" {
		cfg.Mapping.Amount = *amountCol
	}
	if *outDir != "" {
		cfg.Export.Dir = *outDir
	}
	if *formats != "" {
		cfg.Export.Formats = splitList(*formats)
	}
	if *concurrency > 0 {
		cfg.Ingest.Concurrency = *concurrency
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid options")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	rt, err := app.Build(ctx, cfg, anyGCS(locations))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize publishers")
	}
	defer rt.Close()

	sources, err := reader.FetchAll(ctx, rt.Storage, locations, cfg.Ingest.Concurrency)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading sources failed")
	}

	state, err := pipeline.Ingest(ctx, app.Mapping(cfg), sources, rt.Deps)
	if err != nil {
		log.Error().Err(err).Msg("Ingestion failed")
		rt.Close()
		os.Exit(exitFailed)
	}

	printReport(state)

	if len(state.Violations) > 0 {
		rt.Close()
		os.Exit(exitViolations)
	}
}

func printReport(state *pipeline.PipelineState) {
	s := state.Summary
	fmt.Println("\n=== Ingestion Run ===")
	fmt.Printf("Run ID:          %s\n", state.RunID)
	fmt.Printf("Sources:         %d\n", len(state.Sources))
	fmt.Printf("Bronze rows:     %d\n", s.BronzeRows)
	fmt.Printf("Unique partners: %d\n", s.UniquePartners)
	fmt.Printf("Completeness:    %.1f%%\n", s.Completeness)
	fmt.Printf("Duplicates:      %d\n", s.Duplicates)
	if s.DateMin != nil && s.DateMax != nil {
		fmt.Printf("Date range:      %s .. %s\n", s.DateMin, s.DateMax)
	}

	if len(state.SourceErrors) > 0 {
		fmt.Printf("\n=== Unreadable Sources (%d) ===\n", len(state.SourceErrors))
		for _, e := range state.SourceErrors {
			fmt.Printf("- %s: %s\n", e.Source, e.Error)
		}
	}

	if len(state.Violations) > 0 {
		fmt.Printf("\n=== Validation Errors (%d) ===\n", len(state.Violations))
		for _, msg := range pipeline.Messages(state.Violations) {
			fmt.Printf("- %s\n", msg)
		}
		fmt.Println("\nSilver was not produced. Fix the column mapping or the source files and retry.")
		return
	}

	fmt.Printf("\n=== Silver (%d rows, total %.2f) ===\n", len(state.Silver), s.TotalAmount)
	for _, row := range state.Silver {
		fmt.Printf("%-30s %s %14.2f\n", row.Partner, row.Month, row.Amount)
	}

	if totals := pipeline.MonthlyTotals(state.Silver); len(totals) > 0 {
		fmt.Println("\n=== Monthly Totals ===")
		for _, m := range totals {
			fmt.Printf("%s %14.2f\n", m.Month, m.Amount)
		}
	}
	fmt.Println()
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("LEDGER_CONFIG"), "Path to a YAML config file")
	rows := fs.Int("rows", 10, "Number of rows to show")
	fs.Parse(os.Args[2:])

	if fs.NArg() != 1 {
		log.Fatal().Msg("Usage: cli inspect [options] FILE")
	}
	location := fs.Arg(0)

	cfg, log := loadConfig(*configPath)

	ctx := logger.WithContext(context.Background(), log)
	rt, err := app.Build(ctx, &config.Config{}, gcs.IsGCSURI(location))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer rt.Close()

	sources, err := reader.FetchAll(ctx, rt.Storage, []string{location}, 1)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading source failed")
	}
	src := sources[0]
	if src.Err != nil {
		log.Fatal().Err(src.Err).Str("location", location).Msg("Failed to read file")
	}

	mapping := app.Mapping(cfg)
	fmt.Printf("\n=== %s ===\n", src.Name)
	fmt.Printf("Rows: %d\n", src.Batch.Len())
	fmt.Println("Columns:")
	for _, c := range src.Batch.Columns() {
		if canonical, ok := mapping[c]; ok {
			fmt.Printf("  %s -> %s\n", c, canonical)
		} else {
			fmt.Printf("  %s\n", c)
		}
	}
	for _, canonical := range domain.CanonicalColumns {
		if !mapped(mapping, src.Batch.Columns(), canonical) {
			fmt.Printf("  (no column mapped to %s)\n", canonical)
		}
	}

	n := min(*rows, src.Batch.Len())
	fmt.Printf("\nFirst %d rows:\n", n)
	for i := 0; i < n; i++ {
		cells := make([]string, 0, len(src.Batch.Columns()))
		for _, v := range src.Batch.Row(i) {
			if v == nil {
				cells = append(cells, "<null>")
				continue
			}
			cells = append(cells, fmt.Sprint(v))
		}
		fmt.Printf("  %s\n", strings.Join(cells, " | "))
	}
	fmt.Println()
}

func runRuns(log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("LEDGER_CONFIG"), "Path to a YAML config file")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(*configPath)
	if !cfg.BigQueryEnabled() {
		log.Fatal().Msg("BigQuery is not configured (set bigquery.project_id and bigquery.dataset_id)")
	}

	ctx := logger.WithContext(context.Background(), log)
	rt, err := app.Build(ctx, cfg, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery")
	}
	defer rt.Close()

	runList, err := rt.Repo.ListIngestionRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list ingestion runs")
	}

	fmt.Printf("\n=== Ingestion Runs (%d) ===\n", len(runList))
	for _, r := range runList {
		fmt.Printf("\n%s  %s\n", r.RunID, r.Status)
		fmt.Printf("   Started:  %s\n", r.StartedTS.Format(time.RFC3339))
		fmt.Printf("   Sources:  %s\n", strings.Join(r.Sources, ", "))
		if r.BronzeRows.Valid {
			fmt.Printf("   Bronze:   %d rows\n", r.BronzeRows.Int64)
		}
		if r.SilverRows.Valid {
			fmt.Printf("   Silver:   %d rows\n", r.SilverRows.Int64)
		}
		if r.ErrorMessage.Valid {
			fmt.Printf("   Error:    %s\n", r.ErrorMessage.StringVal)
		}
	}
	fmt.Println()
}

func runSilver(log zerolog.Logger) {
	fs := flag.NewFlagSet("silver", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("LEDGER_CONFIG"), "Path to a YAML config file")
	partner := fs.String("partner", "", "Only this partner")
	from := fs.String("from", "", "First month, YYYY-MM-DD (inclusive)")
	to := fs.String("to", "", "Last month, YYYY-MM-DD (inclusive)")
	fs.Parse(os.Args[2:])

	cfg, log := loadConfig(*configPath)
	if !cfg.BigQueryEnabled() {
		log.Fatal().Msg("BigQuery is not configured (set bigquery.project_id and bigquery.dataset_id)")
	}

	fromDate, err := parseOptionalDate(*from, civil.Date{Year: 1, Month: time.January, Day: 1})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -from")
	}
	toDate, err := parseOptionalDate(*to, civil.Date{Year: 9999, Month: time.December, Day: 31})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -to")
	}

	ctx := logger.WithContext(context.Background(), log)
	rt, err := app.Build(ctx, cfg, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery")
	}
	defer rt.Close()

	rows, err := rt.Repo.QuerySilver(ctx, *partner, fromDate, toDate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query silver")
	}

	fmt.Printf("\n=== Silver (%d rows) ===\n", len(rows))
	for _, r := range rows {
		fmt.Printf("%-30s %s %14.2f\n", r.Partner, r.Month, r.Amount)
	}
	fmt.Println()
}

func parseOptionalDate(s string, fallback civil.Date) (civil.Date, error) {
	if s == "" {
		return fallback, nil
	}
	return civil.ParseDate(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func anyGCS(locations []string) bool {
	for _, loc := range locations {
		if gcs.IsGCSURI(loc) {
			return true
		}
	}
	return false
}

func mapped(mapping domain.ColumnMapping, columns []string, canonical string) bool {
	for _, c := range columns {
		if mapping[c] == canonical {
			return true
		}
	}
	return false
}
