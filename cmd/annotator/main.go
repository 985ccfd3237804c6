package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/smartetl/annotator/internal/config"
	"github.com/smartetl/annotator/internal/enrich"
	"github.com/smartetl/annotator/internal/enrich/cache"
	"github.com/smartetl/annotator/internal/llm/gemini"
	"github.com/smartetl/annotator/internal/log"
	"github.com/smartetl/annotator/internal/pipeline"
	"github.com/smartetl/annotator/internal/query"
	"github.com/smartetl/annotator/internal/store"
	localio "github.com/smartetl/annotator/pkg/pipeline/io/local"
	"github.com/smartetl/annotator/pkg/pipeline/redact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer log.Sync()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "enrich":
		os.Exit(runEnrich(ctx, os.Args[2:]))
	case "query":
		os.Exit(runQuery(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runEnrich(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Optional YAML config file")
	inputPath := fs.String("input", "", "Input CSV file path")
	outputPath := fs.String("output", "", "Optional enriched CSV output path")
	var (
		textColumn string
		tableName  string
		model      string
		batchSize  int
		workers    int
	)
	fs.StringVar(&textColumn, "text-column", "", "Column containing the text to enrich (default from config)")
	fs.StringVar(&tableName, "table", "", "Destination table name (default from config)")
	fs.StringVar(&model, "model", "", "Model identifier (env: GEMINI_MODEL)")
	fs.IntVar(&batchSize, "batch-size", 0, "Rows per dispatch batch (env: BATCH_SIZE)")
	fs.IntVar(&workers, "workers", 0, "Concurrent enrichment workers (env: WORKERS)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *inputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "enrich requires --input")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("config error", err)
		return 2
	}
	applyOverrides(&cfg, textColumn, tableName, model, batchSize, workers)

	inF, err := os.Open(*inputPath)
	if err != nil {
		fail("open input", err)
		return 1
	}
	defer func() {
		_ = inF.Close()
	}()
	tbl, err := localio.ReadTable(inF)
	if err != nil {
		fail("read input csv", err)
		return 1
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fail("open database", err)
		return 1
	}
	defer func() {
		_ = db.Close()
	}()

	resultCache, err := cache.NewSQLite(db.Handle())
	if err != nil {
		fail("open cache", err)
		return 1
	}

	gateway, err := gemini.New(ctx, gemini.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	if err != nil {
		fail("gateway config", err)
		return 2
	}

	enricher := pipeline.NewBatchEnricher(
		enrich.NewGatewayEnricher(gateway, cfg.Model),
		resultCache,
		pipeline.Options{
			BatchSize:      cfg.BatchSize,
			Workers:        cfg.Workers,
			MaxRetries:     cfg.MaxRetries,
			RequestTimeout: cfg.RequestTimeout,
			RateLimitRPS:   cfg.RateLimitRPS,
			OnEvent:        logSink(),
		},
	)

	log.Info("enrichment run starting",
		zap.Int("rows", tbl.Len()),
		zap.String("model", cfg.Model),
		zap.Int("batch_size", cfg.BatchSize),
	)

	enriched, metrics, err := enricher.Run(ctx, tbl, cfg.TextColumn)
	if err != nil {
		fail("enrichment run", err)
		return 1
	}

	if err := db.Write(ctx, cfg.Table, enriched); err != nil {
		fail("persist enriched table", err)
		return 1
	}

	if *outputPath != "" {
		outF, err := os.Create(*outputPath)
		if err != nil {
			fail("create output", err)
			return 1
		}
		if err := localio.WriteTable(outF, enriched); err != nil {
			_ = outF.Close()
			fail("write output csv", err)
			return 1
		}
		if err := outF.Close(); err != nil {
			fail("write output csv", err)
			return 1
		}
	}

	log.Info("enrichment run complete",
		zap.Int("rows_processed", metrics.RowsProcessed),
		zap.Int("cache_hits", metrics.CacheHits),
		zap.Int("api_calls", metrics.APICalls),
		zap.Int("failures", metrics.Failures),
		zap.Duration("avg_call_latency", metrics.AvgCallLatency()),
		zap.String("table", cfg.Table),
	)
	return 0
}

func runQuery(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Optional YAML config file")
	tableName := fs.String("table", "", "Table to query (default from config)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		_, _ = fmt.Fprintln(os.Stderr, "query requires a question, e.g.: annotator query \"show top 5 negative reviews\"")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("config error", err)
		return 2
	}
	if *tableName != "" {
		cfg.Table = *tableName
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		fail("open database", err)
		return 1
	}
	defer func() {
		_ = db.Close()
	}()

	contract, err := db.Schema(ctx, cfg.Table)
	if err != nil {
		fail("read schema", err)
		return 1
	}

	gateway, err := gemini.New(ctx, gemini.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	if err != nil {
		fail("gateway config", err)
		return 2
	}

	translated, err := query.NewTranslator(gateway, cfg.Model).Translate(ctx, question, contract)
	if err != nil {
		fail("translate question", err)
		return 1
	}

	guard := query.NewGuard(db, cfg.RowCap)
	rows, executed, err := guard.Execute(ctx, translated.SQL, contract)
	if err != nil {
		// Show the offending SQL for diagnosis; the statement never
		// reached the backend unless it validated.
		_, _ = fmt.Fprintf(os.Stderr, "query failed: %s\nsql: %s\n", redact.Secrets(err.Error()), translated.SQL)
		return 1
	}

	// Surface the executed SQL for transparency, then the result rows.
	_, _ = fmt.Fprintf(os.Stdout, "-- %s\n", executed)
	if err := localio.WriteTable(os.Stdout, rows); err != nil {
		fail("write results", err)
		return 1
	}
	return 0
}

func applyOverrides(cfg *config.Config, textColumn, tableName, model string, batchSize, workers int) {
	if strings.TrimSpace(textColumn) != "" {
		cfg.TextColumn = strings.TrimSpace(textColumn)
	}
	if strings.TrimSpace(tableName) != "" {
		cfg.Table = strings.TrimSpace(tableName)
	}
	if strings.TrimSpace(model) != "" {
		cfg.Model = strings.TrimSpace(model)
	}
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	if workers > 0 {
		cfg.Workers = workers
	}
}

func logSink() pipeline.Sink {
	return func(ev pipeline.Event) {
		switch ev.Kind {
		case pipeline.EventBatchCompleted:
			log.Info("batch completed",
				zap.String("run", ev.RunID),
				zap.Int("batch", ev.Batch),
				zap.Int("batches", ev.Batches),
				zap.Int("rows_done", ev.RowsDone),
				zap.Int("rows_total", ev.RowsTotal),
			)
		case pipeline.EventRowFailed:
			log.Warn("row enrichment failed",
				zap.String("run", ev.RunID),
				zap.Int("row", ev.Row),
				zap.String("error", redact.Secrets(ev.Err.Error())),
			)
		case pipeline.EventRunCompleted:
			log.Info("run completed",
				zap.String("run", ev.RunID),
				zap.Int("rows_done", ev.RowsDone),
				zap.Int("rows_total", ev.RowsTotal),
			)
		}
	}
}

func fail(msg string, err error) {
	_, _ = fmt.Fprintf(os.Stderr, "%s: %s\n", msg, redact.Secrets(err.Error()))
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `annotator: CSV enrichment via LLM annotation plus natural-language querying

Usage:
  annotator <command> [flags]

Commands:
  enrich   Annotate a CSV with sentiment/keywords/summary and persist it
  query    Ask a natural-language question about the enriched table

Examples:
  annotator enrich --input reviews.csv --output reviews_enriched.csv
  annotator query "show top 5 negative reviews about price"

Environment:
  GEMINI_API_KEY    API key (required)
  GEMINI_MODEL      Model name override
  GEMINI_BASE_URL   Optional base URL override (proxies/testing)
  WORKERS, BATCH_SIZE, MAX_RETRIES, REQUEST_TIMEOUT, RATE_LIMIT_RPS, DB_PATH

`)
}
