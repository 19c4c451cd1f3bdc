package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/config"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/dedup"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/firestore"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/logger"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/metrics"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/output"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/pipeline"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/registry"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/rules"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/scheduler"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/transform"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/ui"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/upload"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/validate"
)

const (
	version = "0.1.0"
)

var (
	// Global flags
	versionFlag = flag.Bool("version", false, "Show version")

	// Core CLI flags
	configPath = flag.String("config", "", "Config file (default: $"+config.PathEnv+" or "+config.DefaultPath+")")
	dryRun     = flag.Bool("dry-run", false, "Assemble and validate batches without uploading or touching the ledgers")
	verbose    = flag.Bool("verbose", false, "Show detailed logs")

	// Output flags
	outputFile  = flag.String("output", "", "Write the run report as JSON to this file (dry runs default to stdout)")
	metricsFile = flag.String("metrics-file", "", "Write run metrics in Prometheus textfile format")

	// Ledger and filter flags
	initLedger        = flag.Bool("init-ledger", false, "Create an empty ledger if the configured one does not exist")
	institutionFilter = flag.String("institution", "", "Only process the source directory for this institution")

	// Repeated runs
	schedule = flag.String("schedule", "", "Run on a cron schedule (e.g. \"0 6 * * *\" or \"@every 1h\") until interrupted")
)

func main() {
	// Custom usage message
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, `ofxingest - Statement ingest and deduplication

Usage:
  ofxingest [flags]

Flags:
`)
		flag.PrintDefaults()
		fmt.Fprint(os.Stderr, `
Examples:
  # First run: create the ledger and upload everything
  ofxingest -config config/ofxingest.yaml -init-ledger

  # Preview what would be uploaded
  ofxingest -dry-run -verbose

  # One institution, report to a file
  ofxingest -institution amex -output reports/amex.json

  # Ingest every morning at 06:00
  ofxingest -schedule "0 6 * * *" -metrics-file /var/lib/node_exporter/ofxingest.prom

`)
	}

	flag.Parse()

	// Handle version flag
	if *versionFlag {
		fmt.Printf("ofxingest version %s\n", version)
		os.Exit(0)
	}

	if flag.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n\n", flag.Args())
		flag.Usage()
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(*verbose)
	ctx = logger.WithContext(ctx, log)

	if err := config.LoadEnv(); err != nil {
		return err
	}

	path := config.ResolvePath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file %s not found\n\nPass -config or set $%s", path, config.PathEnv)
		}
		return err
	}

	sources, err := cfg.SourcesFor(*institutionFilter)
	if err != nil {
		return err
	}

	if *schedule == "" {
		return ingest(ctx, cfg, sources)
	}

	s, err := scheduler.New(*schedule, func(ctx context.Context) error {
		return ingest(ctx, cfg, sources)
	}, 0, log)
	if err != nil {
		return err
	}
	ui.BlueText(fmt.Sprintf("Scheduled with %q, next run at %s", *schedule, s.Next(time.Now()).Format(time.RFC3339)))
	return s.Run(ctx)
}

// ingest performs one complete run: assemble, validate, deliver, report.
func ingest(ctx context.Context, cfg *config.Config, sources []config.Source) error {
	runID := uuid.NewString()
	startedAt := time.Now()
	log := logger.FromContext(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx, log)
	rec := metrics.New()

	ui.Header("Ingesting Statements")
	if *dryRun {
		ui.YellowText("DRY RUN: nothing will be uploaded and the ledgers stay untouched")
	}

	ui.Step(1, 5, "Loading ledgers")
	ledger, err := loadLedger(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	files, err := loadFileLedger(cfg.Ledger.FilesPath)
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Ledger holds %d fingerprints, %d consumed files", ledger.Len(), files.Len()))

	ui.Step(2, 5, "Loading type rules")
	engine, err := loadRules(cfg.RulesFile)
	if err != nil {
		return err
	}
	log.Debug().Int("rules", len(engine.GetRules())).Msg("rules loaded")

	ui.Step(3, 5, "Assembling batches")
	reg, err := registry.New()
	if err != nil {
		return fmt.Errorf("failed to create parser registry: %w", err)
	}
	log.Debug().Strs("parsers", reg.ListParsers()).Msg("parsers registered")
	normalizer, err := transform.NewNormalizer(engine)
	if err != nil {
		return err
	}
	asm, err := pipeline.New(reg, normalizer, ledger, pipeline.Options{
		FileLedger:        files,
		Institutions:      cfg.Institutions,
		SkipParseFailures: cfg.OnParseFailure == config.FailureSkip,
		Metrics:           rec,
		Logger:            log,
	})
	if err != nil {
		return err
	}
	result, err := asm.Assemble(ctx, sources)
	if err != nil {
		return err
	}

	report := output.NewReport(runID, startedAt, *dryRun, result)
	for _, s := range report.Summary {
		ui.Institution(s.Institution, s.InstitutionID, s.New, s.Files, s.Redundant)
		if *verbose {
			ui.Info(fmt.Sprintf("  debits %s, credits %s, net %s", s.DebitsDisplay, s.CreditsDisplay, s.NetDisplay))
		}
	}
	for _, f := range result.Skipped {
		ui.Warning(fmt.Sprintf("Skipped %s: %v", f.Path, f.Err))
	}
	for _, f := range result.Failed {
		ui.Error(fmt.Sprintf("Dropped %s: %v", f.Institution, f.Err))
	}

	ui.Step(4, 5, "Validating batches")
	report.Validation = validate.ValidateBatches(result.Institutions)
	if err := reportValidation(report.Validation); err != nil {
		return err
	}

	ui.Step(5, 5, "Delivering batches")
	switch {
	case *dryRun:
		ui.Info(fmt.Sprintf("Dry run: %d new transactions not uploaded", result.NewTransactions()))
	case cfg.Upload.Backend == config.BackendNone:
		ui.Info("Upload backend is none; nothing delivered")
	default:
		delivery, err := deliver(ctx, cfg, result, ledger, files, rec)
		report.Delivery = delivery
		if err != nil {
			// The report still records what made it before the failure.
			writeReport(report, log)
			return err
		}
		ui.Success(fmt.Sprintf("Delivered %d batches (%d transactions), acknowledged %d",
			delivery.Delivered, delivery.Transactions, delivery.Acknowledged))
	}

	if err := writeReport(report, log); err != nil {
		return err
	}
	if *metricsFile != "" {
		if err := rec.WriteTextfile(*metricsFile); err != nil {
			return err
		}
	}

	log.Info().Dur("elapsed", time.Since(startedAt)).Int("new_transactions", result.NewTransactions()).Msg("run complete")
	return nil
}

// loadLedger reads the transaction ledger. A missing ledger is fatal unless
// -init-ledger is set, since an empty ledger would re-upload everything.
func loadLedger(path string) (*dedup.Ledger, error) {
	ledger, err := dedup.LoadLedger(path)
	if err == nil {
		return ledger, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load ledger %q: %w", path, err)
	}
	if !*initLedger {
		return nil, fmt.Errorf("ledger %q does not exist\n\nEvery transaction would be treated as new. Pass -init-ledger to start an empty ledger", path)
	}

	ledger = dedup.NewLedger()
	if !*dryRun {
		if err := dedup.SaveLedger(ledger, path); err != nil {
			return nil, fmt.Errorf("failed to create ledger %q: %w", path, err)
		}
	}
	ui.Info(fmt.Sprintf("Created empty ledger %s", path))
	return ledger, nil
}

func loadFileLedger(path string) (*dedup.FileLedger, error) {
	files, err := dedup.LoadFileLedger(path)
	if err == nil {
		return files, nil
	}
	if os.IsNotExist(err) {
		return dedup.NewFileLedger(), nil
	}
	return nil, fmt.Errorf("failed to load consumed-files ledger %q: %w", path, err)
}

func loadRules(path string) (*rules.Engine, error) {
	if path == "" {
		return rules.LoadEmbedded()
	}
	return rules.LoadFromFile(path)
}

func reportValidation(result *validate.ValidationResult) error {
	if !result.OK() {
		if *verbose {
			for _, e := range result.Errors {
				ui.Error(fmt.Sprintf("%s %s [%s]: %s", e.Entity, e.ID, e.Field, e.Message))
			}
		} else {
			ui.Error(fmt.Sprintf("Validation failed with %d errors", len(result.Errors)))
			ui.Info("Showing first 5 errors (run with -verbose to see all):")
			for i, e := range result.Errors {
				if i >= 5 {
					ui.Error(fmt.Sprintf("... and %d more errors", len(result.Errors)-5))
					break
				}
				ui.Error(fmt.Sprintf("%s %s [%s]: %s", e.Entity, e.ID, e.Field, e.Message))
			}
		}
		return fmt.Errorf("validation failed with %d errors", len(result.Errors))
	}

	if len(result.Warnings) == 0 {
		ui.Success("Validation passed")
		return nil
	}
	ui.Warning(fmt.Sprintf("Validation produced %d warnings", len(result.Warnings)))
	if *verbose {
		for _, w := range result.Warnings {
			ui.Warning(fmt.Sprintf("%s %s [%s]: %s", w.Entity, w.ID, w.Field, w.Message))
		}
	}
	return nil
}

func deliver(ctx context.Context, cfg *config.Config, result *pipeline.Result, ledger *dedup.Ledger, files *dedup.FileLedger, rec *metrics.Recorder) (*upload.DeliveryReport, error) {
	sink, closeSink, err := newSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeSink()

	up, err := upload.NewUploader(sink, upload.Options{
		UserID:            cfg.Upload.UserID,
		RequestsPerSecond: cfg.Upload.Rate(),
		Ledger:            ledger,
		LedgerPath:        cfg.Ledger.Path,
		FileLedger:        files,
		FileLedgerPath:    cfg.Ledger.FilesPath,
		Metrics:           rec,
		Logger:            logger.FromContext(ctx),
	})
	if err != nil {
		return nil, err
	}
	return up.Deliver(ctx, result.Institutions)
}

func newSink(ctx context.Context, cfg *config.Config) (upload.Sink, func(), error) {
	switch cfg.Upload.Backend {
	case config.BackendHTTP:
		return upload.NewAPIClient(cfg.Upload.BaseURL, cfg.APIKey, cfg.AuthToken, nil), func() {}, nil
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Upload.FirestoreProject, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	default:
		return nil, nil, errors.New("no upload backend configured")
	}
}

// writeReport writes the JSON report when -output is set, or to stdout on a
// dry run.
func writeReport(report *output.Report, log zerolog.Logger) error {
	if *outputFile == "" && !report.DryRun {
		return nil
	}
	if err := output.WriteReportToFile(report, output.WriteOptions{FilePath: *outputFile}); err != nil {
		log.Error().Err(err).Msg("failed to write report")
		return err
	}
	if *outputFile != "" {
		ui.Success(fmt.Sprintf("Report written to %s", *outputFile))
	}
	return nil
}
