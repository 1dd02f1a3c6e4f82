package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/rvilela/acerto/internal/config"
	"github.com/rvilela/acerto/internal/correction"
	"github.com/rvilela/acerto/internal/files"
	"github.com/rvilela/acerto/internal/infer"
	"github.com/rvilela/acerto/internal/ledger"
	"github.com/rvilela/acerto/internal/logger"
	"github.com/rvilela/acerto/internal/ocr"
	"github.com/rvilela/acerto/internal/pipeline"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		runIngest(cfg, log)
	case "fix":
		runFix(cfg, log)
	case "list":
		runList(cfg, log)
	case "history":
		runHistory(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("acerto - shared receipt ledger")
	fmt.Println("\nUsage:")
	fmt.Println("  acerto <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest    Ingest a chat transcript export and its attachments")
	fmt.Println("  fix       Correct one ledger entry by timestamp")
	fmt.Println("  list      List ledger entries and the running balance")
	fmt.Println("  history   List the correction history")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'acerto <command> -h' for more information on a command.")
}

// app bundles the wired components shared by the subcommands.
type app struct {
	repo      *ledger.SQLiteRepository
	parties   ledger.Parties
	resolver  *files.Resolver
	cache     *ocr.Cache
	extractor *ocr.Extractor
	inferrer  *infer.Engine
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	repo, err := ledger.OpenSQLite(cfg.LedgerDBPath)
	if err != nil {
		return nil, err
	}

	cache, err := ocr.OpenCache(cfg.OCRCachePath)
	if err != nil {
		repo.Close()
		return nil, err
	}

	resolver := files.NewResolver(cfg.IncomingDir, cfg.ProcessedDir)
	extractor := ocr.NewExtractor(cache, resolver, &ocr.TesseractEngine{Language: cfg.OCRLanguage})

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		if !errors.Is(err, infer.ErrNoProvider) {
			cache.Close()
			repo.Close()
			return nil, err
		}
		// No credentials: extraction degrades to unknown records.
		log.Warn().Str("provider", cfg.LLMProvider).Msg("no LLM credentials, running degraded")
		provider = nil
	}

	return &app{
		repo:      repo,
		parties:   ledger.Parties{A: cfg.PartyA, B: cfg.PartyB},
		resolver:  resolver,
		cache:     cache,
		extractor: extractor,
		inferrer:  infer.NewEngine(provider, cfg.LLMTimeout),
	}, nil
}

func newProvider(ctx context.Context, cfg *config.Config) (infer.Provider, error) {
	switch cfg.LLMProvider {
	case "claude":
		return infer.NewClaude(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	case "gemini":
		return infer.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q, want gemini or claude", cfg.LLMProvider)
	}
}

func (a *app) close() {
	a.cache.Close()
	a.repo.Close()
}

func runIngest(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	chatPath := fs.String("chat", "", "Path to the exported chat transcript (.txt)")
	fs.Parse(os.Args[2:])

	if *chatPath == "" {
		log.Fatal().Msg("Error: -chat is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.close()

	ing := pipeline.NewIngestor(a.repo, a.parties, a.resolver, a.extractor, a.inferrer,
		cfg.WorkerCount, cfg.IncomingDir, cfg.ProcessedDir)

	sum, err := ing.Run(ctx, *chatPath)
	if err != nil {
		log.Fatal().Err(err).Msg("ingestion failed")
	}

	fmt.Printf("Attachments found: %d\n", sum.Found)
	fmt.Printf("Already in ledger: %d\n", sum.AlreadyKnown)
	fmt.Printf("Added:             %d\n", sum.Added)
	if sum.FileMissing > 0 {
		fmt.Printf("Files missing:     %d\n", sum.FileMissing)
	}
	if sum.Failed > 0 {
		fmt.Printf("Failed:            %d\n", sum.Failed)
	}
}

func runFix(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("fix", flag.ExitOnError)
	timestamp := fs.String("timestamp", "", "Entry timestamp, DD/MM/YYYY HH:MM:SS")
	amount := fs.String("amount", "", "New amount")
	classification := fs.String("classification", "", "New classification (transferencia|pagamento|desconhecido)")
	description := fs.String("description", "", "New description")
	dismiss := fs.Bool("dismiss", false, "Exclude the entry from totals")
	rotate := fs.Int("rotate", 0, "Rotate the attachment by 90, 180 or 270 degrees")
	reinfer := fs.Bool("reinfer", false, "Re-run OCR and inference, report derived values")
	fs.Parse(os.Args[2:])

	if *timestamp == "" {
		log.Fatal().Msg("Error: -timestamp is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.close()

	eng := correction.NewEngine(a.repo, a.parties, a.resolver, a.extractor, a.inferrer, cfg.CorrectionLog)
	out, err := eng.Fix(ctx, correction.Request{
		Timestamp:         *timestamp,
		NewAmount:         *amount,
		NewClassification: *classification,
		NewDescription:    *description,
		Dismiss:           *dismiss,
		RotateDegrees:     *rotate,
		Reinfer:           *reinfer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("correction failed")
	}

	e := out.Entry
	fmt.Printf("Entry %s (%s)\n", e.Timestamp.Format(ledger.TimestampLayout), e.Sender)
	fmt.Printf("  classification: %s\n", e.Classification)
	fmt.Printf("  amount:         %s\n", orDash(e.Amount))
	fmt.Printf("  description:    %s\n", orDash(e.Description))
	if e.Disregarded {
		fmt.Println("  disregarded:    yes")
	}
	if e.Annotation != "" {
		fmt.Printf("  annotation:     %s\n", e.Annotation)
	}
	if out.Reinferred != nil {
		fmt.Println("Re-inferred values (not applied):")
		fmt.Printf("  amount:         %s\n", orDash(out.Reinferred.Amount))
		fmt.Printf("  classification: %s\n", out.Reinferred.Classification)
		fmt.Printf("  description:    %s\n", orDash(out.Reinferred.Description))
	}
}

func runList(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	month := fs.String("month", "", "Only entries in this month (MM/YYYY)")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.close()

	entries, err := a.repo.LoadAll(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load failed")
	}

	for _, e := range entries {
		if *month != "" && e.Timestamp.Format("01/2006") != *month {
			continue
		}
		printEntry(e)
	}

	balA, balB := ledger.Balance(entries)
	fmt.Printf("\nBalance: %s %s / %s %s\n",
		a.parties.A, balA.StringFixed(2), a.parties.B, balB.StringFixed(2))
}

func printEntry(e ledger.Entry) {
	ts := e.Timestamp.Format(ledger.TimestampLayout)
	if e.MonthTotal {
		fmt.Printf("%s  TOTAL                      %10s %10s  %s\n",
			ts, orDash(e.PartyAmount(0)), orDash(e.PartyAmount(1)), e.Description)
		return
	}
	mark := " "
	if e.Disregarded {
		mark = "x"
	}
	fmt.Printf("%s %s %-10s %-14s %10s %10s  %s\n",
		ts, mark, e.Sender, e.Classification,
		orDash(e.PartyAmount(0)), orDash(e.PartyAmount(1)), orDash(e.Description))
}

func runHistory(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer a.close()

	recs, err := a.repo.ListCorrections(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load failed")
	}

	for _, rec := range recs {
		status := "ok"
		if !rec.Success {
			status = "FAILED: " + rec.Error
		}
		fmt.Printf("%s  %-14s  entry %s  (%s, %s)\n",
			rec.ExecutedAt.Format("2006-01-02 15:04:05"), rec.Command,
			rec.EntryTimestamp.Format(ledger.TimestampLayout), rec.Duration.Round(time.Millisecond), status)
		for field, ch := range rec.Changes {
			fmt.Printf("    %s: %q -> %q\n", field, ch.Old, ch.New)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
