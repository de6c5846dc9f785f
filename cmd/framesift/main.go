package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/jaywalked78/framesift/internal/analyzer"
	"github.com/jaywalked78/framesift/internal/anthropic"
	"github.com/jaywalked78/framesift/internal/api"
	"github.com/jaywalked78/framesift/internal/config"
	"github.com/jaywalked78/framesift/internal/events"
	"github.com/jaywalked78/framesift/internal/frames"
	"github.com/jaywalked78/framesift/internal/notify"
	"github.com/jaywalked78/framesift/internal/ocr"
	"github.com/jaywalked78/framesift/internal/processor"
	"github.com/jaywalked78/framesift/internal/resolver"
	"github.com/jaywalked78/framesift/internal/retry"
	"github.com/jaywalked78/framesift/internal/runstate"
	"github.com/jaywalked78/framesift/internal/store"
	"github.com/jaywalked78/framesift/internal/worker"
	"github.com/jaywalked78/framesift/internal/writer"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("framesift starting", "port", cfg.Port)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel the run on SIGINT/SIGTERM; state is saved after every batch,
	// so an interrupted run resumes where it left off.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutdown signal received, cancelling run")
		cancel()
	}()

	// Frame list
	paths, err := frames.LoadList(cfg.FrameListPath)
	if err != nil {
		slog.Error("failed to load frame list", "path", cfg.FrameListPath, "error", err)
		os.Exit(1)
	}
	slog.Info("frame list loaded", "path", cfg.FrameListPath, "frames", len(paths))

	policy, err := worker.ParsePolicy(cfg.OrderPolicy)
	if err != nil {
		slog.Error("invalid order policy", "error", err)
		os.Exit(1)
	}

	// Record store. Postgres when DATABASE_URL is set, Airtable otherwise;
	// Airtable gets one client per worker so credentials rotate.
	var pg *store.Postgres
	credentials := cfg.AirtableAPIKeys
	if cfg.DatabaseURL != "" {
		pg, err = store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		slog.Info("database connected")
		// rotation still needs a credential per worker; the value is unused
		credentials = []string{"postgres"}
	}

	// LLM analysis (optional — pattern fallback covers frames without it)
	var llm analyzer.Completer
	if cfg.AnthropicAPIKey != "" {
		llm = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, using pattern fallback only")
	}

	// Run state
	state, err := runstate.Load(cfg.StatePath)
	if err != nil {
		slog.Error("failed to load run state", "path", cfg.StatePath, "error", err)
		os.Exit(1)
	}
	state.Policy = string(policy)
	state.Workers = cfg.Workers
	state.FramesTotal = len(paths)

	// NATS events (optional)
	var publisher processor.OutcomePublisher
	var eventsClient *events.Publisher
	if cfg.NatsURL != "" {
		eventsClient, err = events.Connect(cfg.NatsURL, cfg.NatsToken, state.RunID, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer eventsClient.Close()
		publisher = eventsClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	ocrExec := ocr.NewExecutor(cfg.OCRBinary, cfg.OCRArgs, cfg.OCRTimeout, slog.Default())

	fields := processor.FieldNames{
		OCRText:        cfg.OCRField,
		Flagged:        cfg.FlaggedField,
		SensitiveTypes: cfg.TypesField,
	}
	retryPolicy := retry.Default(nil)
	retryPolicy.MaxRetries = cfg.MaxRetries

	factory := func(idx int, credential string, limiter *rate.Limiter) worker.BatchProcessor {
		var st store.Store
		if pg != nil {
			st = pg
		} else {
			st = store.NewAirtable(credential, cfg.AirtableBaseID, cfg.AirtableTable, cfg.PathField)
		}
		st = store.Limit(st, limiter)

		logger := slog.Default().With("worker", idx)
		res := resolver.New(st, cfg.PathField, logger)
		an := analyzer.New(llm, cfg.AnalysisTimeout, logger)
		wr := writer.New(st, retryPolicy, cfg.OCRField, logger)
		return processor.New(res, ocrExec, an, wr, publisher, fields,
			cfg.FrameTimeout, cfg.BatchTimeout, logger)
	}

	pool := worker.NewPool(worker.Config{
		Workers:     cfg.Workers,
		Policy:      policy,
		Stagger:     cfg.Stagger,
		BatchSize:   cfg.BatchSize,
		Credentials: credentials,
		RatePerSec:  cfg.RatePerSec,
		RateBurst:   cfg.RateBurst,
	}, factory, state, slog.Default())

	// Status API
	srv := api.NewServer(cfg.Port, state)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	start := time.Now()
	summary, err := pool.Run(ctx, paths)
	if err != nil {
		slog.Error("run failed to start", "error", err)
		os.Exit(1)
	}

	snap := state.Snapshot()
	slog.Info("run finished",
		"run_id", snap.RunID,
		"elapsed", time.Since(start).Round(time.Second),
		"updated", summary.Updated,
		"skipped_no_record", summary.SkippedNoRecord,
		"skipped_duplicate", summary.SkippedDuplicate,
		"failed", summary.Failed,
		"worker_errors", len(summary.WorkerErrors))

	if eventsClient != nil {
		eventsClient.RunCompleted(summary.Updated, summary.SkippedNoRecord,
			summary.SkippedDuplicate, summary.Failed, summary.OK())
	}

	if cfg.WebhookURL != "" {
		notifier := notify.New(cfg.WebhookURL, slog.Default())
		nctx, ncancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := notifier.PostRunSummary(nctx, snap, time.Since(start)); err != nil {
			slog.Warn("failed to post run summary", "error", err)
		}
		ncancel()
	}

	if !summary.OK() {
		for idx, werr := range summary.WorkerErrors {
			slog.Error("worker failed", "worker", idx, "error", werr)
		}
		os.Exit(1)
	}
	slog.Info("framesift stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
