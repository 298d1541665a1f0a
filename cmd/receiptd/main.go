package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/showledger/receipt-pipeline/internal/common"
	"github.com/showledger/receipt-pipeline/internal/corrections"
	"github.com/showledger/receipt-pipeline/internal/inference"
	"github.com/showledger/receipt-pipeline/internal/inference/adaptive"
	"github.com/showledger/receipt-pipeline/internal/ingest"
	"github.com/showledger/receipt-pipeline/internal/llm"
	"github.com/showledger/receipt-pipeline/internal/ocr"
	"github.com/showledger/receipt-pipeline/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.Ingest.Dir == "" {
		logger.Error("ingest.dir is required (RECEIPTD_INGEST_DIR)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	imageOCR, err := ocr.NewProvider(cfg.OCR.Provider, cfg.OCR, logger)
	if err != nil {
		logger.Error("build image ocr provider", "error", err)
		os.Exit(1)
	}
	pdfOCR, err := ocr.NewProvider("poppler", cfg.OCR, logger)
	if err != nil {
		logger.Error("build pdf ocr provider", "error", err)
		os.Exit(1)
	}
	var fallback ocr.Provider
	if cfg.OCR.FallbackProvider != "" {
		fallback, err = ocr.NewProvider(cfg.OCR.FallbackProvider, cfg.OCR, logger)
		if err != nil {
			logger.Error("build fallback ocr provider", "error", err)
			os.Exit(1)
		}
	}

	var engine inference.Engine = inference.NewRuleEngine(logger)
	var store corrections.Store
	if cfg.Store.DSN != "" {
		store, err = corrections.Open(ctx, cfg.Store, logger)
		if err != nil {
			logger.Error("open correction store", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		engine = adaptive.NewEngine(engine, store, logger)
	} else {
		logger.Warn("no store dsn configured, running without correction learning")
	}

	enhancer := llm.NewEnhancer(cfg.LLM, logger)

	svc := pipeline.NewService(imageOCR, pdfOCR, fallback, engine, enhancer, store, cfg.Pipeline, logger)
	if err := svc.Initialize(ctx); err != nil {
		logger.Error("pipeline init", "error", err)
		os.Exit(1)
	}

	queue := ingest.NewQueue(func(ctx context.Context, path string) error {
		_, perr := svc.ProcessReceipt(ctx, path)
		return perr
	}, logger)

	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{cfg.Ingest.Dir},
		InitialScan: true,
		Debounce:    cfg.Ingest.Debounce,
	}, logger)
	if err != nil {
		logger.Error("start watcher", "error", err)
		os.Exit(1)
	}

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case werr, ok := <-watchErrs:
			if ok && werr != nil {
				logger.Error("watcher error", "error", werr)
			}
		case path, ok := <-events:
			if !ok {
				running = false
				break
			}
			_ = queue.Enqueue(ctx, ingest.Job{Path: path, TraceID: uuid.NewString()})
		}
	}

	logger.Info("shutting down...")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	queue.Shutdown(drainCtx)
	logger.Info("receiptd stopped")
}
