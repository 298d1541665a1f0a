package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/showledger/receipt-pipeline/internal/common"
	"github.com/showledger/receipt-pipeline/internal/inference"
	"github.com/showledger/receipt-pipeline/internal/llm"
	"github.com/showledger/receipt-pipeline/internal/ocr"
	"github.com/showledger/receipt-pipeline/internal/pipeline"
)

// runocr processes a single receipt file and prints the full result as JSON
// on stdout. Logs go to stderr so the output stays machine-readable.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <receipt-file>")
		os.Exit(2)
	}
	path := os.Args[1]
	if _, err := os.Stat(path); err != nil {
		logger.Error("cannot read input file", "path", path, "error", err)
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

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

	engine := inference.NewRuleEngine(logger)
	enhancer := llm.NewEnhancer(cfg.LLM, logger)

	svc := pipeline.NewService(imageOCR, pdfOCR, nil, engine, enhancer, nil, cfg.Pipeline, logger)
	if err := svc.Initialize(ctx); err != nil {
		logger.Error("pipeline init", "error", err)
		os.Exit(1)
	}

	res, err := svc.ProcessReceipt(ctx, path)
	if err != nil {
		logger.Error("processing failed", "path", path, "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
