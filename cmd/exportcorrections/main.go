package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/showledger/receipt-pipeline/internal/common"
	"github.com/showledger/receipt-pipeline/internal/corrections"
)

// exportcorrections dumps the stored corrections to an xlsx workbook for
// offline model analysis.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		out      = flag.String("out", "corrections.xlsx", "output workbook path")
		fromFlag = flag.String("from", "", "window start, YYYY-MM-DD (optional)")
		toFlag   = flag.String("to", "", "window end, YYYY-MM-DD (optional)")
	)
	flag.Parse()

	from, err := parseDay(*fromFlag)
	if err != nil {
		logger.Error("invalid -from", "value", *fromFlag, "error", err)
		os.Exit(2)
	}
	to, err := parseDay(*toFlag)
	if err != nil {
		logger.Error("invalid -to", "value", *toFlag, "error", err)
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := corrections.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("open correction store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	exporter := corrections.NewExporter(store, logger)
	data, err := exporter.ExportXLSX(ctx, from, to)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write workbook", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("export OK", "path", *out, "bytes", len(data))
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
