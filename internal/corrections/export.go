package corrections

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Exporter produces the training workbook from the correction corpus.
type Exporter struct {
	store  Store
	logger *slog.Logger
}

func NewExporter(store Store, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{store: store, logger: logger}
}

// ExportXLSX returns an XLSX workbook (as bytes) of training rows in the
// given date window. Nil bounds leave that side of the window open.
func (e *Exporter) ExportXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	recs, err := e.store.ExportForTraining(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query corrections: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Corrections"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Created At",
		"OCR Confidence",
		"Fields Corrected",
		"Corrected Merchant",
		"Corrected Amount",
		"Corrected Date",
		"Corrected Card",
		"Corrected Category",
		"OCR Text",
		"Original Predictions",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.CreatedAt.Format("2006-01-02 15:04:05"))
		write(2, r.OCRConfidence)
		write(3, strings.Join(r.FieldsCorrected, ", "))
		write(4, deref(r.Corrections.Merchant))
		if r.Corrections.Amount != nil {
			write(5, *r.Corrections.Amount)
		}
		write(6, deref(r.Corrections.Date))
		write(7, deref(r.Corrections.CardLastFour))
		write(8, deref(r.Corrections.Category))
		write(9, truncateCell(r.Input, 2000))
		write(10, truncateCell(string(r.OriginalPredictions), 2000))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 14)
	_ = f.SetColWidth(sheet, "C", "C", 30)
	_ = f.SetColWidth(sheet, "D", "H", 22)
	_ = f.SetColWidth(sheet, "I", "J", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("export.corrections.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func truncateCell(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
