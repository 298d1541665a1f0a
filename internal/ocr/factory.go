package ocr

import (
	"fmt"
	"log/slog"

	"github.com/showledger/receipt-pipeline/internal/common"
)

// NewProvider builds a provider from the closed variant set by name.
func NewProvider(name string, cfg common.OCRConfig, logger *slog.Logger) (Provider, error) {
	tess := NewTesseractProvider(TesseractConfig{
		Binary:              cfg.TesseractBinary,
		Languages:           cfg.Languages,
		EnableTSVConfidence: true,
		Timeout:             cfg.Timeout,
	}, logger)

	switch name {
	case "tesseract", "":
		return tess, nil
	case "poppler":
		return NewPopplerProvider(PopplerConfig{
			Pdftotext: cfg.PdfToTextBinary,
			Pdftoppm:  cfg.PdfToPpmBinary,
			Timeout:   cfg.Timeout,
		}, tess, logger), nil
	default:
		return nil, fmt.Errorf("unknown ocr provider %q: %w", name, common.ErrInvalidInput)
	}
}
