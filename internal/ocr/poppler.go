package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PopplerConfig configures the PDF-capable provider.
type PopplerConfig struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"

	DPI      int // rasterization DPI for scanned PDFs, default 300
	MaxPages int // 0 = no limit

	Timeout time.Duration // per-Process hard deadline, default 30s
}

// PopplerProvider extracts text from PDFs. It tries the embedded text layer
// first and falls back to rasterizing each page through the image provider
// when the layer is empty (scanned PDFs).
type PopplerProvider struct {
	cfg    PopplerConfig
	image  *TesseractProvider
	runner Runner
	logger *slog.Logger
}

func NewPopplerProvider(cfg PopplerConfig, image *TesseractProvider, logger *slog.Logger) *PopplerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &PopplerProvider{cfg: cfg, image: image, runner: newExecRunner(logger), logger: logger}
}

func (p *PopplerProvider) Name() string { return "poppler" }

func (p *PopplerProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, _, err := p.runner.Run(ctx, p.cfg.Pdftotext, "-v"); err != nil {
		return false
	}
	return p.image == nil || p.image.IsAvailable(ctx)
}

func (p *PopplerProvider) Process(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	text, pages, err := p.pdfToText(ctx, path)
	if err != nil {
		return Result{}, classifyToolErr(ctx, err)
	}
	text = Normalize(text)

	if text != "" {
		return Result{
			Text:           text,
			Confidence:     0.95, // text layer, no recognition involved
			ProviderID:     p.Name(),
			ProcessingTime: time.Since(start),
			Metadata: Metadata{
				Pages:     pages,
				LineCount: countLines(text),
				Method:    "pdf-text",
			},
		}, nil
	}

	p.logger.Debug("ocr.pdf.empty_text_layer", "path", path)
	text, pages, warns, err := p.pdfToOCR(ctx, path)
	if err != nil {
		return Result{}, classifyToolErr(ctx, err)
	}
	text = Normalize(text)

	lang := ""
	if p.image != nil {
		lang = p.image.cfg.Languages
	}
	return Result{
		Text:           text,
		Confidence:     heuristicConfidence(text),
		ProviderID:     p.Name(),
		ProcessingTime: time.Since(start),
		Metadata: Metadata{
			Pages:     pages,
			LineCount: countLines(text),
			Language:  lang,
			Method:    "pdf-ocr",
			Warnings:  warns,
		},
	}, nil
}

func (p *PopplerProvider) pdfToText(ctx context.Context, path string) (string, int, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, _, err := p.runner.Run(ctx, p.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, fmt.Errorf("pdftotext: %w", err)
	}
	text := string(out)
	// form feed separates pages
	pages := 1 + strings.Count(text, "\f")
	return text, pages, nil
}

func (p *PopplerProvider) pdfToOCR(ctx context.Context, path string) (string, int, []string, error) {
	if p.image == nil {
		return "", 0, nil, fmt.Errorf("scanned pdf %q requires an image provider", path)
	}

	tmpDir, err := os.MkdirTemp("", "rp-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("ocr.pdf.tmp_cleanup_failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, _, err = p.runner.Run(ctx, p.cfg.Pdftoppm, "-r", strconv.Itoa(p.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return "", 0, nil, fmt.Errorf("pdftoppm: %w", err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if p.cfg.MaxPages > 0 && len(matches) > p.cfg.MaxPages {
		matches = matches[:p.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, nil, fmt.Errorf("pdftoppm produced no images")
	}

	var b strings.Builder
	var warns []string
	for _, img := range matches {
		txt, w, err := p.image.ocr(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(txt)
		warns = append(warns, w...)
	}
	return b.String(), len(matches), warns, nil
}
