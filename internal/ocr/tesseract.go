package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/showledger/receipt-pipeline/internal/common"
)

// TesseractConfig configures the tesseract-backed image provider.
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Languages   string // default "eng"
	TessdataDir string

	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	Timeout time.Duration // per-Process hard deadline, default 30s
}

// TesseractProvider runs the tesseract binary against image files.
type TesseractProvider struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseractProvider(cfg TesseractConfig, logger *slog.Logger) *TesseractProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Languages == "" {
		cfg.Languages = "eng"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TesseractProvider{cfg: cfg, runner: newExecRunner(logger), logger: logger}
}

func (p *TesseractProvider) Name() string { return "tesseract" }

// IsAvailable probes the binary with a version call.
func (p *TesseractProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, _, err := p.runner.Run(ctx, p.cfg.Binary, "--version")
	return err == nil
}

func (p *TesseractProvider) Process(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	txt, warns, err := p.ocr(ctx, path)
	if err != nil {
		return Result{}, classifyToolErr(ctx, err)
	}
	txt = Normalize(txt)

	var tsvConf float64
	if p.cfg.EnableTSVConfidence {
		c, err2 := p.tsvConfidence(ctx, path)
		if err2 != nil {
			warns = append(warns, err2.Error())
		} else {
			tsvConf = c
		}
	}
	heurConf := heuristicConfidence(txt)

	// blend: weight measured word confidence higher when present
	conf := heurConf
	if tsvConf > 0 {
		conf = 0.7*tsvConf + 0.3*heurConf
	}
	if conf > 1.0 {
		conf = 1.0
	}

	return Result{
		Text:           txt,
		Confidence:     conf,
		ProviderID:     p.Name(),
		ProcessingTime: time.Since(start),
		Metadata: Metadata{
			Pages:     1,
			LineCount: countLines(txt),
			Language:  p.cfg.Languages,
			Method:    "image-ocr",
			Warnings:  warns,
		},
	}, nil
}

func (p *TesseractProvider) ocr(ctx context.Context, path string) (string, []string, error) {
	args := []string{path, "stdout", "-l", p.cfg.Languages}
	if p.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", p.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := p.runner.Run(ctx, p.cfg.Binary, args...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}

	// minor cleanup of obvious line noise
	txt := reBoxNoise.ReplaceAllString(string(out), "")
	return txt, nil, nil
}

// tsvConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (p *TesseractProvider) tsvConfidence(ctx context.Context, path string) (float64, error) {
	args := []string{path, "stdout", "-l", p.cfg.Languages}
	if p.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(p.cfg.PSM))
	}
	if p.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(p.cfg.OEM))
	}
	if p.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", p.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, _, err := p.runner.Run(ctx, p.cfg.Binary, args...)
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w", err)
	}
	lines := strings.Split(string(out), "\n")
	// columns: level..height, conf, text; conf is second to last
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / n / 100.0, nil
}

// classifyToolErr keeps deadline expiry distinct from other tool failures.
func classifyToolErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, common.ErrTimeout)
	}
	return err
}
