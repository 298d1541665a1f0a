package ocr

import (
	"context"
	"strings"
	"time"
)

// Result is the raw output of one OCR invocation. Immutable once produced.
type Result struct {
	Text           string
	Confidence     float64 // 0..1
	ProviderID     string
	ProcessingTime time.Duration
	Metadata       Metadata
}

// Metadata carries optional detail about the extraction.
type Metadata struct {
	Pages     int
	LineCount int
	Language  string
	Method    string // "image-ocr" | "pdf-text" | "pdf-ocr"
	Warnings  []string
}

// Provider turns an image or PDF path into raw text plus a confidence scalar.
// Process is bounded by the provider's configured timeout; expiry surfaces as
// common.ErrTimeout, never as a zero-confidence success.
type Provider interface {
	Process(ctx context.Context, path string) (Result, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

func countLines(text string) int {
	n := 0
	for _, ln := range strings.Split(text, "\n") {
		if strings.TrimSpace(ln) != "" {
			n++
		}
	}
	return n
}
