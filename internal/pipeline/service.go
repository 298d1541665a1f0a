package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/common"
	"github.com/showledger/receipt-pipeline/internal/corrections"
	"github.com/showledger/receipt-pipeline/internal/inference"
	"github.com/showledger/receipt-pipeline/internal/llm"
	"github.com/showledger/receipt-pipeline/internal/ocr"
	"github.com/showledger/receipt-pipeline/internal/warnings"
)

// ProcessedReceipt is the full result of one receipt run.
type ProcessedReceipt struct {
	Path              string                         `json:"path"`
	OCR               ocr.Result                     `json:"ocr"`
	Inference         inference.FieldInference       `json:"inference"`
	Categories        []inference.CategorySuggestion `json:"categorySuggestions,omitempty"`
	Warnings          []warnings.FieldWarning        `json:"warnings,omitempty"`
	OverallConfidence float64                        `json:"overallConfidence"`
	NeedsReview       bool                           `json:"needsReview"`
	ReviewReasons     []string                       `json:"reviewReasons,omitempty"`
	ProcessedAt       time.Time                      `json:"processedAt"`
}

// Service coordinates OCR, inference, enhancement and quality assessment.
// Providers are fixed after Initialize; the service is safe for concurrent use.
type Service struct {
	imageOCR ocr.Provider
	pdfOCR   ocr.Provider
	fallback ocr.Provider // image-only second opinion, may be nil

	engine   inference.Engine
	enhancer llm.Enhancer // nil disables enhancement
	store    corrections.Store
	cfg      common.PipelineConfig
	logger   *slog.Logger
}

func NewService(imageOCR, pdfOCR, fallback ocr.Provider, engine inference.Engine, enhancer llm.Enhancer, store corrections.Store, cfg common.PipelineConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}
	return &Service{
		imageOCR: imageOCR,
		pdfOCR:   pdfOCR,
		fallback: fallback,
		engine:   engine,
		enhancer: enhancer,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Initialize probes the configured providers once. A primary image provider
// that fails the probe is swapped for the fallback permanently; an
// unreachable enhancer is dropped for the life of the service.
func (s *Service) Initialize(ctx context.Context) error {
	if s.imageOCR == nil || s.engine == nil {
		return common.NewAppError("CONFIG_ERROR", "pipeline requires an image OCR provider and an inference engine", nil)
	}
	if s.pdfOCR == nil {
		s.pdfOCR = s.imageOCR
	}

	if !s.imageOCR.IsAvailable(ctx) {
		if s.fallback != nil && s.fallback.IsAvailable(ctx) {
			s.logger.Warn("pipeline.init.primary_swapped",
				"primary", s.imageOCR.Name(), "fallback", s.fallback.Name())
			s.imageOCR = s.fallback
			s.fallback = nil
		} else {
			return common.NewAppError("OCR_UNAVAILABLE",
				fmt.Sprintf("ocr provider %q failed availability probe", s.imageOCR.Name()), nil)
		}
	}

	if s.enhancer != nil && !s.enhancer.IsAvailable(ctx) {
		s.logger.Warn("pipeline.init.enhancer_unavailable", "enhancer", s.enhancer.Name())
		s.enhancer = nil
	}

	s.logger.Info("pipeline.init.ok",
		"image_ocr", s.imageOCR.Name(),
		"pdf_ocr", s.pdfOCR.Name(),
		"enhancer", s.enhancerName(),
	)
	return nil
}

func (s *Service) enhancerName() string {
	if s.enhancer == nil {
		return "none"
	}
	return s.enhancer.Name()
}

// ProcessReceipt runs the full pipeline over one file. OCR failure aborts the
// request; enhancement and analytics failures degrade to the pre-stage result.
func (s *Service) ProcessReceipt(ctx context.Context, path string) (*ProcessedReceipt, error) {
	ctx = common.EnsureRequestID(ctx)
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()

	format, err := routeFormat(path)
	if err != nil {
		return nil, err
	}

	res, err := s.runOCR(ctx, path, format)
	if err != nil {
		s.logger.Error("pipeline.ocr.failed", "req_id", rid, "path", path, "error", err)
		return nil, err
	}
	s.logger.Info("pipeline.ocr.ok",
		"req_id", rid,
		"provider", res.ProviderID,
		"confidence", res.Confidence,
		"lines", res.Metadata.LineCount,
	)

	inf := s.engine.Infer(res)
	categories := s.engine.SuggestCategories(res, inf)

	s.enhance(ctx, rid, res.Text, &inf)

	fieldWarnings := warnings.Analyze(inf, res.Text)

	overall := overallConfidence(&inf, res.Confidence)
	reasons := reviewReasons(&inf, res.Confidence)
	needsReview := len(reasons) > 0 || overall < 0.7

	out := &ProcessedReceipt{
		Path:              path,
		OCR:               res,
		Inference:         inf,
		Categories:        categories,
		Warnings:          fieldWarnings,
		OverallConfidence: overall,
		NeedsReview:       needsReview,
		ProcessedAt:       time.Now().UTC(),
	}
	if needsReview {
		// Attached only on review; an empty non-nil list means the
		// overall-confidence trigger fired alone.
		out.ReviewReasons = reasons
	}

	if s.cfg.LogResults {
		s.logger.Info("pipeline.receipt.ok",
			"req_id", rid,
			"path", path,
			"overall_confidence", overall,
			"needs_review", needsReview,
			"warnings", len(fieldWarnings),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return out, nil
}

// RecordCorrection persists a user correction for the learning loop.
func (s *Service) RecordCorrection(ctx context.Context, c corrections.UserCorrection) (uuid.UUID, error) {
	if !s.cfg.EnableCorrections {
		return uuid.Nil, common.NewAppError("CORRECTIONS_DISABLED", "correction capture is disabled", nil)
	}
	if s.store == nil {
		return uuid.Nil, common.NewAppError("CONFIG_ERROR", "no correction store configured", nil)
	}
	return s.store.StoreCorrection(ctx, c)
}

func routeFormat(path string) (constants.FileFormat, error) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	format := constants.MapExtToFormat(ext)
	if format == "" {
		return "", common.NewAppError("UNSUPPORTED_FILE",
			fmt.Sprintf("unsupported receipt extension %q", ext), common.ErrInvalidInput)
	}
	return format, nil
}

// runOCR picks the provider by format. Images below the confidence threshold
// get a second pass through the fallback; the higher-confidence result wins.
func (s *Service) runOCR(ctx context.Context, path string, format constants.FileFormat) (ocr.Result, error) {
	provider := s.imageOCR
	if format == constants.PDF {
		provider = s.pdfOCR
	}

	res, err := provider.Process(ctx, path)
	if err != nil {
		return ocr.Result{}, err
	}

	if format == constants.IMAGE && s.fallback != nil && res.Confidence < s.cfg.ConfidenceThreshold {
		alt, altErr := s.fallback.Process(ctx, path)
		if altErr != nil {
			s.logger.Warn("pipeline.ocr.fallback_failed", "provider", s.fallback.Name(), "error", altErr)
			return res, nil
		}
		if alt.Confidence > res.Confidence {
			s.logger.Info("pipeline.ocr.fallback_won",
				"primary_confidence", res.Confidence,
				"fallback_confidence", alt.Confidence,
			)
			return alt, nil
		}
	}
	return res, nil
}

// enhance re-extracts the low-confidence required fields through the LLM and
// merges the patch in place. Every failure here is logged and swallowed.
func (s *Service) enhance(ctx context.Context, rid, ocrText string, inf *inference.FieldInference) {
	if s.enhancer == nil {
		return
	}

	var weak []constants.FieldName
	for _, f := range constants.RequiredFields {
		if inf.RequiredConfidences()[f] < 0.7 {
			weak = append(weak, f)
		}
	}
	if len(weak) == 0 {
		return
	}

	patch, err := s.enhancer.ExtractFields(ctx, ocrText, weak)
	if err != nil {
		s.logger.Warn("pipeline.enhance.failed", "req_id", rid, "error", err)
		return
	}
	if patch.IsEmpty() {
		return
	}

	merged := 0
	merged += mergeField(&inf.Merchant, patch.Merchant)
	merged += mergeField(&inf.Amount, patch.Amount)
	merged += mergeField(&inf.Date, patch.Date)
	merged += mergeField(&inf.CardLastFour, patch.CardLastFour)
	merged += mergeField(&inf.Category, patch.Category)
	if merged > 0 {
		s.logger.Info("pipeline.enhance.ok", "req_id", rid, "fields_replaced", merged)
	}
}

// mergeField replaces dst with the patch only when dst is null or the patch
// is strictly more confident. The displaced value survives as the sole
// alternative. Returns 1 on replacement.
func mergeField[T any](dst *inference.FieldValue[T], patch *inference.FieldValue[T]) int {
	if patch == nil || patch.Value == nil {
		return 0
	}
	if dst.Value != nil && patch.Confidence <= dst.Confidence {
		return 0
	}
	var alts []inference.Alternative[T]
	if dst.Value != nil {
		alts = []inference.Alternative[T]{{Value: *dst.Value, Confidence: dst.Confidence}}
	}
	*dst = inference.FieldValue[T]{
		Value:        patch.Value,
		Confidence:   patch.Confidence,
		Source:       inference.SourceLLM,
		RawText:      patch.RawText,
		Alternatives: alts,
	}
	return 1
}

// overallConfidence blends the nonzero required-field confidences with the
// OCR confidence, 70/30.
func overallConfidence(inf *inference.FieldInference, ocrConfidence float64) float64 {
	var sum float64
	var n int
	for _, c := range inf.RequiredConfidences() {
		if c > 0 {
			sum += c
			n++
		}
	}
	var avg float64
	if n > 0 {
		avg = sum / float64(n)
	}
	return 0.7*avg + 0.3*ocrConfidence
}

// reviewReasons returns the fired fixed triggers, always non-nil.
func reviewReasons(inf *inference.FieldInference, ocrConfidence float64) []string {
	reasons := []string{}
	if ocrConfidence < 0.5 {
		reasons = append(reasons, "Low OCR quality")
	}
	if inf.Merchant.Value == nil || inf.Merchant.Confidence < 0.6 {
		reasons = append(reasons, "Merchant name unclear")
	}
	if inf.Amount.Value == nil || inf.Amount.Confidence < 0.6 {
		reasons = append(reasons, "Amount unclear")
	}
	if inf.Date.Value == nil || inf.Date.Confidence < 0.6 {
		reasons = append(reasons, "Date unclear")
	}
	if inf.Category.Value == nil || inf.Category.Confidence < 0.5 {
		reasons = append(reasons, "Category uncertain")
	}
	return reasons
}
