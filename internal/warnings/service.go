package warnings

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/corrections"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

// Severity ranks how suspicious a field looks.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FieldWarning flags a field value that is likely inaccurate. Ephemeral:
// computed per request, never stored.
type FieldWarning struct {
	Field           constants.FieldName `json:"field"`
	Reason          string              `json:"reason"`
	Severity        Severity            `json:"severity"`
	SuggestedAction string              `json:"suggestedAction,omitempty"`
}

var (
	reDescriptionWords = regexp.MustCompile(`(?i)your ride to|trip to|order from|delivery from|purchase at|booking for`)
	reAddressInName    = regexp.MustCompile(`(?i)\d+\s+[A-Za-z]+\s+(street|st|avenue|ave|blvd|road|rd|drive|dr)`)
)

// Analyze runs the per-field heuristics over an already-produced inference.
// Heuristics run regardless of confidence so high-confidence-but-wrong
// values still surface.
func Analyze(inf inference.FieldInference, ocrText string) []FieldWarning {
	var out []FieldWarning
	if inf.Merchant.Value != nil {
		out = append(out, checkMerchant(*inf.Merchant.Value, inf.Merchant.Confidence)...)
	}
	if inf.Amount.Value != nil {
		out = append(out, checkAmount(*inf.Amount.Value, inf.Amount.Alternatives)...)
	}
	if inf.Date.Value != nil {
		out = append(out, checkDate(*inf.Date.Value)...)
	}
	if inf.Category.Value != nil {
		out = append(out, checkCategory(*inf.Category.Value, inf.Category.Confidence)...)
	}
	return out
}

func checkMerchant(merchant string, confidence float64) []FieldWarning {
	var out []FieldWarning

	if len(merchant) > 50 {
		out = append(out, FieldWarning{
			Field:           constants.FieldMerchant,
			Reason:          "Merchant name is unusually long - may be a description instead of business name",
			Severity:        SeverityHigh,
			SuggestedAction: "Verify this is the actual merchant name, not a transaction description",
		})
	}
	if reDescriptionWords.MatchString(merchant) {
		out = append(out, FieldWarning{
			Field:           constants.FieldMerchant,
			Reason:          "Contains transaction description keywords",
			Severity:        SeverityHigh,
			SuggestedAction: `Extract the actual merchant name (e.g., "Uber" instead of "Your ride to...")`,
		})
	}
	if reAddressInName.MatchString(merchant) {
		out = append(out, FieldWarning{
			Field:           constants.FieldMerchant,
			Reason:          "Contains full address - merchant name should be business name only",
			Severity:        SeverityMedium,
			SuggestedAction: "Remove address from merchant name",
		})
	}
	if confidence >= 0.9 && (len(merchant) > 60 || reDescriptionWords.MatchString(merchant)) {
		out = append(out, FieldWarning{
			Field:           constants.FieldMerchant,
			Reason:          "High OCR confidence, but value looks incorrect",
			Severity:        SeverityHigh,
			SuggestedAction: "Double-check this field - OCR may have extracted wrong text",
		})
	}
	return out
}

func checkAmount(amount float64, alternatives []inference.Alternative[float64]) []FieldWarning {
	var out []FieldWarning

	if len(alternatives) >= 2 {
		alts := make([]string, len(alternatives))
		for i, a := range alternatives {
			alts[i] = fmt.Sprintf("$%.2f", a.Value)
		}
		out = append(out, FieldWarning{
			Field:           constants.FieldAmount,
			Reason:          fmt.Sprintf("Multiple amounts found on receipt: $%.2f, %s", amount, strings.Join(alts, ", ")),
			Severity:        SeverityMedium,
			SuggestedAction: "Verify this is the total (not subtotal, tax, or tip)",
		})
	}
	if amount > 0 && amount < 1 {
		out = append(out, FieldWarning{
			Field:           constants.FieldAmount,
			Reason:          "Amount is less than $1 - may be a fee or charge, not the total",
			Severity:        SeverityMedium,
			SuggestedAction: "Check if this is the full amount or just a line item",
		})
	}
	if amount > 10000 {
		out = append(out, FieldWarning{
			Field:           constants.FieldAmount,
			Reason:          "Amount exceeds $10,000 - please verify",
			Severity:        SeverityLow,
			SuggestedAction: "Confirm this large amount is correct",
		})
	}
	return out
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01/02/06",
	"1/2/06",
	"January 2, 2006",
	"January 2 2006",
}

func parseReceiptDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func checkDate(date string) []FieldWarning {
	parsed, ok := parseReceiptDate(date)
	if !ok {
		return []FieldWarning{{
			Field:           constants.FieldDate,
			Reason:          "Date format could not be validated",
			Severity:        SeverityMedium,
			SuggestedAction: "Verify date is in correct format",
		}}
	}

	var out []FieldWarning
	now := time.Now()
	if parsed.After(now.AddDate(0, 1, 0)) {
		out = append(out, FieldWarning{
			Field:           constants.FieldDate,
			Reason:          "Date is more than 1 month in the future",
			Severity:        SeverityHigh,
			SuggestedAction: "Verify the year is correct (OCR may have misread it)",
		})
	}
	if parsed.Before(now.AddDate(0, -6, 0)) {
		out = append(out, FieldWarning{
			Field:           constants.FieldDate,
			Reason:          "Date is more than 6 months old",
			Severity:        SeverityLow,
			SuggestedAction: "Confirm this is the correct transaction date",
		})
	}
	return out
}

func checkCategory(category string, confidence float64) []FieldWarning {
	var out []FieldWarning
	if confidence < 0.6 {
		out = append(out, FieldWarning{
			Field:           constants.FieldCategory,
			Reason:          "Low confidence in category assignment",
			Severity:        SeverityLow,
			SuggestedAction: "Review and select the most appropriate category",
		})
	}
	if category == string(constants.Other) && confidence < 0.7 {
		out = append(out, FieldWarning{
			Field:           constants.FieldCategory,
			Reason:          "Could not determine specific category",
			Severity:        SeverityLow,
			SuggestedAction: "Manually select the correct category",
		})
	}
	return out
}

// Accuracy reports how often a field survives without correction. The
// extraction total is approximated as corrections + distinct corrected
// receipts, which undercounts untouched extractions.
type Accuracy struct {
	TotalExtractions int     `json:"totalExtractions"`
	CorrectionCount  int     `json:"correctionCount"`
	AccuracyRate     float64 `json:"accuracyRate"`
}

// CountSource is the slice of the correction store accuracy reads.
type CountSource interface {
	FieldCorrectionCounts(ctx context.Context, field constants.FieldName, daysBack int) (corrections.FieldCounts, error)
}

// Service adds the store-backed accuracy query to the stateless heuristics.
type Service struct {
	source CountSource
	logger *slog.Logger
}

func NewService(source CountSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

// HistoricalAccuracy degrades to a perfect-accuracy default on query failure;
// it serves read-only reporting and must not propagate store errors.
func (s *Service) HistoricalAccuracy(ctx context.Context, field constants.FieldName, daysBack int) Accuracy {
	if s.source == nil {
		return Accuracy{AccuracyRate: 100}
	}
	counts, err := s.source.FieldCorrectionCounts(ctx, field, daysBack)
	if err != nil {
		s.logger.Error("warnings.accuracy.query_failed", "field", string(field), "error", err)
		return Accuracy{AccuracyRate: 100}
	}

	total := counts.CorrectionCount + counts.DistinctExpenseCount
	rate := 100.0
	if total > 0 {
		rate = float64(total-counts.CorrectionCount) / float64(total) * 100
	}
	return Accuracy{
		TotalExtractions: total,
		CorrectionCount:  counts.CorrectionCount,
		AccuracyRate:     rate,
	}
}
