package inference

import (
	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/ocr"
)

// Source tags where a field value came from.
type Source string

const (
	SourceOCR       Source = "ocr"
	SourceInference Source = "inference"
	SourceLLM       Source = "llm"
	SourceUser      Source = "user"
)

// Alternative is a runner-up candidate for a field.
type Alternative[T any] struct {
	Value      T       `json:"value"`
	Confidence float64 `json:"confidence"`
}

// FieldValue is one extracted field with provenance. A nil Value always
// carries Confidence 0.
type FieldValue[T any] struct {
	Value        *T               `json:"value"`
	Confidence   float64          `json:"confidence"`
	Source       Source           `json:"source"`
	RawText      string           `json:"rawText,omitempty"`
	Alternatives []Alternative[T] `json:"alternatives,omitempty"`
}

// Empty returns the null field value.
func Empty[T any]() FieldValue[T] {
	return FieldValue[T]{Confidence: 0, Source: SourceInference}
}

func ptr[T any](v T) *T { return &v }

// FieldInference is the full per-receipt bag of extracted fields. Built fresh
// per receipt; never mutated across requests. The JSON names key the stored
// snapshots that correction mining groups on.
type FieldInference struct {
	Merchant     FieldValue[string]  `json:"merchant"`
	Amount       FieldValue[float64] `json:"amount"`
	Date         FieldValue[string]  `json:"date"`
	CardLastFour FieldValue[string]  `json:"cardLastFour"`
	Category     FieldValue[string]  `json:"category"`
	Location     FieldValue[string]  `json:"location"`
	TaxAmount    FieldValue[float64] `json:"taxAmount"`
	TipAmount    FieldValue[float64] `json:"tipAmount"`
}

// RequiredConfidences maps the five required fields to their confidences.
func (fi *FieldInference) RequiredConfidences() map[constants.FieldName]float64 {
	return map[constants.FieldName]float64{
		constants.FieldMerchant:     fi.Merchant.Confidence,
		constants.FieldAmount:       fi.Amount.Confidence,
		constants.FieldDate:         fi.Date.Confidence,
		constants.FieldCardLastFour: fi.CardLastFour.Confidence,
		constants.FieldCategory:     fi.Category.Confidence,
	}
}

// CategorySuggestion is one ranked category candidate.
type CategorySuggestion struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"matchedKeywords"`
	Source     string   `json:"source"`
}

// Engine turns raw OCR output into structured fields.
type Engine interface {
	Infer(res ocr.Result) FieldInference
	SuggestCategories(res ocr.Result, inf FieldInference) []CategorySuggestion
	Name() string
}
