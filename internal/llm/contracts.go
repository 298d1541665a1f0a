package llm

import (
	"context"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

// FieldPatch is the partial re-extraction an enhancer returns: only the
// requested fields, each already wrapped with llm provenance.
type FieldPatch struct {
	Merchant     *inference.FieldValue[string]
	Amount       *inference.FieldValue[float64]
	Date         *inference.FieldValue[string]
	CardLastFour *inference.FieldValue[string]
	Category     *inference.FieldValue[string]
}

func (p FieldPatch) IsEmpty() bool {
	return p.Merchant == nil && p.Amount == nil && p.Date == nil &&
		p.CardLastFour == nil && p.Category == nil
}

// Validation is the result of a consistency check over an inference.
// It must never block the pipeline: failures default to Valid.
type Validation struct {
	Valid       bool              `json:"valid"`
	Issues      []string          `json:"issues,omitempty"`
	Corrections map[string]string `json:"corrections,omitempty"`
	Confidence  float64           `json:"confidence,omitempty"`
}

// Enhancer re-extracts low-confidence fields through an external
// text-completion service.
type Enhancer interface {
	ExtractFields(ctx context.Context, ocrText string, fields []constants.FieldName) (FieldPatch, error)
	ValidateFields(ctx context.Context, inf inference.FieldInference) (Validation, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

// EnhancedConfidence is assigned to every field the enhancer returns.
const EnhancedConfidence = 0.85

func llmField[T any](v T) *inference.FieldValue[T] {
	return &inference.FieldValue[T]{
		Value:      &v,
		Confidence: EnhancedConfidence,
		Source:     inference.SourceLLM,
	}
}
