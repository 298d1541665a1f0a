package llm

import (
	"context"
	"fmt"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/common"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

// stubEnhancer is a placeholder variant: it reports unavailable without a
// credential and fails hard if invoked directly.
type stubEnhancer struct {
	name   string
	apiKey string
}

func NewOpenAIStub(apiKey string) Enhancer { return &stubEnhancer{name: "openai-gpt4", apiKey: apiKey} }
func NewClaudeStub(apiKey string) Enhancer { return &stubEnhancer{name: "claude-3", apiKey: apiKey} }

func (s *stubEnhancer) Name() string { return s.name }

func (s *stubEnhancer) IsAvailable(context.Context) bool { return s.apiKey != "" }

func (s *stubEnhancer) ExtractFields(context.Context, string, []constants.FieldName) (FieldPatch, error) {
	return FieldPatch{}, fmt.Errorf("%s extraction not implemented: %w", s.name, common.ErrUnavailable)
}

func (s *stubEnhancer) ValidateFields(context.Context, inference.FieldInference) (Validation, error) {
	return Validation{}, fmt.Errorf("%s validation not implemented: %w", s.name, common.ErrUnavailable)
}
