package llm

import (
	"log/slog"
	"strings"

	"github.com/showledger/receipt-pipeline/internal/common"
)

// NewEnhancer builds the configured enhancer variant, or nil when none is
// configured or the name is unknown.
func NewEnhancer(cfg common.LLMConfig, logger *slog.Logger) Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil
	case "ollama", "local":
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	case "openai", "gpt4":
		return NewOpenAIStub(cfg.APIKey)
	case "claude", "claude-3":
		return NewClaudeStub(cfg.APIKey)
	default:
		logger.Warn("llm.factory.unknown_provider", "provider", cfg.Provider)
		return nil
	}
}
