package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/common"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

// OllamaConfig configures the local prompt-completion client.
type OllamaConfig struct {
	BaseURL     string // default http://localhost:11434
	Model       string // default llama3.2
	Temperature float64
	Timeout     time.Duration // per-call hard deadline, default 30s
}

// OllamaClient is the functioning enhancer variant: it posts prompts to a
// local ollama server and mines the completion for a JSON object.
type OllamaClient struct {
	cfg        OllamaConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewOllamaClient(cfg OllamaConfig, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &OllamaClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

// IsAvailable probes the server's model listing endpoint.
func (c *OllamaClient) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ExtractFields re-extracts the requested fields. Transport failures and
// timeouts return errors; an unparsable completion returns an empty patch.
func (c *OllamaClient) ExtractFields(ctx context.Context, ocrText string, fields []constants.FieldName) (FieldPatch, error) {
	rid := uuid.NewString()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"fields", len(fields),
		"text_len", len(ocrText),
	)

	completion, err := c.complete(ctx, buildExtractionPrompt(ocrText, fields))
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return FieldPatch{}, err
	}

	raw := extractBalancedJSON(completion)
	if raw == "" {
		c.logger.Warn("llm.extract.no_json",
			"req_id", rid, "completion_len", len(completion),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return FieldPatch{}, nil
	}
	if err := validateAgainstSchema(fields, []byte(raw)); err != nil {
		c.logger.Warn("llm.extract.schema_rejected",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return FieldPatch{}, nil
	}

	patch := parsePatch(fields, []byte(raw))
	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"empty", patch.IsEmpty(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return patch, nil
}

// ValidateFields asks the model to sanity-check an inference. Any failure
// degrades to Valid so validation can never block processing.
func (c *OllamaClient) ValidateFields(ctx context.Context, inf inference.FieldInference) (Validation, error) {
	completion, err := c.complete(ctx, buildValidationPrompt(inf))
	if err != nil {
		c.logger.Warn("llm.validate.failed", "error", err)
		return Validation{Valid: true}, nil
	}
	raw := extractBalancedJSON(completion)
	if raw == "" {
		return Validation{Valid: true}, nil
	}
	var v Validation
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		c.logger.Warn("llm.validate.parse_failed", "error", err)
		return Validation{Valid: true}, nil
	}
	return v, nil
}

// complete posts one prompt and returns the raw completion text.
func (c *OllamaClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": c.cfg.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("ollama generate: %w", common.ErrTimeout)
		}
		return "", fmt.Errorf("ollama http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(raw))
	}

	var gen struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(raw, &gen); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}
	return gen.Response, nil
}
