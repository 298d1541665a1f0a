package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/showledger/receipt-pipeline/constants"
)

// buildFieldSchema returns a JSON Schema accepting an object holding the
// requested fields. Amounts may arrive as numbers or numeric strings; other
// fields are strings. Nulls are allowed (the prompt asks for them on missing
// fields) and extra keys are tolerated.
func buildFieldSchema(fields []constants.FieldName) string {
	props := map[string]any{}
	for _, f := range fields {
		switch f {
		case constants.FieldAmount:
			props[string(f)] = map[string]any{"type": []string{"number", "string", "null"}}
		default:
			props[string(f)] = map[string]any{"type": []string{"string", "null"}}
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}
	b, _ := json.Marshal(schema)
	return string(b)
}

// validateAgainstSchema checks raw against the schema for the requested
// fields. A non-nil error means the payload must be discarded.
func validateAgainstSchema(fields []constants.FieldName, raw []byte) error {
	schema, err := jsonschema.CompileString("fields.schema.json", buildFieldSchema(fields))
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

// parsePatch decodes a schema-valid payload into a FieldPatch, wrapping each
// present non-null requested field with llm provenance.
func parsePatch(fields []constants.FieldName, raw []byte) FieldPatch {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return FieldPatch{}
	}

	var patch FieldPatch
	for _, f := range fields {
		v, ok := payload[string(f)]
		if !ok || v == nil {
			continue
		}
		switch f {
		case constants.FieldAmount:
			if amt, ok := coerceFloat(v); ok {
				patch.Amount = llmField(amt)
			}
		case constants.FieldMerchant:
			if s, ok := coerceString(v); ok {
				patch.Merchant = llmField(s)
			}
		case constants.FieldDate:
			if s, ok := coerceString(v); ok {
				patch.Date = llmField(s)
			}
		case constants.FieldCardLastFour:
			if s, ok := coerceString(v); ok {
				patch.CardLastFour = llmField(s)
			}
		case constants.FieldCategory:
			if s, ok := coerceString(v); ok {
				patch.Category = llmField(s)
			}
		}
	}
	return patch
}

func coerceString(v any) (string, bool) {
	s, ok := v.(string)
	s = strings.TrimSpace(s)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
