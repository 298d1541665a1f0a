package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

func TestValidateAgainstSchema(t *testing.T) {
	fields := []constants.FieldName{constants.FieldMerchant, constants.FieldAmount}

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"both fields", `{"merchant":"Starbucks","amount":12.5}`, false},
		{"amount as string", `{"merchant":"Starbucks","amount":"12.50"}`, false},
		{"nulls allowed", `{"merchant":null,"amount":null}`, false},
		{"extra keys tolerated", `{"merchant":"Starbucks","notes":"x"}`, false},
		{"amount as object rejected", `{"amount":{"value":12.5}}`, true},
		{"merchant as number rejected", `{"merchant":42}`, true},
		{"array rejected", `[1,2,3]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAgainstSchema(fields, []byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParsePatch(t *testing.T) {
	fields := []constants.FieldName{
		constants.FieldMerchant,
		constants.FieldAmount,
		constants.FieldDate,
		constants.FieldCardLastFour,
		constants.FieldCategory,
	}

	t.Run("wraps fields with llm provenance", func(t *testing.T) {
		patch := parsePatch(fields, []byte(`{"merchant":"Starbucks","amount":"12.50","date":"2025-10-15"}`))
		require.NotNil(t, patch.Merchant)
		assert.Equal(t, "Starbucks", *patch.Merchant.Value)
		assert.Equal(t, inference.SourceLLM, patch.Merchant.Source)
		assert.InDelta(t, EnhancedConfidence, patch.Merchant.Confidence, 1e-9)

		require.NotNil(t, patch.Amount)
		assert.InDelta(t, 12.50, *patch.Amount.Value, 1e-9)

		require.NotNil(t, patch.Date)
		assert.Nil(t, patch.CardLastFour)
		assert.Nil(t, patch.Category)
		assert.False(t, patch.IsEmpty())
	})

	t.Run("nulls and unrequested keys skipped", func(t *testing.T) {
		patch := parsePatch([]constants.FieldName{constants.FieldMerchant},
			[]byte(`{"merchant":null,"category":"Other"}`))
		assert.True(t, patch.IsEmpty())
	})

	t.Run("blank strings skipped", func(t *testing.T) {
		patch := parsePatch(fields, []byte(`{"merchant":"  ","date":""}`))
		assert.True(t, patch.IsEmpty())
	})
}
