package warnings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/corrections"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

func strField(v string, conf float64) inference.FieldValue[string] {
	return inference.FieldValue[string]{Value: &v, Confidence: conf, Source: inference.SourceInference}
}

func amtField(v, conf float64, alts ...float64) inference.FieldValue[float64] {
	f := inference.FieldValue[float64]{Value: &v, Confidence: conf, Source: inference.SourceInference}
	for _, a := range alts {
		f.Alternatives = append(f.Alternatives, inference.Alternative[float64]{Value: a, Confidence: conf})
	}
	return f
}

func warningsFor(ws []FieldWarning, field constants.FieldName) []FieldWarning {
	var out []FieldWarning
	for _, w := range ws {
		if w.Field == field {
			out = append(out, w)
		}
	}
	return out
}

func TestMerchantWarnings(t *testing.T) {
	t.Run("ride description flagged high", func(t *testing.T) {
		inf := inference.FieldInference{Merchant: strField("Your ride to SFO Airport", 0.5)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldMerchant)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityHigh, ws[0].Severity)
		assert.Contains(t, ws[0].Reason, "description keywords")
	})

	t.Run("high confidence does not suppress description warning", func(t *testing.T) {
		inf := inference.FieldInference{Merchant: strField("Your ride to SFO Airport", 0.95)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldMerchant)
		// description warning plus the looks-incorrect-despite-confidence one
		require.Len(t, ws, 2)
		assert.Equal(t, "High OCR confidence, but value looks incorrect", ws[1].Reason)
	})

	t.Run("overlong name", func(t *testing.T) {
		inf := inference.FieldInference{
			Merchant: strField("This is an extremely long merchant name that cannot be real", 0.5),
		}
		ws := warningsFor(Analyze(inf, ""), constants.FieldMerchant)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityHigh, ws[0].Severity)
		assert.Contains(t, ws[0].Reason, "unusually long")
	})

	t.Run("embedded address", func(t *testing.T) {
		inf := inference.FieldInference{Merchant: strField("Starbucks 123 Main Street", 0.5)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldMerchant)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityMedium, ws[0].Severity)
	})

	t.Run("clean name", func(t *testing.T) {
		inf := inference.FieldInference{Merchant: strField("Starbucks", 0.95)}
		assert.Empty(t, warningsFor(Analyze(inf, ""), constants.FieldMerchant))
	})
}

func TestAmountWarnings(t *testing.T) {
	t.Run("multiple candidates", func(t *testing.T) {
		inf := inference.FieldInference{Amount: amtField(10.83, 0.9, 10.00, 0.83)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldAmount)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityMedium, ws[0].Severity)
		assert.Contains(t, ws[0].Reason, "Multiple amounts")
	})

	t.Run("single alternative not flagged", func(t *testing.T) {
		inf := inference.FieldInference{Amount: amtField(10.83, 0.9, 10.00)}
		assert.Empty(t, warningsFor(Analyze(inf, ""), constants.FieldAmount))
	})

	t.Run("sub-dollar amount", func(t *testing.T) {
		inf := inference.FieldInference{Amount: amtField(0.50, 0.9)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldAmount)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityMedium, ws[0].Severity)
	})

	t.Run("very large amount", func(t *testing.T) {
		inf := inference.FieldInference{Amount: amtField(15000, 0.9)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldAmount)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityLow, ws[0].Severity)
	})
}

func TestDateWarnings(t *testing.T) {
	future := time.Now().AddDate(0, 3, 0).Format("01/02/2006")
	past := time.Now().AddDate(0, -8, 0).Format("01/02/2006")
	recent := time.Now().AddDate(0, 0, -7).Format("01/02/2006")

	t.Run("unparsable", func(t *testing.T) {
		inf := inference.FieldInference{Date: strField("someday soon", 0.9)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldDate)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityMedium, ws[0].Severity)
	})

	t.Run("far future", func(t *testing.T) {
		inf := inference.FieldInference{Date: strField(future, 0.9)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldDate)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityHigh, ws[0].Severity)
	})

	t.Run("stale date", func(t *testing.T) {
		inf := inference.FieldInference{Date: strField(past, 0.9)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldDate)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityLow, ws[0].Severity)
	})

	t.Run("recent date clean", func(t *testing.T) {
		inf := inference.FieldInference{Date: strField(recent, 0.9)}
		assert.Empty(t, warningsFor(Analyze(inf, ""), constants.FieldDate))
	})
}

func TestCategoryWarnings(t *testing.T) {
	t.Run("low confidence", func(t *testing.T) {
		inf := inference.FieldInference{Category: strField("Meal and Entertainment", 0.5)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldCategory)
		require.Len(t, ws, 1)
		assert.Equal(t, SeverityLow, ws[0].Severity)
	})

	t.Run("uncertain Other", func(t *testing.T) {
		inf := inference.FieldInference{Category: strField("Other", 0.65)}
		ws := warningsFor(Analyze(inf, ""), constants.FieldCategory)
		require.Len(t, ws, 1)
		assert.Contains(t, ws[0].Reason, "specific category")
	})

	t.Run("confident Other clean", func(t *testing.T) {
		inf := inference.FieldInference{Category: strField("Other", 0.8)}
		assert.Empty(t, warningsFor(Analyze(inf, ""), constants.FieldCategory))
	})
}

func TestNilFieldsProduceNoWarnings(t *testing.T) {
	assert.Empty(t, Analyze(inference.FieldInference{}, "whatever"))
}

type fakeCounts struct {
	counts corrections.FieldCounts
	err    error
}

func (f *fakeCounts) FieldCorrectionCounts(context.Context, constants.FieldName, int) (corrections.FieldCounts, error) {
	return f.counts, f.err
}

func TestHistoricalAccuracy(t *testing.T) {
	t.Run("computes rate", func(t *testing.T) {
		svc := NewService(&fakeCounts{counts: corrections.FieldCounts{
			CorrectionCount:      20,
			DistinctExpenseCount: 80,
		}}, nil)
		acc := svc.HistoricalAccuracy(context.Background(), constants.FieldMerchant, 30)
		assert.Equal(t, 100, acc.TotalExtractions)
		assert.Equal(t, 20, acc.CorrectionCount)
		assert.InDelta(t, 80.0, acc.AccuracyRate, 1e-9)
	})

	t.Run("query failure degrades to default", func(t *testing.T) {
		svc := NewService(&fakeCounts{err: errors.New("db down")}, nil)
		acc := svc.HistoricalAccuracy(context.Background(), constants.FieldMerchant, 30)
		assert.Equal(t, Accuracy{AccuracyRate: 100}, acc)
	})

	t.Run("no history means perfect rate", func(t *testing.T) {
		svc := NewService(&fakeCounts{}, nil)
		acc := svc.HistoricalAccuracy(context.Background(), constants.FieldMerchant, 30)
		assert.InDelta(t, 100.0, acc.AccuracyRate, 1e-9)
		assert.Zero(t, acc.TotalExtractions)
	})
}
