package corrections

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "corrections.db"), nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func strp(s string) *string   { return &s }
func f64p(f float64) *float64 { return &f }

func merchantCorrection(expenseID, original, corrected string) UserCorrection {
	var inf inference.FieldInference
	inf.Merchant = inference.FieldValue[string]{
		Value:      &original,
		Confidence: 0.6,
		Source:     inference.SourceInference,
	}
	return UserCorrection{
		ExpenseID:         expenseID,
		UserID:            "u-1",
		OriginalOCRText:   original + "\nTOTAL $10.00",
		OriginalInference: inf,
		CorrectedFields:   CorrectedFields{Merchant: strp(corrected)},
	}
}

func TestStoreCorrectionValidation(t *testing.T) {
	s := openTestStore(t)

	t.Run("requires user id", func(t *testing.T) {
		_, err := s.StoreCorrection(context.Background(), UserCorrection{
			CorrectedFields: CorrectedFields{Merchant: strp("Walmart")},
		})
		assert.Error(t, err)
	})

	t.Run("requires at least one field", func(t *testing.T) {
		_, err := s.StoreCorrection(context.Background(), UserCorrection{UserID: "u-1"})
		assert.Error(t, err)
	})

	t.Run("stores a valid correction", func(t *testing.T) {
		id, err := s.StoreCorrection(context.Background(), merchantCorrection("e-1", "WALMART #42", "Walmart"))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
	})

	t.Run("rejects unrecognized category", func(t *testing.T) {
		_, err := s.StoreCorrection(context.Background(), UserCorrection{
			UserID:          "u-1",
			CorrectedFields: CorrectedFields{Category: strp("cryptocurrency")},
		})
		assert.Error(t, err)
	})
}

func TestValidateCanonicalizesCategory(t *testing.T) {
	c := UserCorrection{
		UserID:          "u-1",
		CorrectedFields: CorrectedFields{Category: strp("uber")},
	}
	require.NoError(t, c.Validate())
	assert.Equal(t, string(constants.Transportation), *c.CorrectedFields.Category)
}

func TestCorrectionStats(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := s.StoreCorrection(context.Background(), merchantCorrection("e-1", "WALMART #42", "Walmart"))
		require.NoError(t, err)
	}
	_, err := s.StoreCorrection(context.Background(), UserCorrection{
		UserID: "u-2",
		CorrectedFields: CorrectedFields{
			Amount:   f64p(12.50),
			Category: strp("Meal and Entertainment"),
		},
	})
	require.NoError(t, err)

	stats, err := s.CorrectionStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalCorrections)
	assert.Equal(t, 3, stats.ByField[string(constants.FieldMerchant)])
	assert.Equal(t, 1, stats.ByField[string(constants.FieldAmount)])
	assert.Equal(t, 1, stats.ByField[string(constants.FieldCategory)])
	assert.NotContains(t, stats.ByField, string(constants.FieldDate))
}

func TestLearnedClustersMinCountBoundary(t *testing.T) {
	s := openTestStore(t)

	// two occurrences stay below the promotion threshold
	for i := 0; i < 2; i++ {
		_, err := s.StoreCorrection(context.Background(), merchantCorrection("e-a", "TARGET T-0456", "Target"))
		require.NoError(t, err)
	}
	// exactly three qualifies
	for i := 0; i < 3; i++ {
		_, err := s.StoreCorrection(context.Background(), merchantCorrection("e-b", "WALMART #42", "Walmart"))
		require.NoError(t, err)
	}

	clusters, err := s.LearnedClusters(context.Background(), 90*24*time.Hour, 3, 100)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, constants.FieldMerchant, clusters[0].Field)
	assert.Equal(t, "WALMART #42", clusters[0].OriginalValue)
	assert.Equal(t, "Walmart", clusters[0].CorrectedValue)
	assert.Equal(t, 3, clusters[0].Count)
	assert.False(t, clusters[0].LastSeen.IsZero())
}

func TestLearnedClustersOrderingAndLimit(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := s.StoreCorrection(context.Background(), merchantCorrection("e-a", "COSTCO #77", "Costco"))
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := s.StoreCorrection(context.Background(), merchantCorrection("e-b", "WALMART #42", "Walmart"))
		require.NoError(t, err)
	}

	clusters, err := s.LearnedClusters(context.Background(), 90*24*time.Hour, 3, 100)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "Costco", clusters[0].CorrectedValue)
	assert.Equal(t, "Walmart", clusters[1].CorrectedValue)

	limited, err := s.LearnedClusters(context.Background(), 90*24*time.Hour, 3, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "Costco", limited[0].CorrectedValue)
}

func TestFieldCorrectionCounts(t *testing.T) {
	s := openTestStore(t)

	// two corrections on the same expense, one on another
	_, err := s.StoreCorrection(context.Background(), merchantCorrection("e-1", "WALMART #42", "Walmart"))
	require.NoError(t, err)
	_, err = s.StoreCorrection(context.Background(), merchantCorrection("e-1", "WALMART #42", "Walmart Supercenter"))
	require.NoError(t, err)
	_, err = s.StoreCorrection(context.Background(), merchantCorrection("e-2", "TARGET T-0456", "Target"))
	require.NoError(t, err)

	fc, err := s.FieldCorrectionCounts(context.Background(), constants.FieldMerchant, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, fc.CorrectionCount)
	assert.Equal(t, 2, fc.DistinctExpenseCount)

	none, err := s.FieldCorrectionCounts(context.Background(), constants.FieldAmount, 30)
	require.NoError(t, err)
	assert.Zero(t, none.CorrectionCount)

	_, err = s.FieldCorrectionCounts(context.Background(), constants.FieldName("bogus"), 30)
	assert.Error(t, err)
}

func TestExportForTraining(t *testing.T) {
	s := openTestStore(t)

	c := merchantCorrection("e-1", "STARBUCKS #553", "Starbucks")
	c.Notes = "store number is not the name"
	_, err := s.StoreCorrection(context.Background(), c)
	require.NoError(t, err)

	rows, err := s.ExportForTraining(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Contains(t, row.Input, "STARBUCKS #553")
	require.NotNil(t, row.Corrections.Merchant)
	assert.Equal(t, "Starbucks", *row.Corrections.Merchant)
	assert.Equal(t, []string{string(constants.FieldMerchant)}, row.FieldsCorrected)
	assert.NotEmpty(t, row.OriginalPredictions)
	assert.False(t, row.CreatedAt.IsZero())

	t.Run("window excludes old rows", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		empty, err := s.ExportForTraining(context.Background(), &future, nil)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}
