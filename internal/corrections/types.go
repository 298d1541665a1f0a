package corrections

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/common"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

// CorrectedFields is the partial map of fields a user fixed. Only non-nil
// entries count as corrections.
type CorrectedFields struct {
	Merchant     *string  `json:"merchant,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
	Date         *string  `json:"date,omitempty"`
	CardLastFour *string  `json:"cardLastFour,omitempty"`
	Category     *string  `json:"category,omitempty"`
}

// FieldsCorrected lists the names of the corrected fields, in the canonical
// field order.
func (c CorrectedFields) FieldsCorrected() []string {
	var fields []string
	if c.Merchant != nil {
		fields = append(fields, string(constants.FieldMerchant))
	}
	if c.Amount != nil {
		fields = append(fields, string(constants.FieldAmount))
	}
	if c.Date != nil {
		fields = append(fields, string(constants.FieldDate))
	}
	if c.CardLastFour != nil {
		fields = append(fields, string(constants.FieldCardLastFour))
	}
	if c.Category != nil {
		fields = append(fields, string(constants.FieldCategory))
	}
	return fields
}

// UserCorrection is the write-once record of a human fixing an inference.
type UserCorrection struct {
	ExpenseID         string                   `json:"expenseId,omitempty"`
	UserID            string                   `json:"userId"`
	Timestamp         time.Time                `json:"timestamp"`
	OriginalOCRText   string                   `json:"originalOcrText"`
	OriginalInference inference.FieldInference `json:"originalInference"`
	CorrectedFields   CorrectedFields          `json:"correctedFields"`
	ReceiptImagePath  string                   `json:"receiptImagePath,omitempty"`
	Notes             string                   `json:"notes,omitempty"`
}

// Validate enforces the submission boundary: at least one corrected field,
// and a corrected category must resolve to the taxonomy. Canonicalize also
// normalizes recognized synonyms ("uber", "hotel") to their taxonomy value.
func (c *UserCorrection) Validate() error {
	if c.UserID == "" {
		return common.NewAppError("CORRECTION_INVALID", "user id is required", common.ErrValidation)
	}
	if len(c.CorrectedFields.FieldsCorrected()) == 0 {
		return common.NewAppError("CORRECTION_INVALID", "at least one corrected field is required", common.ErrValidation)
	}
	if c.CorrectedFields.Category != nil {
		cat, ok := constants.Canonicalize(*c.CorrectedFields.Category)
		if !ok {
			return common.NewAppError("CORRECTION_INVALID", "unrecognized category", common.ErrValidation)
		}
		canonical := string(cat)
		c.CorrectedFields.Category = &canonical
	}
	return nil
}

// originalConfidence mirrors the stored correction_confidence_before column:
// the mean of the field confidences present on the original inference.
func (c *UserCorrection) originalConfidence() float64 {
	inf := c.OriginalInference
	confs := []float64{
		inf.Merchant.Confidence,
		inf.Amount.Confidence,
		inf.Date.Confidence,
		inf.Category.Confidence,
		inf.Location.Confidence,
	}
	var sum float64
	for _, v := range confs {
		sum += v
	}
	return sum / float64(len(confs))
}

// Stats aggregates the correction corpus for analytics.
type Stats struct {
	TotalCorrections int                `json:"totalCorrections"`
	ByField          map[string]int     `json:"byField"`
	AvgOCRConfidence float64            `json:"avgConfidenceWhenCorrected"`
}

// Cluster is one (field, original value, corrected value) group from the
// mining query, with occurrence count and recency.
type Cluster struct {
	Field          constants.FieldName
	OriginalValue  string
	CorrectedValue string
	Count          int
	LastSeen       time.Time
}

// FieldCounts feeds the historical-accuracy approximation.
type FieldCounts struct {
	CorrectionCount      int
	DistinctExpenseCount int
}

// TrainingRow is one flat export record for offline analysis.
type TrainingRow struct {
	Input               string          `json:"input"`
	OriginalPredictions json.RawMessage `json:"originalPredictions"`
	Corrections         CorrectedFields `json:"corrections"`
	FieldsCorrected     []string        `json:"fieldsCorrected"`
	OCRConfidence       float64         `json:"ocrConfidence"`
	CreatedAt           time.Time       `json:"timestamp"`
}

// Store persists corrections and exposes the aggregate queries the learning
// loop and analytics read. StoreCorrection failures are hard errors; read
// paths degrade at their callers.
type Store interface {
	StoreCorrection(ctx context.Context, c UserCorrection) (uuid.UUID, error)
	CorrectionStats(ctx context.Context) (Stats, error)
	LearnedClusters(ctx context.Context, window time.Duration, minCount, limit int) ([]Cluster, error)
	FieldCorrectionCounts(ctx context.Context, field constants.FieldName, daysBack int) (FieldCounts, error)
	ExportForTraining(ctx context.Context, start, end *time.Time) ([]TrainingRow, error)
	Close()
}

func sortClustersByCount(clusters []Cluster) {
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].Count > clusters[j].Count })
}

// minedFields are the fields the cluster query groups over. Category is
// included so its clusters surface even while pattern generation for it is
// still pending.
var minedFields = []constants.FieldName{
	constants.FieldMerchant,
	constants.FieldCategory,
}
