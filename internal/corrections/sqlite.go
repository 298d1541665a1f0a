package corrections

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/common"
)

// SQLiteStore is the single-node store. Timestamps are stored as UTC RFC3339
// text so window cutoffs compare lexicographically.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (and creates if needed) a sqlite correction store.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, common.WrapError(err, "open sqlite")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, common.WrapError(err, "ping sqlite")
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() { _ = s.db.Close() }

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ocr_corrections (
	id TEXT PRIMARY KEY,
	expense_id TEXT,
	user_id TEXT NOT NULL,
	ocr_text TEXT NOT NULL,
	ocr_confidence REAL NOT NULL DEFAULT 0,
	original_inference TEXT NOT NULL,
	corrected_merchant TEXT,
	corrected_amount REAL,
	corrected_date TEXT,
	corrected_card_last_four TEXT,
	corrected_category TEXT,
	receipt_image_path TEXT,
	correction_notes TEXT,
	fields_corrected TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ocr_corrections_created_at ON ocr_corrections (created_at);
`

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return common.WrapError(err, "ensure schema")
}

func (s *SQLiteStore) StoreCorrection(ctx context.Context, c UserCorrection) (uuid.UUID, error) {
	if err := c.Validate(); err != nil {
		return uuid.Nil, err
	}
	snapshot, err := json.Marshal(c.OriginalInference)
	if err != nil {
		return uuid.Nil, common.WrapError(err, "marshal inference snapshot")
	}
	fieldsJSON, err := json.Marshal(c.CorrectedFields.FieldsCorrected())
	if err != nil {
		return uuid.Nil, common.WrapError(err, "marshal fields list")
	}

	id := uuid.New()
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ocr_corrections (
			id, expense_id, user_id, ocr_text, ocr_confidence,
			original_inference,
			corrected_merchant, corrected_amount, corrected_date,
			corrected_card_last_four, corrected_category,
			receipt_image_path, correction_notes, fields_corrected, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id.String(),
		nilIfEmpty(c.ExpenseID),
		c.UserID,
		c.OriginalOCRText,
		c.originalConfidence(),
		string(snapshot),
		c.CorrectedFields.Merchant,
		c.CorrectedFields.Amount,
		c.CorrectedFields.Date,
		c.CorrectedFields.CardLastFour,
		c.CorrectedFields.Category,
		nilIfEmpty(c.ReceiptImagePath),
		nilIfEmpty(c.Notes),
		string(fieldsJSON),
		ts.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return uuid.Nil, common.NewAppError("CORRECTION_STORE", "insert failed", err)
	}

	s.logger.Info("store.correction.stored",
		"id", id.String(),
		"fields", c.CorrectedFields.FieldsCorrected(),
	)
	return id, nil
}

func (s *SQLiteStore) CorrectionStats(ctx context.Context) (Stats, error) {
	stats := Stats{ByField: map[string]int{}}

	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(ocr_confidence), 0),
		       COUNT(corrected_merchant), COUNT(corrected_amount), COUNT(corrected_date),
		       COUNT(corrected_card_last_four), COUNT(corrected_category)
		FROM ocr_corrections`)
	var merchant, amount, date, card, category int
	if err := row.Scan(
		&stats.TotalCorrections, &stats.AvgOCRConfidence,
		&merchant, &amount, &date, &card, &category,
	); err != nil {
		return Stats{}, common.WrapError(err, "stats")
	}

	counts := map[string]int{
		string(constants.FieldMerchant):     merchant,
		string(constants.FieldAmount):       amount,
		string(constants.FieldDate):         date,
		string(constants.FieldCardLastFour): card,
		string(constants.FieldCategory):     category,
	}
	for field, n := range counts {
		if n > 0 {
			stats.ByField[field] = n
		}
	}
	return stats, nil
}

func (s *SQLiteStore) LearnedClusters(ctx context.Context, window time.Duration, minCount, limit int) ([]Cluster, error) {
	cutoff := time.Now().Add(-window).UTC().Format(time.RFC3339Nano)
	var clusters []Cluster

	for _, field := range minedFields {
		col := correctedColumn(field)
		q := fmt.Sprintf(`
			SELECT COALESCE(json_extract(original_inference, '$.%s.value'), '') AS original_value,
			       %s AS corrected_value,
			       COUNT(*) AS freq,
			       MAX(created_at) AS last_seen
			FROM ocr_corrections
			WHERE created_at >= ? AND %s IS NOT NULL
			GROUP BY 1, 2
			HAVING COUNT(*) >= ?
			ORDER BY COUNT(*) DESC
			LIMIT ?`, field, col, col)

		rows, err := s.db.QueryContext(ctx, q, cutoff, minCount, limit)
		if err != nil {
			return nil, common.WrapError(err, "cluster query")
		}
		fieldClusters, err := scanSQLClusters(rows, field)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, fieldClusters...)
	}

	sortClustersByCount(clusters)
	if len(clusters) > limit {
		clusters = clusters[:limit]
	}
	return clusters, nil
}

func scanSQLClusters(rows *sql.Rows, field constants.FieldName) ([]Cluster, error) {
	defer rows.Close()
	var out []Cluster
	for rows.Next() {
		c := Cluster{Field: field}
		var lastSeen string
		if err := rows.Scan(&c.OriginalValue, &c.CorrectedValue, &c.Count, &lastSeen); err != nil {
			return nil, common.WrapError(err, "cluster scan")
		}
		if ts, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
			c.LastSeen = ts
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FieldCorrectionCounts(ctx context.Context, field constants.FieldName, daysBack int) (FieldCounts, error) {
	col := correctedColumn(field)
	if col == "" {
		return FieldCounts{}, common.NewAppError("CORRECTION_QUERY", "unknown field "+string(field), common.ErrInvalidInput)
	}
	cutoff := time.Now().AddDate(0, 0, -daysBack).UTC().Format(time.RFC3339Nano)

	q := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(DISTINCT expense_id)
		FROM ocr_corrections
		WHERE created_at >= ? AND %s IS NOT NULL`, col)

	var fc FieldCounts
	if err := s.db.QueryRowContext(ctx, q, cutoff).Scan(&fc.CorrectionCount, &fc.DistinctExpenseCount); err != nil {
		return FieldCounts{}, common.WrapError(err, "field counts")
	}
	return fc, nil
}

func (s *SQLiteStore) ExportForTraining(ctx context.Context, start, end *time.Time) ([]TrainingRow, error) {
	q := `
		SELECT ocr_text, ocr_confidence, original_inference,
		       corrected_merchant, corrected_amount, corrected_date,
		       corrected_card_last_four, corrected_category,
		       fields_corrected, created_at
		FROM ocr_corrections
		WHERE 1=1`
	var args []any
	if start != nil {
		q += " AND created_at >= ?"
		args = append(args, start.UTC().Format(time.RFC3339Nano))
	}
	if end != nil {
		q += " AND created_at <= ?"
		args = append(args, end.UTC().Format(time.RFC3339Nano))
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, common.WrapError(err, "export query")
	}
	defer rows.Close()

	var out []TrainingRow
	for rows.Next() {
		var r TrainingRow
		var snapshot, fieldsJSON, createdAt string
		if err := rows.Scan(
			&r.Input, &r.OCRConfidence, &snapshot,
			&r.Corrections.Merchant, &r.Corrections.Amount, &r.Corrections.Date,
			&r.Corrections.CardLastFour, &r.Corrections.Category,
			&fieldsJSON, &createdAt,
		); err != nil {
			return nil, common.WrapError(err, "export scan")
		}
		r.OriginalPredictions = json.RawMessage(snapshot)
		if err := json.Unmarshal([]byte(fieldsJSON), &r.FieldsCorrected); err != nil {
			return nil, common.WrapError(err, "decode fields list")
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			r.CreatedAt = ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
