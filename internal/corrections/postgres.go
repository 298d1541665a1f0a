package corrections

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/common"
)

// PostgresStore keeps corrections in an ocr_corrections table. The schema
// under db/ent/schema is the migration source; EnsureSchema covers fresh
// single-node setups.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres creates a pgx pool and verifies connectivity.
func OpenPostgres(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("store.pg.connecting")

	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, common.WrapError(err, "parse dsn")
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.ConnConfig.RuntimeParams["application_name"] = "receipt-pipeline"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, common.WrapError(err, "connect")
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, common.WrapError(err, "ping")
	}

	logger.Info("store.pg.connected")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

const pgSchema = `
CREATE TABLE IF NOT EXISTS ocr_corrections (
	id UUID PRIMARY KEY,
	expense_id TEXT,
	user_id TEXT NOT NULL,
	ocr_text TEXT NOT NULL,
	ocr_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	original_inference JSONB NOT NULL,
	corrected_merchant TEXT,
	corrected_amount DOUBLE PRECISION,
	corrected_date TEXT,
	corrected_card_last_four TEXT,
	corrected_category TEXT,
	receipt_image_path TEXT,
	correction_notes TEXT,
	fields_corrected TEXT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ocr_corrections_created_at ON ocr_corrections (created_at);
`

// EnsureSchema creates the corrections table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, pgSchema)
	return common.WrapError(err, "ensure schema")
}

func (s *PostgresStore) StoreCorrection(ctx context.Context, c UserCorrection) (uuid.UUID, error) {
	if err := c.Validate(); err != nil {
		return uuid.Nil, err
	}
	snapshot, err := json.Marshal(c.OriginalInference)
	if err != nil {
		return uuid.Nil, common.WrapError(err, "marshal inference snapshot")
	}

	id := uuid.New()
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO ocr_corrections (
			id, expense_id, user_id, ocr_text, ocr_confidence,
			original_inference,
			corrected_merchant, corrected_amount, corrected_date,
			corrected_card_last_four, corrected_category,
			receipt_image_path, correction_notes, fields_corrected, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		id,
		nilIfEmpty(c.ExpenseID),
		c.UserID,
		c.OriginalOCRText,
		c.originalConfidence(),
		snapshot,
		c.CorrectedFields.Merchant,
		c.CorrectedFields.Amount,
		c.CorrectedFields.Date,
		c.CorrectedFields.CardLastFour,
		c.CorrectedFields.Category,
		nilIfEmpty(c.ReceiptImagePath),
		nilIfEmpty(c.Notes),
		c.CorrectedFields.FieldsCorrected(),
		ts,
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

func (s *PostgresStore) CorrectionStats(ctx context.Context) (Stats, error) {
	stats := Stats{ByField: map[string]int{}}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(ocr_confidence), 0) FROM ocr_corrections`,
	).Scan(&stats.TotalCorrections, &stats.AvgOCRConfidence)
	if err != nil {
		return Stats{}, common.WrapError(err, "stats totals")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT unnest(fields_corrected) AS field, COUNT(*)
		FROM ocr_corrections
		GROUP BY field
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return Stats{}, common.WrapError(err, "stats by field")
	}
	defer rows.Close()
	for rows.Next() {
		var field string
		var count int
		if err := rows.Scan(&field, &count); err != nil {
			return Stats{}, common.WrapError(err, "stats scan")
		}
		stats.ByField[field] = count
	}
	return stats, rows.Err()
}

func (s *PostgresStore) LearnedClusters(ctx context.Context, window time.Duration, minCount, limit int) ([]Cluster, error) {
	cutoff := time.Now().Add(-window)
	var clusters []Cluster

	for _, field := range minedFields {
		col := correctedColumn(field)
		q := fmt.Sprintf(`
			SELECT COALESCE(original_inference->'%s'->>'value', '') AS original_value,
			       %s AS corrected_value,
			       COUNT(*) AS freq,
			       MAX(created_at) AS last_seen
			FROM ocr_corrections
			WHERE created_at >= $1 AND %s IS NOT NULL
			GROUP BY 1, 2
			HAVING COUNT(*) >= $2
			ORDER BY COUNT(*) DESC
			LIMIT $3`, field, col, col)

		rows, err := s.pool.Query(ctx, q, cutoff, minCount, limit)
		if err != nil {
			return nil, common.WrapError(err, "cluster query")
		}
		fieldClusters, err := scanClusters(rows, field)
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

func (s *PostgresStore) FieldCorrectionCounts(ctx context.Context, field constants.FieldName, daysBack int) (FieldCounts, error) {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var fc FieldCounts
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT expense_id)
		FROM ocr_corrections
		WHERE created_at >= $1 AND $2 = ANY(fields_corrected)`,
		cutoff, string(field),
	).Scan(&fc.CorrectionCount, &fc.DistinctExpenseCount)
	if err != nil {
		return FieldCounts{}, common.WrapError(err, "field counts")
	}
	return fc, nil
}

func (s *PostgresStore) ExportForTraining(ctx context.Context, start, end *time.Time) ([]TrainingRow, error) {
	q := `
		SELECT ocr_text, ocr_confidence, original_inference,
		       corrected_merchant, corrected_amount, corrected_date,
		       corrected_card_last_four, corrected_category,
		       fields_corrected, created_at
		FROM ocr_corrections
		WHERE 1=1`
	var args []any
	if start != nil {
		args = append(args, *start)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		q += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, common.WrapError(err, "export query")
	}
	defer rows.Close()

	var out []TrainingRow
	for rows.Next() {
		var r TrainingRow
		var snapshot []byte
		if err := rows.Scan(
			&r.Input, &r.OCRConfidence, &snapshot,
			&r.Corrections.Merchant, &r.Corrections.Amount, &r.Corrections.Date,
			&r.Corrections.CardLastFour, &r.Corrections.Category,
			&r.FieldsCorrected, &r.CreatedAt,
		); err != nil {
			return nil, common.WrapError(err, "export scan")
		}
		r.OriginalPredictions = json.RawMessage(snapshot)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanClusters(rows pgx.Rows, field constants.FieldName) ([]Cluster, error) {
	defer rows.Close()
	var out []Cluster
	for rows.Next() {
		c := Cluster{Field: field}
		if err := rows.Scan(&c.OriginalValue, &c.CorrectedValue, &c.Count, &c.LastSeen); err != nil {
			return nil, common.WrapError(err, "cluster scan")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func correctedColumn(field constants.FieldName) string {
	switch field {
	case constants.FieldMerchant:
		return "corrected_merchant"
	case constants.FieldAmount:
		return "corrected_amount"
	case constants.FieldDate:
		return "corrected_date"
	case constants.FieldCardLastFour:
		return "corrected_card_last_four"
	case constants.FieldCategory:
		return "corrected_category"
	default:
		return ""
	}
}
