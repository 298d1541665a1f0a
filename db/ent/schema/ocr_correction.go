package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

// OCRCorrection is one user correction snapshot: the original OCR text and
// inference alongside the corrected values, the raw material for pattern
// mining and training export.
type OCRCorrection struct{ ent.Schema }

func (OCRCorrection) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "ocr_corrections"},
	}
}

func (OCRCorrection) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable().
			StorageKey("id"),
		field.String("expense_id").Optional().Nillable(),
		field.String("user_id").NotEmpty(),
		field.Text("ocr_text"),
		field.Float("ocr_confidence"),
		field.JSON("original_inference", map[string]any{}).
			SchemaType(map[string]string{dialect.Postgres: "jsonb"}),
		field.String("corrected_merchant").Optional().Nillable(),
		field.Float("corrected_amount").Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "numeric(12,2)"}),
		field.String("corrected_date").Optional().Nillable(),
		field.String("corrected_card_last_four").Optional().Nillable().MaxLen(4),
		field.String("corrected_category").Optional().Nillable(),
		field.String("receipt_image_path").Optional().Nillable(),
		field.Text("correction_notes").Optional().Nillable(),
		field.Strings("fields_corrected").
			SchemaType(map[string]string{dialect.Postgres: "text[]"}),
		field.Time("created_at").Default(time.Now).Immutable(),
	}
}

func (OCRCorrection) Indexes() []ent.Index {
	return []ent.Index{
		// Refresh mining and training export both filter on the window.
		index.Fields("created_at"),
		index.Fields("user_id"),
	}
}
