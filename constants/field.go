package constants

// FieldName identifies one extractable receipt field. The string values are
// stable: they key the persisted inference snapshots that the learning
// pipeline mines, so they must never change.
type FieldName string

const (
	FieldMerchant     FieldName = "merchant"
	FieldAmount       FieldName = "amount"
	FieldDate         FieldName = "date"
	FieldCardLastFour FieldName = "cardLastFour"
	FieldCategory     FieldName = "category"
	FieldLocation     FieldName = "location"
	FieldTaxAmount    FieldName = "taxAmount"
	FieldTipAmount    FieldName = "tipAmount"
)

// RequiredFields are the five fields that feed overall confidence and the
// review gate.
var RequiredFields = []FieldName{
	FieldMerchant,
	FieldAmount,
	FieldDate,
	FieldCardLastFour,
	FieldCategory,
}

// CorrectableFields are the fields a user correction may override.
var CorrectableFields = []FieldName{
	FieldMerchant,
	FieldAmount,
	FieldDate,
	FieldCardLastFour,
	FieldCategory,
}
