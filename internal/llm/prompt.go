package llm

import (
	"strconv"
	"strings"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/inference"
)

const maxPromptText = 3000

var fieldShapes = map[constants.FieldName]string{
	constants.FieldMerchant:     "merchant: the business name as a short string",
	constants.FieldAmount:       "amount: the receipt total as a number without currency symbols",
	constants.FieldDate:         "date: the transaction date, YYYY-MM-DD if possible",
	constants.FieldCardLastFour: "cardLastFour: the last 4 digits of the payment card as a string",
	constants.FieldCategory:     "category: one of: " + strings.Join(constants.CategoryNames(), ", "),
}

// buildExtractionPrompt asks for strict JSON holding only the requested fields.
func buildExtractionPrompt(ocrText string, fields []constants.FieldName) string {
	var b strings.Builder
	b.WriteString("Extract the following fields from this receipt OCR text:\n")
	for _, f := range fields {
		if shape, ok := fieldShapes[f]; ok {
			b.WriteString("- ")
			b.WriteString(shape)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nOCR Text:\n")
	if len(ocrText) > maxPromptText {
		b.WriteString(ocrText[:maxPromptText])
	} else {
		b.WriteString(ocrText)
	}
	b.WriteString("\n\nReturn ONLY a JSON object with the extracted values. Use null for missing fields.")
	return b.String()
}

func buildValidationPrompt(inf inference.FieldInference) string {
	var b strings.Builder
	b.WriteString("Validate these extracted receipt fields for accuracy and consistency:\n\n")
	b.WriteString("Merchant: " + strOrNull(inf.Merchant.Value) + "\n")
	if inf.Amount.Value != nil {
		b.WriteString("Amount: " + strconv.FormatFloat(*inf.Amount.Value, 'f', 2, 64) + "\n")
	} else {
		b.WriteString("Amount: null\n")
	}
	b.WriteString("Date: " + strOrNull(inf.Date.Value) + "\n")
	b.WriteString("Card: " + strOrNull(inf.CardLastFour.Value) + "\n")
	b.WriteString("Category: " + strOrNull(inf.Category.Value) + "\n")
	b.WriteString(`
Respond with ONLY JSON:
{"valid": true/false, "issues": ["list of validation issues"], "corrections": {"field": "corrected value"}}`)
	return b.String()
}

func strOrNull(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
