package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBalancedJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"leading prose", `Sure, here is the JSON: {"merchant":"Starbucks"}`, `{"merchant":"Starbucks"}`},
		{"trailing prose", `{"a":1} hope that helps!`, `{"a":1}`},
		{"nested objects", `{"a":{"b":{"c":2}}}`, `{"a":{"b":{"c":2}}}`},
		{"brace inside string", `{"note":"use { sparingly"}`, `{"note":"use { sparingly"}`},
		{"escaped quote inside string", `{"note":"say \"hi\" {"}`, `{"note":"say \"hi\" {"}`},
		{"first of two objects", `{"a":1} {"b":2}`, `{"a":1}`},
		{"no object", "no json here", ""},
		{"unbalanced", `{"a":1`, ""},
		{"empty input", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractBalancedJSON(tt.in))
		})
	}
}
