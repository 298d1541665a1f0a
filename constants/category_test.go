package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		in     string
		want   Category
		wantOK bool
	}{
		{"Parking Fees", ParkingFees, true},
		{"parking fees", ParkingFees, true},
		{"  Gas / Fuel  ", GasFuel, true},
		{"uber", Transportation, true},
		{"hotel", Accommodation, true},
		{"restaurant", Meals, true},
		{"miscellaneous", Other, true},
		{"cryptocurrency", Other, false},
		{"", Other, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Canonicalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCategoryNamesCoversTaxonomy(t *testing.T) {
	names := CategoryNames()
	assert.Len(t, names, 12)
	assert.Contains(t, names, "Other")

	// callers may reorder their copy without corrupting the taxonomy
	cats := AllCategories()
	cats[0] = "mutated"
	assert.Equal(t, BoothMarketing, AllCategories()[0])
}
