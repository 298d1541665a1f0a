package constants

import (
	"strings"
)

type Category string

// Trade-show expense taxonomy. Stable values: stored in corrections and
// compared against LLM output.
const (
	BoothMarketing Category = "Booth / Marketing / Tools"
	TravelFlight   Category = "Travel - Flight"
	Accommodation  Category = "Accommodation - Hotel"
	Transportation Category = "Transportation - Uber / Lyft / Others"
	ParkingFees    Category = "Parking Fees"
	Rental         Category = "Rental - Car / U-haul"
	Meals          Category = "Meal and Entertainment"
	GasFuel        Category = "Gas / Fuel"
	PerDiem        Category = "Show Allowances - Per Diem"
	Model          Category = "Model"
	Shipping       Category = "Shipping Charges"
	Other          Category = "Other"
)

var allCategories = []Category{
	BoothMarketing,
	TravelFlight,
	Accommodation,
	Transportation,
	ParkingFees,
	Rental,
	Meals,
	GasFuel,
	PerDiem,
	Model,
	Shipping,
	Other,
}

func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func CategoryNames() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps free-form labels (LLM output, user input) onto the
// taxonomy. Returns Other,false when nothing matches.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Other, false
	}

	synonyms := map[string]Category{
		"flight":        TravelFlight,
		"airline":       TravelFlight,
		"hotel":         Accommodation,
		"lodging":       Accommodation,
		"uber":          Transportation,
		"lyft":          Transportation,
		"taxi":          Transportation,
		"rideshare":     Transportation,
		"parking":       ParkingFees,
		"car rental":    Rental,
		"meals":         Meals,
		"food":          Meals,
		"restaurant":    Meals,
		"gas":           GasFuel,
		"fuel":          GasFuel,
		"per diem":      PerDiem,
		"shipping":      Shipping,
		"freight":       Shipping,
		"marketing":     BoothMarketing,
		"booth":         BoothMarketing,
		"miscellaneous": Other,
	}
	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}
	return Other, false
}
