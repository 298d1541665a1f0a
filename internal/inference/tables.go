package inference

import (
	"regexp"

	"github.com/showledger/receipt-pipeline/constants"
)

// Declarative pattern tables, compiled once at package init. Order matters:
// amount candidates keep the first occurrence of a value, date and card
// extraction take the first matching pattern.

type labeledPattern struct {
	label  string
	re     *regexp.Regexp
	weight float64
}

const amountCapture = `(\d{1,3}(?:,\d{3})*(?:[.,]\d{2})?)`
const currencyMark = `(?:\$|USD|€|EUR|£|GBP)`

var amountPatterns = []labeledPattern{
	{"grand total", regexp.MustCompile(`(?i)grand\s+total[\s:]*` + currencyMark + `?\s*` + amountCapture), 0.98},
	{"total", regexp.MustCompile(`(?i)\btotal\b[\s:]*` + currencyMark + `?\s*` + amountCapture), 0.95},
	{"amount", regexp.MustCompile(`(?i)\bamount\b(?:\s*(?:due|paid|charged))?[\s:]*` + currencyMark + `?\s*` + amountCapture), 0.90},
	{"currency labeled", regexp.MustCompile(`(?i)` + currencyMark + `\s*` + amountCapture + `\s*(?:total|amount|balance|due|paid)`), 0.90},
	{"balance", regexp.MustCompile(`(?i)\bbalance\b(?:\s*due)?[\s:]*` + currencyMark + `?\s*` + amountCapture), 0.85},
	{"subtotal", regexp.MustCompile(`(?i)\bsubtotal\b[\s:]*` + currencyMark + `?\s*` + amountCapture), 0.80},
}

var datePatterns = []labeledPattern{
	{"MM/DD/YYYY", regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{4}\b`), 0.90},
	{"MM/DD/YY", regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2}\b`), 0.85},
	{"YYYY/MM/DD", regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`), 0.90},
	{"Month DD, YYYY", regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}\b`), 0.95},
}

var cardPatterns = []labeledPattern{
	{"masked", regexp.MustCompile(`\*+(\d{4})`), 0.90},
	{"x-masked", regexp.MustCompile(`(?i)x{4,}(\d{4})`), 0.90},
	{"ending in", regexp.MustCompile(`(?i)ending\s+(?:in\s+)?(\d{4})`), 0.95},
	{"card masked", regexp.MustCompile(`(?i)card\s+(?:no\.?|number)?\s*\*+(\d{4})`), 0.95},
	{"brand masked", regexp.MustCompile(`(?i)(?:visa|mastercard|amex|discover)\s+\*+(\d{4})`), 1.0},
}

type categoryEntry struct {
	category constants.Category
	keywords []string
	weight   float64
}

// Slice, not map: suggestion order must be deterministic across calls.
var categoryTable = []categoryEntry{
	{constants.BoothMarketing, []string{"booth", "display", "banner", "signage", "marketing", "promotion", "brochure", "flyer", "tools", "equipment"}, 1.0},
	{constants.TravelFlight, []string{"airline", "airways", "flight", "aviation", "airport", "boarding", "departure", "arrival"}, 1.0},
	{constants.Accommodation, []string{"hotel", "motel", "inn", "resort", "marriott", "hilton", "hyatt", "holiday inn", "best western", "lodging", "accommodation", "night", "stay"}, 1.0},
	{constants.Transportation, []string{"uber", "lyft", "taxi", "cab", "rideshare", "ride-share", "transport", "your ride", "trip with", "pickup", "drop-off", "dropoff", "driver"}, 1.0},
	{constants.ParkingFees, []string{"parking", "park", "valet", "garage"}, 1.0},
	{constants.Rental, []string{"rental", "hertz", "enterprise", "avis", "budget", "u-haul", "uhaul", "car hire", "vehicle rental"}, 1.0},
	{constants.Meals, []string{"restaurant", "cafe", "coffee", "diner", "bistro", "grill", "kitchen", "bar", "pub", "food", "dining", "breakfast", "lunch", "dinner", "meal", "entertainment"}, 1.0},
	{constants.GasFuel, []string{"gas", "fuel", "gasoline", "diesel", "petrol", "shell", "bp", "exxon", "chevron", "mobil"}, 1.0},
	{constants.PerDiem, []string{"per diem", "allowance", "daily allowance", "show allowance"}, 1.0},
	{constants.Model, []string{"model", "talent", "contractor", "appearance"}, 1.0},
	{constants.Shipping, []string{"shipping", "freight", "delivery", "courier", "fedex", "ups", "usps", "dhl"}, 1.0},
	{constants.Other, []string{"misc", "miscellaneous", "other"}, 0.5},
}

const streetSuffix = `(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard|Dr|Drive|Ln|Lane|Way|Ct|Court|Pl|Place|Pkwy|Parkway)`

var locationPatterns = []labeledPattern{
	{"street city state zip", regexp.MustCompile(`\d{1,5}\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+` + streetSuffix + `\.?[\s,]*[A-Z][a-z]+[\s,]*[A-Z]{2}\s*\d{5}(?:-\d{4})?`), 0.98},
	{"street city state", regexp.MustCompile(`\d{1,5}\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+` + streetSuffix + `\.?[\s,]+[A-Z][a-z]+[\s,]+[A-Z]{2}\b`), 0.92},
	{"street", regexp.MustCompile(`\d{1,5}\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\s+` + streetSuffix + `\.?`), 0.80},
	{"city state zip", regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*,\s*[A-Z]{2}\s*\d{5}(?:-\d{4})?`), 0.95},
	{"city state", regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*,\s*[A-Z]{2}\b`), 0.85},
	{"known city", regexp.MustCompile(`(?:Las\s+Vegas|Los\s+Angeles|New\s+York|San\s+Francisco|San\s+Diego|San\s+Jose|San\s+Antonio),?\s*(?:[A-Z]{2})?`), 0.90},
}

var taxPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tax[\s:]*\$?\s*(\d+[.,]\d{2})`),
	regexp.MustCompile(`(?i)sales\s+tax[\s:]*\$?\s*(\d+[.,]\d{2})`),
}

var tipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tip[\s:]*\$?\s*(\d+[.,]\d{2})`),
	regexp.MustCompile(`(?i)gratuity[\s:]*\$?\s*(\d+[.,]\d{2})`),
}

// Merchant line exclusions.
var (
	reDigitsOnly = regexp.MustCompile(`^\d+$`)
	reBareDate   = regexp.MustCompile(`^\d{1,2}[-/]\d{1,2}[-/]\d{2,4}$`)
	reHeaderWord = regexp.MustCompile(`(?i)^(?:receipt|invoice)$`)
)

// Amount string normalization.
var (
	reEuroThousands = regexp.MustCompile(`\d+\.\d{3},\d{2}`)
	reEuroDecimal   = regexp.MustCompile(`^\d+,\d{2}$`)
)
