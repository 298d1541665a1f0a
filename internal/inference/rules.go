package inference

import (
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/showledger/receipt-pipeline/internal/ocr"
)

// RuleEngine extracts fields from OCR text with the static pattern tables.
// Pure and deterministic given identical input.
type RuleEngine struct {
	logger *slog.Logger
}

func NewRuleEngine(logger *slog.Logger) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{logger: logger}
}

func (e *RuleEngine) Name() string { return "rule-based" }

func (e *RuleEngine) Infer(res ocr.Result) FieldInference {
	text := res.Text
	textLower := strings.ToLower(text)
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(ln); t != "" {
			lines = append(lines, t)
		}
	}

	inf := FieldInference{
		Merchant:     e.extractMerchant(lines, res.Confidence),
		Amount:       e.extractAmount(text, res.Confidence),
		Date:         e.extractDate(text, res.Confidence),
		CardLastFour: e.extractCardLastFour(text, res.Confidence),
		Category:     e.predictCategory(textLower, res.Confidence),
		Location:     e.extractLocation(text, res.Confidence),
		TaxAmount:    extractLabeledAmount(taxPatterns, text, res.Confidence),
		TipAmount:    extractLabeledAmount(tipPatterns, text, res.Confidence),
	}

	e.logger.Debug("inference.rules.done",
		"merchant_conf", inf.Merchant.Confidence,
		"amount_conf", inf.Amount.Confidence,
		"date_conf", inf.Date.Confidence,
		"card_conf", inf.CardLastFour.Confidence,
		"category_conf", inf.Category.Confidence,
	)
	return inf
}

// extractMerchant scans the first 8 substantial lines and takes the first
// that is not a number, bare date, or receipt/invoice header.
func (e *RuleEngine) extractMerchant(lines []string, ocrConf float64) FieldValue[string] {
	limit := len(lines)
	if limit > 8 {
		limit = 8
	}
	for _, line := range lines[:limit] {
		if len(line) > 3 &&
			!reDigitsOnly.MatchString(line) &&
			!reHeaderWord.MatchString(line) &&
			!reBareDate.MatchString(line) {
			conf := math.Min(0.7+ocrConf*0.3, 0.95)
			return FieldValue[string]{
				Value:      ptr(line),
				Confidence: conf,
				Source:     SourceInference,
				RawText:    line,
			}
		}
	}
	return Empty[string]()
}

type amountCandidate struct {
	value   float64
	conf    float64
	rawText string
}

func (e *RuleEngine) extractAmount(text string, ocrConf float64) FieldValue[float64] {
	var candidates []amountCandidate

	for _, p := range amountPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			v, ok := normalizeAmount(m[1])
			if !ok || v < 0.01 || v > 100000 {
				continue
			}
			conf := math.Min(p.weight*ocrConf, 0.98)
			if hasNearEqual(candidates, v) {
				continue
			}
			candidates = append(candidates, amountCandidate{value: v, conf: conf, rawText: m[0]})
		}
	}

	if len(candidates) == 0 {
		return Empty[float64]()
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].conf > candidates[j].conf })

	best := candidates[0]
	var alts []Alternative[float64]
	for _, c := range candidates[1:] {
		if len(alts) == 2 {
			break
		}
		alts = append(alts, Alternative[float64]{Value: c.value, Confidence: c.conf})
	}
	return FieldValue[float64]{
		Value:        ptr(best.value),
		Confidence:   best.conf,
		Source:       SourceInference,
		RawText:      best.rawText,
		Alternatives: alts,
	}
}

func hasNearEqual(candidates []amountCandidate, v float64) bool {
	for _, c := range candidates {
		if math.Abs(c.value-v) < 0.01 {
			return true
		}
	}
	return false
}

// normalizeAmount parses US and European formatted amount strings.
func normalizeAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, " ", "")
	switch {
	case reEuroThousands.MatchString(s):
		// 1.234,56 -> 1234.56
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case reEuroDecimal.MatchString(s):
		// 123,45 -> 123.45
		s = strings.Replace(s, ",", ".", 1)
	default:
		// 1,234.56 -> 1234.56
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// extractDate returns the raw matched date text; first pattern wins.
func (e *RuleEngine) extractDate(text string, ocrConf float64) FieldValue[string] {
	for _, p := range datePatterns {
		if m := p.re.FindString(text); m != "" {
			conf := math.Min(p.weight*ocrConf, 0.95)
			return FieldValue[string]{
				Value:      ptr(m),
				Confidence: conf,
				Source:     SourceInference,
				RawText:    m,
			}
		}
	}
	return Empty[string]()
}

func (e *RuleEngine) extractCardLastFour(text string, ocrConf float64) FieldValue[string] {
	for _, p := range cardPatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			conf := math.Min(p.weight*ocrConf, 0.98)
			return FieldValue[string]{
				Value:      ptr(m[1]),
				Confidence: conf,
				Source:     SourceInference,
				RawText:    m[0],
			}
		}
	}
	return Empty[string]()
}

func (e *RuleEngine) predictCategory(textLower string, ocrConf float64) FieldValue[string] {
	var best *CategorySuggestion
	for _, entry := range categoryTable {
		matched := matchedKeywords(textLower, entry.keywords)
		if len(matched) == 0 {
			continue
		}
		conf := categoryScore(len(matched), len(entry.keywords), entry.weight, ocrConf)
		if best == nil || conf > best.Confidence {
			best = &CategorySuggestion{
				Category:   string(entry.category),
				Confidence: conf,
				Keywords:   matched,
			}
		}
	}
	if best == nil {
		return Empty[string]()
	}
	return FieldValue[string]{
		Value:      ptr(best.Category),
		Confidence: best.Confidence,
		Source:     SourceInference,
		RawText:    strings.Join(best.Keywords, ", "),
	}
}

func matchedKeywords(textLower string, keywords []string) []string {
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(textLower, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

func categoryScore(matched, total int, weight, ocrConf float64) float64 {
	matchScore := float64(matched) / float64(total)
	return math.Min((0.5+matchScore*0.4)*weight*ocrConf, 0.95)
}

func (e *RuleEngine) extractLocation(text string, ocrConf float64) FieldValue[string] {
	var best FieldValue[string]
	for _, p := range locationPatterns {
		m := p.re.FindString(text)
		if m == "" {
			continue
		}
		loc := strings.TrimSpace(m)
		conf := math.Min(p.weight*ocrConf, 0.90)
		if best.Value == nil || conf > best.Confidence {
			best = FieldValue[string]{
				Value:      ptr(loc),
				Confidence: conf,
				Source:     SourceInference,
				RawText:    loc,
			}
		}
	}
	if best.Value == nil {
		return Empty[string]()
	}
	return best
}

func extractLabeledAmount(patterns []*regexp.Regexp, text string, ocrConf float64) FieldValue[float64] {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil || v < 0 || v > 10000 {
			continue
		}
		return FieldValue[float64]{
			Value:      ptr(v),
			Confidence: math.Min(0.85*ocrConf, 0.90),
			Source:     SourceInference,
			RawText:    m[0],
		}
	}
	return Empty[float64]()
}

// SuggestCategories rescans the keyword table and returns the top 3 by score,
// independent of the primary category choice.
func (e *RuleEngine) SuggestCategories(res ocr.Result, _ FieldInference) []CategorySuggestion {
	textLower := strings.ToLower(res.Text)
	var suggestions []CategorySuggestion
	for _, entry := range categoryTable {
		matched := matchedKeywords(textLower, entry.keywords)
		if len(matched) == 0 {
			continue
		}
		suggestions = append(suggestions, CategorySuggestion{
			Category:   string(entry.category),
			Confidence: categoryScore(len(matched), len(entry.keywords), entry.weight, res.Confidence),
			Keywords:   matched,
			Source:     e.Name(),
		})
	}
	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].Confidence > suggestions[j].Confidence })
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}
