package adaptive

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/corrections"
	"github.com/showledger/receipt-pipeline/internal/inference"
	"github.com/showledger/receipt-pipeline/internal/ocr"
)

const (
	refreshInterval = 24 * time.Hour
	miningWindow    = 90 * 24 * time.Hour
	minOccurrences  = 3
	maxClusters     = 100
	refreshTimeout  = 10 * time.Second
)

// ClusterSource is the slice of the correction store the engine mines.
type ClusterSource interface {
	LearnedClusters(ctx context.Context, window time.Duration, minCount, limit int) ([]corrections.Cluster, error)
}

// LearnedPattern is a matcher mined from repeated corrections. Rebuilt
// wholesale on each refresh, never mutated in place.
type LearnedPattern struct {
	Field          constants.FieldName
	Matcher        *regexp.Regexp
	CorrectedValue string
	Confidence     float64
	Frequency      int
	LastSeen       time.Time
}

// Engine wraps the rule-based engine and overlays learned patterns.
type Engine struct {
	base   inference.Engine
	source ClusterSource
	logger *slog.Logger

	mu          sync.RWMutex // guards patterns + lastRefresh
	patterns    map[constants.FieldName][]LearnedPattern
	lastRefresh time.Time

	// refreshMu makes the lazy refresh single-flight: concurrent staleness
	// checks trigger at most one mining query.
	refreshMu sync.Mutex
}

// Stats summarizes the in-memory pattern cache.
type Stats struct {
	TotalPatterns int                           `json:"totalPatterns"`
	ByField       map[constants.FieldName]int   `json:"patternsByField"`
	LastRefresh   time.Time                     `json:"lastRefresh"`
}

func NewEngine(base inference.Engine, source ClusterSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		base:     base,
		source:   source,
		logger:   logger,
		patterns: map[constants.FieldName][]LearnedPattern{},
	}
	if source != nil {
		if err := e.ForceRefresh(context.Background()); err != nil {
			logger.Error("adaptive.refresh.startup_failed", "error", err)
		}
	}
	return e
}

func (e *Engine) Name() string { return "adaptive" }

func (e *Engine) Infer(res ocr.Result) inference.FieldInference {
	e.maybeRefresh()
	base := e.base.Infer(res)
	return e.applyPatterns(res.Text, base)
}

// SuggestCategories delegates to the base engine.
func (e *Engine) SuggestCategories(res ocr.Result, inf inference.FieldInference) []inference.CategorySuggestion {
	return e.base.SuggestCategories(res, inf)
}

func (e *Engine) maybeRefresh() {
	if e.source == nil {
		return
	}
	e.mu.RLock()
	stale := time.Since(e.lastRefresh) > refreshInterval
	e.mu.RUnlock()
	if !stale {
		return
	}
	if !e.refreshMu.TryLock() {
		// another request is already refreshing; use the current cache
		return
	}
	defer e.refreshMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := e.refresh(ctx); err != nil {
		e.logger.Error("adaptive.refresh.failed", "error", err)
	}
}

// ForceRefresh rebuilds the pattern cache immediately.
func (e *Engine) ForceRefresh(ctx context.Context) error {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()
	return e.refresh(ctx)
}

func (e *Engine) refresh(ctx context.Context) error {
	clusters, err := e.source.LearnedClusters(ctx, miningWindow, minOccurrences, maxClusters)
	if err != nil {
		return err
	}

	fresh := map[constants.FieldName][]LearnedPattern{}
	for _, c := range clusters {
		if c.OriginalValue == "" || c.CorrectedValue == "" || c.OriginalValue == c.CorrectedValue {
			continue
		}
		matcher := generatePattern(c.Field, c.OriginalValue)
		if matcher == nil {
			continue
		}
		fresh[c.Field] = append(fresh[c.Field], LearnedPattern{
			Field:          c.Field,
			Matcher:        matcher,
			CorrectedValue: c.CorrectedValue,
			Confidence:     math.Min(0.85+0.02*float64(c.Count), 0.98),
			Frequency:      c.Count,
			LastSeen:       c.LastSeen,
		})
	}

	// high-frequency patterns win ties during application
	for field := range fresh {
		ps := fresh[field]
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].Frequency > ps[j].Frequency })
	}

	// swap wholesale: readers see the old or the fully-new map, never partial
	e.mu.Lock()
	e.patterns = fresh
	e.lastRefresh = time.Now()
	e.mu.Unlock()

	total := 0
	for _, ps := range fresh {
		total += len(ps)
	}
	e.logger.Info("adaptive.refresh.ok", "patterns", total, "fields", len(fresh))
	return nil
}

var merchantStopwords = map[string]struct{}{
	"unknown":  {},
	"merchant": {},
	"receipt":  {},
}

// generatePattern derives a matcher from a cluster's original value. Category
// pattern generation is pending: deriving category keywords needs the source
// OCR text, which the cluster rows do not carry yet, so it returns nil.
func generatePattern(field constants.FieldName, originalValue string) *regexp.Regexp {
	if field != constants.FieldMerchant {
		return nil
	}
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(originalValue)) {
		if len(word) <= 4 {
			continue
		}
		if _, stop := merchantStopwords[word]; stop {
			continue
		}
		keywords = append(keywords, regexp.QuoteMeta(word))
		if len(keywords) == 3 {
			break
		}
	}
	if len(keywords) == 0 {
		return nil
	}
	re, err := regexp.Compile("(?i)" + strings.Join(keywords, "|"))
	if err != nil {
		return nil
	}
	return re
}

// applyPatterns overlays merchant patterns onto the base inference. A pattern
// overrides when the base confidence is low or the pattern is well attested.
func (e *Engine) applyPatterns(ocrText string, base inference.FieldInference) inference.FieldInference {
	e.mu.RLock()
	merchantPatterns := e.patterns[constants.FieldMerchant]
	e.mu.RUnlock()

	textLower := strings.ToLower(ocrText)
	for _, p := range merchantPatterns {
		if !p.Matcher.MatchString(textLower) {
			continue
		}
		if base.Merchant.Confidence < 0.7 || p.Frequency > 10 {
			e.logger.Debug("adaptive.pattern.applied",
				"value", p.CorrectedValue,
				"frequency", p.Frequency,
			)
			corrected := p.CorrectedValue
			base.Merchant = inference.FieldValue[string]{
				Value:      &corrected,
				Confidence: p.Confidence,
				Source:     inference.SourceInference,
				RawText:    learnedRawText(p.Frequency),
			}
			break
		}
	}

	// category pattern application stays a no-op until generation lands
	return base
}

func learnedRawText(frequency int) string {
	return "Learned from " + strconv.Itoa(frequency) + " user corrections"
}

// PatternStats reports the current cache contents.
func (e *Engine) PatternStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	byField := map[constants.FieldName]int{}
	total := 0
	for field, ps := range e.patterns {
		byField[field] = len(ps)
		total += len(ps)
	}
	return Stats{TotalPatterns: total, ByField: byField, LastRefresh: e.lastRefresh}
}
