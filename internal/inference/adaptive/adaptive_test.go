package adaptive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showledger/receipt-pipeline/constants"
	"github.com/showledger/receipt-pipeline/internal/corrections"
	"github.com/showledger/receipt-pipeline/internal/inference"
	"github.com/showledger/receipt-pipeline/internal/ocr"
)

type fakeSource struct {
	clusters []corrections.Cluster
	err      error
	calls    int
}

func (f *fakeSource) LearnedClusters(_ context.Context, _ time.Duration, _, _ int) ([]corrections.Cluster, error) {
	f.calls++
	return f.clusters, f.err
}

type fixedEngine struct {
	inf inference.FieldInference
}

func (f *fixedEngine) Infer(ocr.Result) inference.FieldInference { return f.inf }
func (f *fixedEngine) SuggestCategories(ocr.Result, inference.FieldInference) []inference.CategorySuggestion {
	return nil
}
func (f *fixedEngine) Name() string { return "fixed" }

func merchantInference(value string, conf float64) inference.FieldInference {
	var inf inference.FieldInference
	if value != "" {
		inf.Merchant = inference.FieldValue[string]{
			Value:      &value,
			Confidence: conf,
			Source:     inference.SourceInference,
		}
	}
	return inf
}

func cluster(original, corrected string, count int) corrections.Cluster {
	return corrections.Cluster{
		Field:          constants.FieldMerchant,
		OriginalValue:  original,
		CorrectedValue: corrected,
		Count:          count,
		LastSeen:       time.Now(),
	}
}

func TestPatternConfidenceFromFrequency(t *testing.T) {
	src := &fakeSource{clusters: []corrections.Cluster{
		cluster("WALMART SUPERCENTER #1234", "Walmart", 3),
		cluster("TARGET STORE T-0456", "Target", 100),
	}}
	e := NewEngine(&fixedEngine{inf: merchantInference("WALMART SUPERCENTER #1234", 0.5)}, src, nil)

	stats := e.PatternStats()
	assert.Equal(t, 2, stats.TotalPatterns)
	assert.Equal(t, 2, stats.ByField[constants.FieldMerchant])
	assert.False(t, stats.LastRefresh.IsZero())

	inf := e.Infer(ocr.Result{Text: "WALMART SUPERCENTER #1234\nTotal $10.00", Confidence: 0.9})
	require.NotNil(t, inf.Merchant.Value)
	assert.Equal(t, "Walmart", *inf.Merchant.Value)
	// min(0.85 + 0.02*3, 0.98)
	assert.InDelta(t, 0.91, inf.Merchant.Confidence, 1e-9)
	assert.Equal(t, "Learned from 3 user corrections", inf.Merchant.RawText)
	assert.Equal(t, inference.SourceInference, inf.Merchant.Source)

	inf = e.Infer(ocr.Result{Text: "TARGET STORE T-0456", Confidence: 0.9})
	require.NotNil(t, inf.Merchant.Value)
	assert.Equal(t, "Target", *inf.Merchant.Value)
	// capped at 0.98, not 0.85 + 2.0
	assert.InDelta(t, 0.98, inf.Merchant.Confidence, 1e-9)
}

func TestOverrideConditions(t *testing.T) {
	tests := []struct {
		name         string
		baseConf     float64
		frequency    int
		wantOverride bool
	}{
		{"low base confidence", 0.5, 4, true},
		{"high frequency beats confident base", 0.9, 11, true},
		{"confident base and modest frequency", 0.9, 10, false},
		{"boundary base confidence", 0.7, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{clusters: []corrections.Cluster{
				cluster("STARBUCKS COFFEE #553", "Starbucks", tt.frequency),
			}}
			base := merchantInference("STARBUCKS COFFEE #553", tt.baseConf)
			e := NewEngine(&fixedEngine{inf: base}, src, nil)

			inf := e.Infer(ocr.Result{Text: "STARBUCKS COFFEE #553", Confidence: 0.9})
			require.NotNil(t, inf.Merchant.Value)
			if tt.wantOverride {
				assert.Equal(t, "Starbucks", *inf.Merchant.Value)
			} else {
				assert.Equal(t, "STARBUCKS COFFEE #553", *inf.Merchant.Value)
				assert.InDelta(t, tt.baseConf, inf.Merchant.Confidence, 1e-9)
			}
		})
	}
}

func TestSelfCorrectionsDiscarded(t *testing.T) {
	src := &fakeSource{clusters: []corrections.Cluster{
		cluster("Walmart", "Walmart", 50),
		cluster("", "Target", 50),
		cluster("Costco", "", 50),
	}}
	e := NewEngine(&fixedEngine{}, src, nil)
	assert.Zero(t, e.PatternStats().TotalPatterns)
}

func TestKeywordExtraction(t *testing.T) {
	src := &fakeSource{clusters: []corrections.Cluster{
		// short words and stopwords contribute nothing
		cluster("the and or receipt", "Someplace", 5),
		// only words longer than 4 chars, capped at 3
		cluster("GIANT EAGLE SUPERMARKET PITTSBURGH STORE", "Giant Eagle", 5),
	}}
	e := NewEngine(&fixedEngine{inf: merchantInference("x", 0.1)}, src, nil)

	stats := e.PatternStats()
	assert.Equal(t, 1, stats.TotalPatterns)

	// any one keyword is enough to match
	inf := e.Infer(ocr.Result{Text: "supermarket on 5th", Confidence: 0.9})
	require.NotNil(t, inf.Merchant.Value)
	assert.Equal(t, "Giant Eagle", *inf.Merchant.Value)
}

func TestCategoryGenerationIsStubbed(t *testing.T) {
	src := &fakeSource{clusters: []corrections.Cluster{{
		Field:          constants.FieldCategory,
		OriginalValue:  "Other",
		CorrectedValue: "Meal and Entertainment",
		Count:          50,
		LastSeen:       time.Now(),
	}}}
	e := NewEngine(&fixedEngine{}, src, nil)
	assert.Zero(t, e.PatternStats().TotalPatterns)
}

func TestRefreshIsLazy(t *testing.T) {
	src := &fakeSource{}
	e := NewEngine(&fixedEngine{}, src, nil)
	require.Equal(t, 1, src.calls) // startup refresh

	e.Infer(ocr.Result{Text: "anything"})
	e.Infer(ocr.Result{Text: "anything"})
	assert.Equal(t, 1, src.calls) // cache still fresh

	e.mu.Lock()
	e.lastRefresh = time.Now().Add(-25 * time.Hour)
	e.mu.Unlock()

	e.Infer(ocr.Result{Text: "anything"})
	assert.Equal(t, 2, src.calls)
}

func TestRefreshFailureKeepsOldPatterns(t *testing.T) {
	src := &fakeSource{clusters: []corrections.Cluster{
		cluster("COSTCO WHOLESALE #77", "Costco", 20),
	}}
	e := NewEngine(&fixedEngine{inf: merchantInference("COSTCO WHOLESALE #77", 0.5)}, src, nil)
	require.Equal(t, 1, e.PatternStats().TotalPatterns)

	src.err = errors.New("db down")
	require.Error(t, e.ForceRefresh(context.Background()))

	// stale cache still serves
	assert.Equal(t, 1, e.PatternStats().TotalPatterns)
	inf := e.Infer(ocr.Result{Text: "costco wholesale #77", Confidence: 0.9})
	require.NotNil(t, inf.Merchant.Value)
	assert.Equal(t, "Costco", *inf.Merchant.Value)
}

func TestNoSourceDisablesLearning(t *testing.T) {
	e := NewEngine(&fixedEngine{inf: merchantInference("Corner Shop", 0.4)}, nil, nil)
	inf := e.Infer(ocr.Result{Text: "corner shop", Confidence: 0.9})
	require.NotNil(t, inf.Merchant.Value)
	assert.Equal(t, "Corner Shop", *inf.Merchant.Value)
	assert.Zero(t, e.PatternStats().TotalPatterns)
}
