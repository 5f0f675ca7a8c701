package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/tender-matcher/internal/filtering"
	"github.com/spigell/tender-matcher/internal/tender"
)

func TestMatchedContractsDeduplicatesInRankOrder(t *testing.T) {
	a := &tender.Contract{Title: "a"}
	b := &tender.Contract{Title: "b"}
	results := &tender.MatchResults{Items: []*tender.MatchResult{
		{Tender: b, Score: 0.9},
		{Tender: a, Score: 0.8},
		{Tender: b, Score: 0.5},
	}}

	got := matchedContracts(results)
	if got.Len() != 2 || got.Items[0] != b || got.Items[1] != a {
		t.Fatalf("unexpected contracts: %+v", got.Items)
	}
}

func TestPrepareFilters(t *testing.T) {
	config := &Config{
		ExcludeFile: filepath.Join(t.TempDir(), "excluded.json"),
		Filters:     &FiltersConfig{ExcludeBuyers: []string{"NHS England"}},
	}

	statuses := filtering.Describe(prepareFilters(config))
	if len(statuses) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Enabled {
			t.Fatalf("expected filter %s to be enabled", s.Name)
		}
	}

	statuses = filtering.Describe(prepareFilters(&Config{}))
	for _, s := range statuses {
		if s.Enabled {
			t.Fatalf("expected filter %s to be disabled without configuration", s.Name)
		}
	}
}

func TestNewAugmenterDisabled(t *testing.T) {
	cases := map[string]struct {
		cfg      *AIConfig
		disabled bool
	}{
		"no section":  {cfg: nil},
		"not enabled": {cfg: &AIConfig{Enabled: false}},
		"flag":        {cfg: &AIConfig{Enabled: true}, disabled: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			augmenter, err := newAugmenter(context.Background(), tc.cfg, tc.disabled, zap.NewNop())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if augmenter != nil {
				t.Fatal("expected no augmenter")
			}
		})
	}
}

func TestNewAugmenterWithoutKeyFallsBack(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	augmenter, err := newAugmenter(context.Background(), &AIConfig{Enabled: true, Provider: "gemini"}, false, zap.NewNop())
	if err != nil {
		t.Fatalf("missing credentials must not be fatal: %v", err)
	}
	if augmenter == nil {
		t.Fatal("expected an augmenter")
	}

	assessment, err := augmenter.Augment(context.Background(), &tender.Contract{Title: "Roads"}, &tender.ClientProfile{ID: "c1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !assessment.Fallback || assessment.Score != 0.5 {
		t.Fatalf("expected neutral fallback, got %+v", assessment)
	}
	if !strings.Contains(assessment.Reasons[0], "GEMINI_API_KEY") {
		t.Fatalf("expected configuration hint in reason, got %q", assessment.Reasons[0])
	}
}

func TestNewAugmenterRejectsUnknownProvider(t *testing.T) {
	if _, err := newAugmenter(context.Background(), &AIConfig{Enabled: true, Provider: "bard"}, false, zap.NewNop()); err == nil {
		t.Fatal("expected unsupported provider to be rejected")
	}
}
