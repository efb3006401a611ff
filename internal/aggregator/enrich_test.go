package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/models"
	"github.com/johnrirwin/topicbuddy/internal/ratelimit"
	"github.com/johnrirwin/topicbuddy/internal/testutil"
)

type stubDetails struct {
	details map[string]*models.ItemDetail
	calls   []string
}

func (s *stubDetails) FetchDetail(ctx context.Context, id string) (*models.ItemDetail, error) {
	s.calls = append(s.calls, id)
	d, ok := s.details[id]
	if !ok {
		return nil, errors.New("412 blocked")
	}
	return d, nil
}

func TestEnricher_Enrich(t *testing.T) {
	details := &stubDetails{details: map[string]*models.ItemDetail{
		"BV1": {
			Title:   "Better title",
			Metrics: models.Metrics{"views": 5000, "coins": 7},
			Tags:    []string{"fpv", " fpv ", "build"},
		},
		"BV2": {Summary: "Fresh summary"},
	}}

	e := NewEnricher(ratelimit.New(0), testutil.NullLogger())
	e.Register("bilibili", details)

	items := []models.CandidateItem{
		{OriginalID: "BV1", Title: "old", Summary: "keep", Platform: "bilibili", Metrics: models.Metrics{"views": 10, "comments": 3}},
		{OriginalID: "BV2", Title: "stay", Platform: "bilibili"},
		{OriginalID: "BVX", Title: "failed", Platform: "bilibili", Metrics: models.Metrics{"views": 1}},
		{OriginalID: "rss-1", Title: "feed item"},
	}

	got := e.Enrich(context.Background(), items)

	if got[0].Title != "Better title" || got[0].Summary != "keep" {
		t.Errorf("items[0] title/summary = %q/%q", got[0].Title, got[0].Summary)
	}
	wantMetrics := models.Metrics{"views": 5000, "coins": 7, "comments": 3}
	for k, v := range wantMetrics {
		if got[0].Metrics[k] != v {
			t.Errorf("items[0].Metrics[%s] = %d, want %d", k, got[0].Metrics[k], v)
		}
	}
	if len(got[0].Labels) != 2 || got[0].Labels[0] != "fpv" || got[0].Labels[1] != "build" {
		t.Errorf("items[0].Labels = %v, want [fpv build]", got[0].Labels)
	}

	if got[1].Title != "stay" || got[1].Summary != "Fresh summary" {
		t.Errorf("items[1] title/summary = %q/%q", got[1].Title, got[1].Summary)
	}
	if got[1].Labels == nil {
		t.Error("items[1].Labels should be non-nil after enrichment")
	}

	if got[2].Title != "failed" || got[2].Metrics.Views() != 1 {
		t.Errorf("failed enrichment should keep item as fetched, got %+v", got[2])
	}

	if len(details.calls) != 3 {
		t.Errorf("FetchDetail called %d times, want 3 (feed item skipped)", len(details.calls))
	}
}

func TestEnricher_WaitsBetweenCalls(t *testing.T) {
	details := &stubDetails{details: map[string]*models.ItemDetail{
		"a": {}, "b": {}, "c": {},
	}}
	e := NewEnricher(ratelimit.New(30*time.Millisecond), testutil.NullLogger())
	e.Register("bilibili", details)

	items := []models.CandidateItem{
		{OriginalID: "a", Platform: "bilibili"},
		{OriginalID: "b", Platform: "bilibili"},
		{OriginalID: "c", Platform: "bilibili"},
	}

	start := time.Now()
	e.Enrich(context.Background(), items)
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Enrich() took %v, want at least two 30ms intervals", elapsed)
	}
}

func TestEnricher_CancelledContextKeepsItems(t *testing.T) {
	details := &stubDetails{details: map[string]*models.ItemDetail{"a": {Title: "new"}, "b": {Title: "new"}}}
	limiter := ratelimit.New(time.Hour)
	e := NewEnricher(limiter, testutil.NullLogger())
	e.Register("bilibili", details)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	items := []models.CandidateItem{
		{OriginalID: "a", Title: "old", Platform: "bilibili"},
		{OriginalID: "b", Title: "old", Platform: "bilibili"},
	}
	got := e.Enrich(ctx, items)

	if got[0].Title != "new" {
		t.Errorf("first item should be enriched, got %q", got[0].Title)
	}
	if got[1].Title != "old" {
		t.Errorf("second item should be kept as fetched, got %q", got[1].Title)
	}
}

func TestEnricher_NilPassThrough(t *testing.T) {
	var e *Enricher
	items := []models.CandidateItem{{OriginalID: "a", Platform: "bilibili"}}

	if got := e.Enrich(context.Background(), items); len(got) != 1 {
		t.Errorf("nil Enricher should pass items through, got %d", len(got))
	}
}

func TestNormalizeTags(t *testing.T) {
	// Precomposed and combining forms collapse after NFC.
	got := normalizeTags([]string{"caf\u00e9", "cafe\u0301", "", "  ", "drone"})

	if len(got) != 2 || got[0] != "caf\u00e9" || got[1] != "drone" {
		t.Errorf("normalizeTags() = %q, want [caf\u00e9 drone]", got)
	}
	if normalizeTags(nil) == nil {
		t.Error("normalizeTags(nil) should return a non-nil slice")
	}
}
