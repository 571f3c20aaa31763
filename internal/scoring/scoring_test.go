package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/foundersignal/pipeline/internal/model"
)

// fakeHistory lets tests control trend_momentum/cross_source_bonus inputs
// without a real store.
type fakeHistory struct {
	recent, older  int
	otherSources   int
	countErr       error
	crossErr       error
}

func (f *fakeHistory) CountMatchingTerms(ctx context.Context, source string, terms []string, since, until time.Time, excludePostID string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	// since/until window distinguishes the "recent" call (30d) from "older" (30-60d).
	if since.After(time.Now().Add(-31 * 24 * time.Hour)) {
		return f.recent, nil
	}
	return f.older, nil
}

func (f *fakeHistory) DistinctOtherSourcesMatching(ctx context.Context, excludeSource string, terms []string, since time.Time, excludePostID string) (int, error) {
	if f.crossErr != nil {
		return 0, f.crossErr
	}
	return f.otherSources, nil
}

func TestEngagementNorm_S1Forum(t *testing.T) {
	p := model.Post{Source: "discussion-forum", Upvotes: 100, CommentsCount: 25}
	got := EngagementNorm(p)
	if diff := got - 0.5; diff > 0.001 || diff < -0.001 {
		t.Errorf("EngagementNorm() = %v, want 0.5", got)
	}
}

func TestEngagementNorm_S2OneStarReview(t *testing.T) {
	p := model.Post{
		Source:   "review-platform-a",
		Metadata: map[string]any{"star_rating": float64(1)},
	}
	got := EngagementNorm(p)
	if diff := got - 0.7; diff > 0.001 || diff < -0.001 {
		t.Errorf("EngagementNorm() = %v, want 0.7", got)
	}
}

func TestRecency_S3Buckets(t *testing.T) {
	now := time.Now()
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{0, 1.0},
		{3 * 24 * time.Hour, 0.8},
		{20 * 24 * time.Hour, 0.5},
		{45 * 24 * time.Hour, 0.2},
		{100 * 24 * time.Hour, 0.0},
	}
	for _, tt := range tests {
		got := Recency(now.Add(-tt.age), now)
		if got != tt.want {
			t.Errorf("Recency(age=%v) = %v, want %v", tt.age, got, tt.want)
		}
	}
}

func TestRecency_MonotoneInvariant5(t *testing.T) {
	now := time.Now()
	older := now.Add(-50 * 24 * time.Hour)
	newer := now.Add(-1 * time.Hour)
	if Recency(newer, now) < Recency(older, now) {
		t.Error("more recent post must have recency >= older post")
	}
}

func TestMarketSignal_S4(t *testing.T) {
	text := "willing to pay for a B2B SaaS alternative to Jira"
	got := MarketSignal(text)
	if got != 1.0 {
		t.Errorf("MarketSignal() = %v, want 1.0 (clamped)", got)
	}
}

func TestMarketSignal_NoKeywords(t *testing.T) {
	if got := MarketSignal("just a regular post about cats"); got != 0 {
		t.Errorf("MarketSignal() = %v, want 0", got)
	}
}

func TestExtractKeyTerms_DropsStopWordsAndShortTokens(t *testing.T) {
	terms := ExtractKeyTerms("The billing system is broken! We use Stripe, and it fails a lot.")
	for _, term := range terms {
		if len(term) < 3 {
			t.Errorf("term %q shorter than 3", term)
		}
		if term == "the" || term == "and" || term == "use" {
			t.Errorf("stop word %q should have been dropped", term)
		}
	}
	if len(terms) > 5 {
		t.Errorf("ExtractKeyTerms() returned %d terms, want <= 5", len(terms))
	}
}

func TestTrendMomentum_S5(t *testing.T) {
	hist := &fakeHistory{recent: 12, older: 6}
	got, err := TrendMomentum(context.Background(), hist, "discussion-forum", []string{"billing"}, "p1", time.Now())
	if err != nil {
		t.Fatalf("TrendMomentum() error: %v", err)
	}
	if diff := got - 0.88; diff > 0.01 || diff < -0.01 {
		t.Errorf("TrendMomentum() = %v, want ~0.88", got)
	}
}

func TestTrendMomentum_NoOlderReturnsDefault(t *testing.T) {
	hist := &fakeHistory{recent: 3, older: 0}
	got, err := TrendMomentum(context.Background(), hist, "discussion-forum", []string{"billing"}, "p1", time.Now())
	if err != nil {
		t.Fatalf("TrendMomentum() error: %v", err)
	}
	if got != 0.5 {
		t.Errorf("TrendMomentum() = %v, want 0.5 when older==0", got)
	}
}

func TestCrossSourceBonus_S6(t *testing.T) {
	hist := &fakeHistory{otherSources: 2}
	got, err := CrossSourceBonus(context.Background(), hist, "discussion-forum", []string{"billing"}, "p1", time.Now())
	if err != nil {
		t.Fatalf("CrossSourceBonus() error: %v", err)
	}
	if got != 0.10 {
		t.Errorf("CrossSourceBonus() = %v, want 0.10", got)
	}
}

func TestCompute_AllDimensionsInRange_Invariant1(t *testing.T) {
	hist := &fakeHistory{recent: 5, older: 5, otherSources: 3}
	post := model.Post{
		ID:            "p1",
		Source:        "discussion-forum",
		Title:         "willing to pay for a better billing tool",
		Upvotes:       100,
		CommentsCount: 25,
		CreatedAt:     time.Now(),
	}
	ps := model.PainScore{Score: 0.9, ValidationScore: 0.8, SentimentIntensity: 0.7}

	sc, err := Compute(context.Background(), hist, post, ps, model.DefaultWeights(), time.Now())
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}

	for name, v := range sc.Dimensions() {
		if v < 0 || v > 1 {
			t.Errorf("dimension %s = %v, out of [0,1]", name, v)
		}
	}
	if sc.FinalScore < 0 || sc.FinalScore > 1 {
		t.Errorf("FinalScore = %v, out of [0,1]", sc.FinalScore)
	}
	if sc.CrossSourceBonus < 0 {
		t.Errorf("CrossSourceBonus = %v, want >= 0", sc.CrossSourceBonus)
	}
}

func TestCompute_Deterministic_Invariant4(t *testing.T) {
	hist := &fakeHistory{recent: 10, older: 5, otherSources: 1}
	post := model.Post{ID: "p1", Source: "discussion-forum", Title: "billing pain", CreatedAt: time.Now()}
	ps := model.PainScore{Score: 0.5, ValidationScore: 0.5, SentimentIntensity: 0.5}
	weights := model.DefaultWeights()
	now := time.Now()

	first, err := Compute(context.Background(), hist, post, ps, weights, now)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	second, err := Compute(context.Background(), hist, post, ps, weights, now)
	if err != nil {
		t.Fatalf("Compute() error: %v", err)
	}
	if first != second {
		t.Errorf("Compute() not deterministic: %+v != %+v", first, second)
	}
}

func TestIDUniquenessAcrossSources_Invariant8(t *testing.T) {
	a := model.Post{ID: "discussion-forum_123", Source: "discussion-forum"}
	b := model.Post{ID: "news-aggregator_123", Source: "news-aggregator"}
	if a.ID == b.ID {
		t.Error("normalized ids must differ across sources even with identical raw ids")
	}
}
