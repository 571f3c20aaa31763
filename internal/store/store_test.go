package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/foundersignal/pipeline/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "pipeline.db"), nil, nil)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePost(id, source string, createdAt time.Time) model.Post {
	p := model.Post{
		ID:            id,
		Source:        source,
		Title:         "my SaaS billing is broken",
		Body:          "stripe webhooks keep failing silently",
		Author:        "alice",
		URL:           "https://example.com/" + id,
		Upvotes:       10,
		CommentsCount: 3,
		CreatedAt:     createdAt,
		Metadata:      map[string]any{"flair": "rant"},
	}
	p.Normalize()
	return p
}

func TestSavePostThenGetPost(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := samplePost("abc123", "discussion-forum", time.Now())
	if err := s.SavePost(ctx, p); err != nil {
		t.Fatalf("SavePost() error: %v", err)
	}

	got, ok, err := s.GetPost(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if !ok {
		t.Fatal("GetPost() found = false, want true")
	}
	if got.Title != p.Title || got.Source != p.Source {
		t.Errorf("GetPost() = %+v, want title/source matching %+v", got, p)
	}
	if got.Metadata["flair"] != "rant" {
		t.Errorf("Metadata round-trip failed: %+v", got.Metadata)
	}
}

func TestGetPostMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetPost(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetPost() error: %v", err)
	}
	if ok {
		t.Error("GetPost() found = true, want false for missing id")
	}
}

func TestSavePostIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := samplePost("dup1", "discussion-forum", time.Now())
	if err := s.SavePost(ctx, p); err != nil {
		t.Fatalf("first SavePost() error: %v", err)
	}
	p.Upvotes = 99
	if err := s.SavePost(ctx, p); err != nil {
		t.Fatalf("second SavePost() error: %v", err)
	}

	posts, err := s.GetPosts(ctx, 0, "discussion-forum")
	if err != nil {
		t.Fatalf("GetPosts() error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("GetPosts() len = %d, want 1 (upsert must not duplicate)", len(posts))
	}
	if posts[0].Upvotes != 99 {
		t.Errorf("Upvotes = %d, want 99 (last write wins)", posts[0].Upvotes)
	}
}

func TestGetPostsFiltersBySourceAndOrdersByCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()

	_ = s.SavePost(ctx, samplePost("p1", "discussion-forum", now.Add(-2*time.Hour)))
	_ = s.SavePost(ctx, samplePost("p2", "discussion-forum", now))
	_ = s.SavePost(ctx, samplePost("p3", "news-aggregator", now))

	posts, err := s.GetPosts(ctx, 0, "discussion-forum")
	if err != nil {
		t.Fatalf("GetPosts() error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("GetPosts() len = %d, want 2", len(posts))
	}
	if posts[0].ID != "p2" {
		t.Errorf("GetPosts()[0].ID = %q, want p2 (most recent first)", posts[0].ID)
	}
}

func TestGetPostsRespectsLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		_ = s.SavePost(ctx, samplePost(
			fmt.Sprintf("p%d", i), "discussion-forum", now.Add(time.Duration(i)*time.Minute)))
	}

	posts, err := s.GetPosts(ctx, 2, "")
	if err != nil {
		t.Fatalf("GetPosts() error: %v", err)
	}
	if len(posts) != 2 {
		t.Errorf("GetPosts() len = %d, want 2", len(posts))
	}
}

func TestSaveAndGetSignal(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_ = s.SavePost(ctx, samplePost("sig1", "discussion-forum", time.Now()))

	ps := model.PainScore{
		Score:              0.8,
		Reasoning:          "clear billing pain",
		DetectedProblems:   []string{"webhook failures"},
		SuggestedSolutions: []string{"retry queue"},
		SentimentLabel:     model.SentimentFrustrated,
		SentimentIntensity: 0.7,
	}
	if err := s.SaveSignal(ctx, "sig1", ps); err != nil {
		t.Fatalf("SaveSignal() error: %v", err)
	}

	got, ok, err := s.GetSignal(ctx, "sig1")
	if err != nil {
		t.Fatalf("GetSignal() error: %v", err)
	}
	if !ok {
		t.Fatal("GetSignal() found = false, want true")
	}
	if got.Score != 0.8 || len(got.DetectedProblems) != 1 || got.DetectedProblems[0] != "webhook failures" {
		t.Errorf("GetSignal() = %+v, want score 0.8 and round-tripped problems", got)
	}
}

func TestSaveOpportunityScoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_ = s.SavePost(ctx, samplePost("opp1", "discussion-forum", time.Now()))

	sc := model.OpportunityScore{
		PostID:     "opp1",
		Source:     "discussion-forum",
		FinalScore: 0.55,
		Weights:    model.DefaultWeights(),
		ComputedAt: time.Now(),
	}
	if err := s.SaveOpportunityScore(ctx, sc); err != nil {
		t.Fatalf("first SaveOpportunityScore() error: %v", err)
	}
	if err := s.SaveOpportunityScore(ctx, sc); err != nil {
		t.Fatalf("second SaveOpportunityScore() error: %v", err)
	}

	scores, err := s.GetOpportunityScores(ctx, 0, 0)
	if err != nil {
		t.Fatalf("GetOpportunityScores() error: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("GetOpportunityScores() len = %d, want 1", len(scores))
	}
	if scores[0].Weights.PainIntensity != model.DefaultWeights().PainIntensity {
		t.Errorf("weights did not round-trip: %+v", scores[0].Weights)
	}
}

func TestGetOpportunityScoresFiltersByMinScore(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_ = s.SavePost(ctx, samplePost("lo", "discussion-forum", time.Now()))
	_ = s.SavePost(ctx, samplePost("hi", "discussion-forum", time.Now()))

	_ = s.SaveOpportunityScore(ctx, model.OpportunityScore{PostID: "lo", FinalScore: 0.1, ComputedAt: time.Now()})
	_ = s.SaveOpportunityScore(ctx, model.OpportunityScore{PostID: "hi", FinalScore: 0.9, ComputedAt: time.Now()})

	scores, err := s.GetOpportunityScores(ctx, 0, 0.5)
	if err != nil {
		t.Fatalf("GetOpportunityScores() error: %v", err)
	}
	if len(scores) != 1 || scores[0].PostID != "hi" {
		t.Errorf("GetOpportunityScores(min=0.5) = %+v, want only 'hi'", scores)
	}
}

func TestSaveLeadAssignsIDAndGetLeadsOrders(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id1, err := s.SaveLead(ctx, model.Lead{PostID: "p1", ContactInfo: "a@example.com", Status: "new"})
	if err != nil {
		t.Fatalf("SaveLead() error: %v", err)
	}
	if id1 == 0 {
		t.Error("SaveLead() should assign a non-zero id")
	}

	leads, err := s.GetLeads(ctx, 0)
	if err != nil {
		t.Fatalf("GetLeads() error: %v", err)
	}
	if len(leads) != 1 || leads[0].ContactInfo != "a@example.com" {
		t.Errorf("GetLeads() = %+v", leads)
	}
}

func TestSaveReportAssignsID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.SaveReport(ctx, model.ValidationReport{PostID: "p1", Summary: "validated demand", Confidence: 0.7})
	if err != nil {
		t.Fatalf("SaveReport() error: %v", err)
	}
	if id == 0 {
		t.Error("SaveReport() should assign a non-zero id")
	}

	reports, err := s.GetReports(ctx, 0)
	if err != nil {
		t.Fatalf("GetReports() error: %v", err)
	}
	if len(reports) != 1 || reports[0].Confidence != 0.7 {
		t.Errorf("GetReports() = %+v", reports)
	}
}

func TestCountMatchingTerms(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()

	_ = s.SavePost(ctx, samplePost("m1", "discussion-forum", now.Add(-10*24*time.Hour)))
	_ = s.SavePost(ctx, samplePost("m2", "discussion-forum", now.Add(-40*24*time.Hour)))
	_ = s.SavePost(ctx, samplePost("exclude-me", "discussion-forum", now))

	count, err := s.CountMatchingTerms(ctx, "discussion-forum", []string{"billing", "stripe"},
		now.Add(-30*24*time.Hour), now, "exclude-me")
	if err != nil {
		t.Fatalf("CountMatchingTerms() error: %v", err)
	}
	if count != 1 {
		t.Errorf("CountMatchingTerms() = %d, want 1 (only m1 within window)", count)
	}
}

func TestDistinctOtherSourcesMatching(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	now := time.Now()

	_ = s.SavePost(ctx, samplePost("origin", "discussion-forum", now))
	_ = s.SavePost(ctx, samplePost("other1", "news-aggregator", now))
	_ = s.SavePost(ctx, samplePost("other2", "review-platform-a", now))
	_ = s.SavePost(ctx, samplePost("old", "news-aggregator", now.Add(-120*24*time.Hour)))

	count, err := s.DistinctOtherSourcesMatching(ctx, "discussion-forum", []string{"billing", "stripe"},
		now.Add(-90*24*time.Hour), "origin")
	if err != nil {
		t.Fatalf("DistinctOtherSourcesMatching() error: %v", err)
	}
	if count != 2 {
		t.Errorf("DistinctOtherSourcesMatching() = %d, want 2", count)
	}
}

func TestOpenAppliesLazyMigrationIdempotently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.db")

	s1, err := Open(path, nil, nil)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	_ = s1.SavePost(context.Background(), samplePost("x1", "discussion-forum", time.Now()))
	s1.Close()

	s2, err := Open(path, nil, nil)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer s2.Close()

	got, ok, err := s2.GetPost(context.Background(), "x1")
	if err != nil || !ok {
		t.Fatalf("GetPost() after reopen: ok=%v err=%v", ok, err)
	}
	if got.ID != "x1" {
		t.Errorf("GetPost() = %+v", got)
	}
}
