package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/foundersignal/pipeline/internal/adapters"
	"github.com/foundersignal/pipeline/internal/analyzer"
	"github.com/foundersignal/pipeline/internal/llm"
	"github.com/foundersignal/pipeline/internal/model"
	"github.com/foundersignal/pipeline/internal/store"
)

type fakeAdapter struct {
	name  string
	posts []model.Post
}

func (f *fakeAdapter) Name() string                      { return f.name }
func (f *fakeAdapter) Platform() string                  { return f.name }
func (f *fakeAdapter) Capabilities() adapters.Capability { return adapters.CapSortNew }
func (f *fakeAdapter) Configure(map[string]string) error { return nil }
func (f *fakeAdapter) Scrape(context.Context, string, int, adapters.ScrapeOptions) ([]model.Post, error) {
	return f.posts, nil
}
func (f *fakeAdapter) HealthCheck(context.Context) bool { return true }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(dir+"/test.db", nil, nil)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPassesPrefilter_DiscussionForumGate_Invariant6(t *testing.T) {
	lowEngagement := model.Post{Source: "discussion-forum", Upvotes: 4, CommentsCount: 1}
	if passesPrefilter(lowEngagement) {
		t.Error("post below both thresholds should not pass prefilter")
	}

	highUpvotes := model.Post{Source: "discussion-forum", Upvotes: 5, CommentsCount: 0}
	if !passesPrefilter(highUpvotes) {
		t.Error("post meeting upvote threshold should pass")
	}

	highComments := model.Post{Source: "discussion-forum", Upvotes: 0, CommentsCount: 2}
	if !passesPrefilter(highComments) {
		t.Error("post meeting comment threshold should pass")
	}
}

func TestPassesPrefilter_ReviewPlatformsUnconditional(t *testing.T) {
	p := model.Post{Source: "review-platform-a", Upvotes: 0, CommentsCount: 0}
	if !passesPrefilter(p) {
		t.Error("review platform posts should pass unconditionally")
	}
}

func TestRun_SkipsLowEngagementWithoutCallingAnalyzer(t *testing.T) {
	s := openTestStore(t)
	calls := 0
	a := analyzer.New(fakeCompleter(func() { calls++ }))

	orch := New(s, a, model.ScoreWeights{}, nil, nil)
	scrapers := map[string]adapters.Adapter{
		"discussion-forum": &fakeAdapter{name: "discussion-forum", posts: []model.Post{
			{ID: "p1", Source: "discussion-forum", Title: "quiet post", Upvotes: 1, CommentsCount: 0, CreatedAt: time.Now()},
		}},
	}

	results, err := orch.Run(context.Background(), scrapers, map[string][]string{"discussion-forum": {"golang"}}, 10, 0.5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
	if calls != 0 {
		t.Errorf("analyzer should not be called for prefiltered-out posts, got %d calls", calls)
	}
}

func TestRun_PersistsQualifyingResultsAndSortsByComposite(t *testing.T) {
	s := openTestStore(t)
	a := analyzer.New(fakeCompleter(func() {}))
	orch := New(s, a, model.ScoreWeights{}, nil, nil)

	// Ids carry the source prefix, as the real adapters produce them.
	scrapers := map[string]adapters.Adapter{
		"discussion-forum": &fakeAdapter{name: "discussion-forum", posts: []model.Post{
			{ID: "discussion-forum_p1", Source: "discussion-forum", Title: "I'm paying for a workaround", Upvotes: 100, CommentsCount: 40, CreatedAt: time.Now()},
			{ID: "discussion-forum_p2", Source: "discussion-forum", Title: "minor gripe", Upvotes: 6, CommentsCount: 0, CreatedAt: time.Now()},
		}},
	}

	results, err := orch.Run(context.Background(), scrapers, map[string][]string{"discussion-forum": {"golang"}}, 10, 0)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].PainScore.CompositeValue < results[1].PainScore.CompositeValue {
		t.Error("results should be sorted by composite_value descending")
	}

	got, found, err := s.GetPost(context.Background(), "discussion-forum_p1")
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if !found {
		t.Fatal("post should have been persisted")
	}
	if got.ID != "discussion-forum_p1" {
		t.Errorf("ID = %q", got.ID)
	}
}

func TestRun_UnregisteredScraperIsSkippedNotFatal(t *testing.T) {
	s := openTestStore(t)
	a := analyzer.New(fakeCompleter(func() {}))
	orch := New(s, a, model.ScoreWeights{}, nil, nil)

	results, err := orch.Run(context.Background(), map[string]adapters.Adapter{}, map[string][]string{"nonexistent": {"x"}}, 10, 0.5)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func fakeCompleter(onCall func()) *fakeLLM {
	return &fakeLLM{onCall: onCall}
}

type fakeLLM struct{ onCall func() }

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.onCall()
	return `{"score":0.8,"reasoning":"ok","validation_score":0.5,"sentiment_label":"frustrated","sentiment_intensity":0.7}`, nil
}
