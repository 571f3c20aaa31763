// Package discovery implements the Discovery Orchestrator (C7): it fans out
// to selected adapters, applies the platform-aware prefilter, invokes the
// Pain Analyzer and Scoring Engine, persists qualifying results, and returns
// them sorted by the legacy composite_value for backward compatibility,
// grounded on the original's discover() in modules/discovery.py.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foundersignal/pipeline/infrastructure/logging"
	"github.com/foundersignal/pipeline/infrastructure/metrics"
	"github.com/foundersignal/pipeline/internal/adapters"
	"github.com/foundersignal/pipeline/internal/analyzer"
	"github.com/foundersignal/pipeline/internal/model"
	"github.com/foundersignal/pipeline/internal/scoring"
	"github.com/foundersignal/pipeline/internal/store"
)

// Result pairs a Post with the PainScore and OpportunityScore computed for
// it during one discovery run.
type Result struct {
	Post       model.Post
	PainScore  model.PainScore
	Opportunity model.OpportunityScore
}

// Orchestrator wires the adapters, analyzer, scoring engine, and store for
// one discovery run.
type Orchestrator struct {
	store    *store.Store
	analyzer *analyzer.Analyzer
	weights  model.ScoreWeights
	log      *logging.Logger
	metric   *metrics.Metrics

	// maxConcurrentTasks bounds the number of (adapter,target) tasks run at
	// once; 0 means errgroup.SetLimit is not applied.
	maxConcurrentTasks int
}

// New builds an Orchestrator. weights may be the zero value, in which case
// model.DefaultWeights() is used.
func New(s *store.Store, a *analyzer.Analyzer, weights model.ScoreWeights, log *logging.Logger, metric *metrics.Metrics) *Orchestrator {
	if weights.Sum() == 0 {
		weights = model.DefaultWeights()
	}
	return &Orchestrator{store: s, analyzer: a, weights: weights, log: log, metric: metric, maxConcurrentTasks: 4}
}

// prefilterThreshold names the per-source minimum-engagement gate from §4.5.
type prefilterThreshold struct {
	minUpvotes  int
	minComments int
}

var prefilterTable = map[string]prefilterThreshold{
	"discussion-forum": {minUpvotes: 5, minComments: 2},
	"news-aggregator":  {minUpvotes: 3, minComments: 1},
}

// passesPrefilter applies the platform-aware minimum-engagement rule.
// Sources absent from the table (the review platforms, product-launch)
// pass unconditionally.
func passesPrefilter(p model.Post) bool {
	t, ok := prefilterTable[p.Source]
	if !ok {
		return true
	}
	return p.Upvotes >= t.minUpvotes || p.CommentsCount >= t.minComments
}

// legacyComposite reproduces the original's backward-compatible composite
// formula: Value = Pain*0.4 + Engagement*0.25 + Validation*0.25 + Recency*0.10.
func legacyComposite(ps model.PainScore) float64 {
	return ps.Score*0.4 + ps.EngagementScore*0.25 + ps.ValidationScore*0.25 + ps.RecencyScore*0.10
}

// task is one (adapter, target) unit of work.
type task struct {
	adapterName string
	adapter     adapters.Adapter
	target      string
}

// Run fetches posts for every (adapter, target) pair in targets, analyzes
// and scores each one that passes the prefilter, persists qualifying
// results (final_score >= minScore), and returns them sorted by
// composite_value descending. Errors from one (adapter, target) pair are
// logged and do not abort the run.
func (o *Orchestrator) Run(ctx context.Context, scrapers map[string]adapters.Adapter, targets map[string][]string, limit int, minScore float64) ([]Result, error) {
	var tasks []task
	for name, targetList := range targets {
		a, ok := scrapers[name]
		if !ok {
			o.logWarn(ctx, "discovery: no scraper registered for %q, skipping", name)
			continue
		}
		for _, target := range targetList {
			tasks = append(tasks, task{adapterName: name, adapter: a, target: target})
		}
	}

	taskResults := make([][]Result, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	if o.maxConcurrentTasks > 0 {
		g.SetLimit(o.maxConcurrentTasks)
	}

	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			results, err := o.runTask(gctx, t, limit, minScore)
			if err != nil {
				o.logWarn(gctx, "discovery: task %s/%s failed: %v", t.adapterName, t.target, err)
				return nil
			}
			taskResults[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Result
	for _, r := range taskResults {
		all = append(all, r...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PainScore.CompositeValue > all[j].PainScore.CompositeValue
	})
	return all, nil
}

// runTask scrapes one (adapter, target) pair, serializing analysis and
// scoring behind the LLM pacing delay the analyzer's client already
// enforces.
func (o *Orchestrator) runTask(ctx context.Context, t task, limit int, minScore float64) ([]Result, error) {
	posts, err := t.adapter.Scrape(ctx, t.target, limit, adapters.ScrapeOptions{})
	if err != nil {
		return nil, err
	}

	var results []Result
	now := time.Now().UTC()
	for _, p := range posts {
		if !passesPrefilter(p) {
			continue
		}

		ps := o.analyzer.Analyze(ctx, p)
		ps.EngagementScore = scoring.EngagementNorm(p)
		ps.RecencyScore = scoring.Recency(p.CreatedAt, now)
		ps.CompositeValue = legacyComposite(ps)

		sc, err := scoring.Compute(ctx, o.store, p, ps, o.weights, now)
		if err != nil {
			o.logWarn(ctx, "discovery: scoring failed for post %s: %v", p.ID, err)
			continue
		}

		if sc.FinalScore >= minScore {
			if err := o.persist(ctx, p, ps, sc); err != nil {
				o.logWarn(ctx, "discovery: persisting post %s failed: %v", p.ID, err)
			}
			results = append(results, Result{Post: p, PainScore: ps, Opportunity: sc})
		}
	}
	return results, nil
}

func (o *Orchestrator) persist(ctx context.Context, p model.Post, ps model.PainScore, sc model.OpportunityScore) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.SavePost(ctx, p); err != nil {
		return err
	}
	if err := o.store.SaveSignal(ctx, p.ID, ps); err != nil {
		return err
	}
	return o.store.SaveOpportunityScore(ctx, sc)
}

func (o *Orchestrator) logWarn(ctx context.Context, format string, args ...any) {
	if o.log == nil {
		return
	}
	o.log.Warn(ctx, fmt.Sprintf(format, args...), nil)
}
