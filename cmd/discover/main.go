// Command discover drives the opportunity discovery pipeline from the
// command line: a single run, config inspection, and re-scoring one
// already-stored post, grounded on the original's CLI entrypoint but
// re-expressed with cobra per the domain stack (the interactive table UI
// itself is out of scope).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/foundersignal/pipeline/infrastructure/logging"
	"github.com/foundersignal/pipeline/infrastructure/metrics"
	"github.com/foundersignal/pipeline/internal/adapters"
	"github.com/foundersignal/pipeline/internal/adapters/discussionforum"
	"github.com/foundersignal/pipeline/internal/adapters/newsaggregator"
	"github.com/foundersignal/pipeline/internal/adapters/productlaunch"
	"github.com/foundersignal/pipeline/internal/adapters/reviewplatforma"
	"github.com/foundersignal/pipeline/internal/adapters/reviewplatformb"
	"github.com/foundersignal/pipeline/internal/analyzer"
	"github.com/foundersignal/pipeline/internal/config"
	"github.com/foundersignal/pipeline/internal/discovery"
	"github.com/foundersignal/pipeline/internal/llm"
	"github.com/foundersignal/pipeline/internal/model"
	"github.com/foundersignal/pipeline/internal/registry"
	"github.com/foundersignal/pipeline/internal/scoring"
	"github.com/foundersignal/pipeline/internal/store"
)

const serviceName = "discovery-pipeline"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "discover",
		Short: "Run the opportunity discovery pipeline",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (default $HOME/.founder_copilot/config.json)")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newConfigCmd(&configPath))
	root.AddCommand(newScoreCmd(&configPath))
	return root
}

func newConfigCmd(configPath *string) *cobra.Command {
	configCmd := &cobra.Command{Use: "config", Short: "Inspect the pipeline configuration"}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := config.NewManager(*configPath)
			cfg := mgr.Load()
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", cfg)
			return nil
		},
	})
	return configCmd
}

func newRunCmd(configPath *string) *cobra.Command {
	var minScore float64
	var limit int
	var cronSchedule string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one discovery pass across the configured scrapers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cronSchedule == "" {
				return runOnce(ctx, *configPath, limit, minScore)
			}
			return runPeriodic(ctx, *configPath, limit, minScore, cronSchedule)
		},
	}
	cmd.Flags().Float64Var(&minScore, "min-score", 0.5, "minimum opportunity score to persist")
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum posts to fetch per target")
	cmd.Flags().StringVar(&cronSchedule, "cron", "", "cron schedule for periodic runs (empty runs once and exits)")
	return cmd
}

func newScoreCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "score <post-id>",
		Short: "Re-score one already-stored post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rescorePost(cmd.Context(), *configPath, args[0])
		},
	}
}

// pipeline holds the config, logger, metrics, store, registry, and
// orchestrator that buildPipeline wires for one process lifetime.
type pipeline struct {
	cfg    config.Config
	log    *logging.Logger
	metric *metrics.Metrics
	st     *store.Store
	reg    *registry.Registry
	orch   *discovery.Orchestrator
}

func buildPipeline(configPath string) (*pipeline, error) {
	mgr := config.NewManager(configPath)
	cfg := mgr.Load()

	log := logging.New(serviceName, "info", "json")
	metric := metrics.New(serviceName)

	st, err := store.Open(cfg.DBPath, log, metric)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := registry.New()
	reg.SetStore(st)

	if err := registerScrapers(reg, cfg, metric); err != nil {
		return nil, err
	}

	delay := time.Duration(cfg.LLMRequestDelay * float64(time.Second))
	client, err := buildLLMClient(cfg, mgr, delay, metric)
	if err != nil {
		return nil, err
	}
	reg.RegisterLLM(cfg.LLMProvider, client)

	a := analyzer.New(client)
	orch := discovery.New(st, a, model.DefaultWeights(), log, metric)

	return &pipeline{cfg: cfg, log: log, metric: metric, st: st, reg: reg, orch: orch}, nil
}

func (p *pipeline) close() {
	p.st.Close()
}

func registerScrapers(reg *registry.Registry, cfg config.Config, metric *metrics.Metrics) error {
	df, err := discussionforum.New("https://oauth.reddit.com", metric)
	if err != nil {
		return err
	}
	if err := df.Configure(map[string]string{"client_id": cfg.RedditClientID, "client_secret": cfg.RedditSecret}); err != nil {
		return err
	}
	reg.RegisterScraper(df)

	na, err := newsaggregator.New("https://hacker-news.firebaseio.com/v0", "https://hn.algolia.com", metric)
	if err != nil {
		return err
	}
	reg.RegisterScraper(na)

	rpa, err := reviewplatforma.New("https://api.apify.com", cfg.ApifyAPIToken, metric)
	if err != nil {
		return err
	}
	reg.RegisterScraper(rpa)

	rpb, err := reviewplatformb.New("https://api.apify.com", cfg.ApifyAPIToken, metric)
	if err != nil {
		return err
	}
	reg.RegisterScraper(rpb)

	pl, err := productlaunch.New("https://api.producthunt.com/v2/api/graphql", metric)
	if err != nil {
		return err
	}
	if cfg.ProductHuntToken != "" {
		if err := pl.Configure(map[string]string{"api_token": cfg.ProductHuntToken}); err != nil {
			return err
		}
	}
	reg.RegisterScraper(pl)

	return nil
}

// buildLLMClient constructs the configured provider's backend and wraps it
// in an llm.Client. The concrete backend types are constructed per-branch
// (rather than through a shared helper) since they satisfy llm's backend
// contract only from within package llm.
func buildLLMClient(cfg config.Config, mgr *config.Manager, delay time.Duration, metric *metrics.Metrics) (*llm.Client, error) {
	switch cfg.LLMProvider {
	case "mock", "":
		return llm.New(llm.NewMockBackend(), delay, metric), nil
	case "ollama":
		b, err := llm.NewLocalBackend(cfg.OllamaHost, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		return llm.New(b, delay, metric), nil
	default:
		key := mgr.Credential(cfg.GroqAPIKey, "GROQ_API_KEY")
		b, err := llm.NewHostedBackend(cfg.LLMProvider, "https://api.groq.com/openai/v1", "llama-3.3-70b-versatile", key)
		if err != nil {
			return nil, err
		}
		return llm.New(b, delay, metric), nil
	}
}

func runOnce(ctx context.Context, configPath string, limit int, minScore float64) error {
	p, err := buildPipeline(configPath)
	if err != nil {
		return err
	}
	defer p.close()

	runID := uuid.NewString()
	targets := targetsFromConfig(p.cfg)
	scrapers := make(map[string]adapters.Adapter)
	for _, a := range p.reg.GetAllScrapers() {
		scrapers[a.Name()] = a
	}
	results, err := p.orch.Run(ctx, scrapers, targets, limit, minScore)
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %d qualifying results\n", runID, len(results))
	for _, r := range results {
		fmt.Printf("  [%.3f] %s: %s\n", r.Opportunity.FinalScore, r.Post.Source, r.Post.Title)
	}
	return nil
}

// runPeriodic calls runOnce on every tick of the cron schedule until SIGINT,
// SIGTERM or ctx ends it. Each scheduled run is fresh: it builds a new
// pipeline and re-scores posts seen in earlier runs, whose stored records the
// store's upserts overwrite; no deduplication across runs is done.
func runPeriodic(ctx context.Context, configPath string, limit int, minScore float64, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := runOnce(ctx, configPath, limit, minScore); err != nil {
			fmt.Fprintf(os.Stderr, "scheduled run failed: %v\n", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	c.Start()
	defer c.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	return nil
}

func rescorePost(ctx context.Context, configPath, postID string) error {
	p, err := buildPipeline(configPath)
	if err != nil {
		return err
	}
	defer p.close()

	post, found, err := p.st.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("post %q not found", postID)
	}

	ps, found, err := p.st.GetSignal(ctx, postID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no signal recorded for post %q", postID)
	}

	sc, err := scoring.Compute(ctx, p.st, post, ps, model.DefaultWeights(), time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.st.SaveOpportunityScore(ctx, sc); err != nil {
		return err
	}

	fmt.Printf("post %s rescored: final_score=%.3f\n", postID, sc.FinalScore)
	return nil
}

// newsAggregatorDefaultTarget is the feed tag scraped when the config does
// not name a specific news-aggregator target.
const newsAggregatorDefaultTarget = "top"

func targetsFromConfig(cfg config.Config) map[string][]string {
	targets := make(map[string][]string)
	for _, name := range cfg.ActiveScrapers {
		switch name {
		case "discussion-forum":
			targets[name] = cfg.Subreddits
		case "news-aggregator":
			targets[name] = []string{newsAggregatorDefaultTarget}
		default:
			// Review-platform and product-launch targets are product slugs
			// with no sensible built-in default; operators pass them via a
			// future --target flag. An empty target list means the
			// orchestrator simply has no tasks for this scraper this run.
		}
	}
	return targets
}
