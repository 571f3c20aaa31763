// Package newsaggregator implements the news-aggregator adapter: a
// Firebase-style unauthenticated feed/item API plus an Algolia-style search
// endpoint, grounded on the original Hacker News ingestion module.
package newsaggregator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/foundersignal/pipeline/infrastructure/errors"
	"github.com/foundersignal/pipeline/infrastructure/httputil"
	"github.com/foundersignal/pipeline/infrastructure/metrics"
	"github.com/foundersignal/pipeline/infrastructure/resilience"
	"github.com/foundersignal/pipeline/internal/adapters"
	"github.com/foundersignal/pipeline/internal/model"
)

const sourceName = "news-aggregator"

// feedEndpoints maps the recognized feed tags (top/new/ask/show/jobs) to
// the Firebase-style listing path.
var feedEndpoints = map[string]string{
	"top":  "/v0/topstories.json",
	"new":  "/v0/newstories.json",
	"ask":  "/v0/askstories.json",
	"show": "/v0/showstories.json",
	"jobs": "/v0/jobstories.json",
}

// Adapter ingests items from the news-aggregator platform in either
// feed-listing or search mode.
type Adapter struct {
	feedClient   *http.Client
	feedBaseURL  string
	feedCB       *resilience.CircuitBreaker
	searchClient *http.Client
	searchBaseURL string
	searchCB     *resilience.CircuitBreaker
	metric       *metrics.Metrics
}

// New builds a news-aggregator Adapter. feedBaseURL is the Firebase-style
// API; searchBaseURL is the Algolia-style search API.
func New(feedBaseURL, searchBaseURL string, metric *metrics.Metrics) (*Adapter, error) {
	feedClient, normalizedFeed, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: feedBaseURL, ServiceID: sourceName}, httputil.DefaultClientDefaults())
	if err != nil {
		return nil, err
	}
	searchClient, normalizedSearch, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: searchBaseURL, ServiceID: sourceName}, httputil.DefaultClientDefaults())
	if err != nil {
		return nil, err
	}
	return &Adapter{
		feedClient: feedClient, feedBaseURL: normalizedFeed, feedCB: resilience.New(resilience.DefaultServiceCBConfig(nil)),
		searchClient: searchClient, searchBaseURL: normalizedSearch, searchCB: resilience.New(resilience.DefaultServiceCBConfig(nil)),
		metric: metric,
	}, nil
}

func (a *Adapter) Name() string     { return sourceName }
func (a *Adapter) Platform() string { return "News Aggregator" }

func (a *Adapter) Capabilities() adapters.Capability {
	return adapters.CapSearch | adapters.CapSortNew | adapters.CapComments | adapters.CapRealtime
}

// Configure is a no-op: both upstream APIs are unauthenticated.
func (a *Adapter) Configure(options map[string]string) error { return nil }

type item struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	By    string `json:"by"`
	URL   string `json:"url"`
	Score int    `json:"score"`
	Descendants int `json:"descendants"`
	Time  int64  `json:"time"`
	Dead  bool   `json:"dead"`
	Deleted bool `json:"deleted"`
}

// Scrape fetches up to limit items. When opts.Search is set, target is a
// query string run against the search endpoint; otherwise target is a feed
// tag (top/new/ask/show/jobs).
func (a *Adapter) Scrape(ctx context.Context, target string, limit int, opts adapters.ScrapeOptions) ([]model.Post, error) {
	var posts []model.Post
	var err error

	start := time.Now()
	if opts.Search {
		posts, err = a.searchMode(ctx, target, limit)
	} else {
		posts, err = a.feedMode(ctx, target, limit)
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	if a.metric != nil {
		a.metric.RecordAdapterRequest("discovery-pipeline", sourceName, target, status, time.Since(start))
	}
	if err != nil {
		return nil, err
	}
	if a.metric != nil {
		a.metric.RecordPostsIngested("discovery-pipeline", sourceName, len(posts))
	}
	return posts, nil
}

// feedMode resolves a feed tag to an id list, then fetches each item
// concurrently (bounded fan-out via errgroup), preserving upstream order.
func (a *Adapter) feedMode(ctx context.Context, feed string, limit int) ([]model.Post, error) {
	path, ok := feedEndpoints[feed]
	if !ok {
		path = feedEndpoints["top"]
		feed = "top"
	}

	raw, err := a.get(ctx, a.feedBaseURL+path)
	if err != nil {
		return nil, errors.UpstreamError(sourceName, err)
	}

	var ids []int
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, errors.ParseFailed(sourceName, err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	items := make([]item, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			itemRaw, err := a.get(gctx, fmt.Sprintf("%s/v0/item/%d.json", a.feedBaseURL, id))
			if err != nil {
				return nil // per-item transient failures are skipped, not fatal to the batch
			}
			var it item
			if err := json.Unmarshal(itemRaw, &it); err != nil {
				return nil
			}
			items[i] = it
			return nil
		})
	}
	_ = g.Wait()

	posts := make([]model.Post, 0, len(items))
	for _, it := range items {
		if p, ok := toPost(it, "hn/"+feed); ok {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

// searchMode issues target as a query against the Algolia-style search endpoint.
func (a *Adapter) searchMode(ctx context.Context, query string, limit int) ([]model.Post, error) {
	q := url.Values{}
	q.Set("query", query)
	if limit > 0 {
		q.Set("hitsPerPage", fmt.Sprintf("%d", limit))
	}

	raw, err := a.searchClientGet(ctx, a.searchBaseURL+"/api/v1/search?"+q.Encode())
	if err != nil {
		return nil, errors.UpstreamError(sourceName, err)
	}

	var parsed struct {
		Hits []struct {
			ObjectID    string `json:"objectID"`
			Title       string `json:"title"`
			StoryText   string `json:"story_text"`
			Author      string `json:"author"`
			URL         string `json:"url"`
			Points      int    `json:"points"`
			NumComments int    `json:"num_comments"`
			CreatedAtI  int64  `json:"created_at_i"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.ParseFailed(sourceName, err)
	}

	posts := make([]model.Post, 0, len(parsed.Hits))
	for _, h := range parsed.Hits {
		if h.ObjectID == "" {
			continue
		}
		p := model.Post{
			ID:            adapters.NormalizeID(sourceName, h.ObjectID),
			Source:        sourceName,
			Title:         h.Title,
			Body:          h.StoryText,
			Author:        h.Author,
			URL:           h.URL,
			Upvotes:       h.Points,
			CommentsCount: h.NumComments,
			CreatedAt:     adapters.CoerceCreatedAt(time.Unix(h.CreatedAtI, 0)),
			Channel:       "hn/search",
		}
		p.Normalize()
		posts = append(posts, p)
	}
	return posts, nil
}

func toPost(it item, channel string) (model.Post, bool) {
	if it.ID == 0 || it.Dead || it.Deleted || (it.Title == "" && it.Text == "") {
		return model.Post{}, false
	}
	p := model.Post{
		ID:            adapters.NormalizeID(sourceName, fmt.Sprintf("%d", it.ID)),
		Source:        sourceName,
		Title:         it.Title,
		Body:          it.Text,
		Author:        it.By,
		URL:           it.URL,
		Upvotes:       it.Score,
		CommentsCount: it.Descendants,
		CreatedAt:     adapters.CoerceCreatedAt(time.Unix(it.Time, 0)),
		Channel:       channel,
	}
	p.Normalize()
	return p, true
}

func (a *Adapter) get(ctx context.Context, endpoint string) ([]byte, error) {
	return doGetWithRetry(ctx, a.feedClient, a.feedCB, endpoint)
}

func (a *Adapter) searchClientGet(ctx context.Context, endpoint string) ([]byte, error) {
	return doGetWithRetry(ctx, a.searchClient, a.searchCB, endpoint)
}

func doGetWithRetry(ctx context.Context, client *http.Client, cb *resilience.CircuitBreaker, endpoint string) ([]byte, error) {
	var body []byte
	retryCfg := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.1}

	err := cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, retryCfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 500 {
				return fmt.Errorf("request failed: status %d", resp.StatusCode)
			}
			raw, err := httputil.ReadAllStrict(resp.Body, 2<<20)
			if err != nil {
				return err
			}
			body = raw
			return nil
		})
	})
	return body, err
}

// HealthCheck reports whether the feed API is reachable.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	raw, err := a.get(ctx, a.feedBaseURL+feedEndpoints["top"])
	return err == nil && len(raw) > 0
}
