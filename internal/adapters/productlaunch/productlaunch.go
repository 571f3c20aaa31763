// Package productlaunch implements the product-launch adapter: an
// authenticated GraphQL endpoint with cursor pagination, grounded on the
// original Product Hunt ingestion module. No GraphQL client library
// appeared anywhere in the reference pack, so requests are issued as plain
// JSON-over-HTTP POSTs per §11's hand-rolled exception.
package productlaunch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/foundersignal/pipeline/infrastructure/errors"
	"github.com/foundersignal/pipeline/infrastructure/httputil"
	"github.com/foundersignal/pipeline/infrastructure/metrics"
	"github.com/foundersignal/pipeline/infrastructure/resilience"
	"github.com/foundersignal/pipeline/internal/adapters"
	"github.com/foundersignal/pipeline/internal/model"
)

const sourceName = "product-launch"

// Adapter ingests launches from the product-launch platform's GraphQL API.
type Adapter struct {
	client  *http.Client
	baseURL string
	token   string
	metric  *metrics.Metrics
	cb      *resilience.CircuitBreaker
}

// New builds a product-launch Adapter against a GraphQL baseURL.
func New(baseURL string, metric *metrics.Metrics) (*Adapter, error) {
	client, normalized, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: baseURL, ServiceID: sourceName}, httputil.DefaultClientDefaults())
	if err != nil {
		return nil, err
	}
	cb := resilience.New(resilience.DefaultServiceCBConfig(nil))
	return &Adapter{client: client, baseURL: normalized, metric: metric, cb: cb}, nil
}

func (a *Adapter) Name() string     { return sourceName }
func (a *Adapter) Platform() string { return "Product Launch" }

func (a *Adapter) Capabilities() adapters.Capability {
	return adapters.CapSearch | adapters.CapSortTop | adapters.CapHistorical
}

func (a *Adapter) Configure(options map[string]string) error {
	a.token = options["api_token"]
	if a.token == "" {
		return errors.MissingCredential("product_launch_api_token")
	}
	return nil
}

const postsQuery = `
query Posts($after: String, $order: PostsOrder, $postedAfter: DateTime, $postedBefore: DateTime) {
  posts(after: $after, order: $order, postedAfter: $postedAfter, postedBefore: $postedBefore) {
    edges {
      cursor
      node {
        id
        name
        tagline
        description
        url
        votesCount
        commentsCount
        createdAt
      }
    }
    pageInfo { hasNextPage }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type postsResponse struct {
	Data struct {
		Posts struct {
			Edges []struct {
				Cursor string `json:"cursor"`
				Node   struct {
					ID            string `json:"id"`
					Name          string `json:"name"`
					Tagline       string `json:"tagline"`
					Description   string `json:"description"`
					URL           string `json:"url"`
					VotesCount    int    `json:"votesCount"`
					CommentsCount int    `json:"commentsCount"`
					CreatedAt     string `json:"createdAt"`
				} `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
		} `json:"posts"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Scrape pages through the launch platform's posts query, ordering by
// target ("RANKING" or "VOTES"), up to limit items.
func (a *Adapter) Scrape(ctx context.Context, target string, limit int, opts adapters.ScrapeOptions) ([]model.Post, error) {
	order := target
	if order == "" {
		order = "RANKING"
	}

	var posts []model.Post
	var cursor string
	start := time.Now()

	for {
		variables := map[string]any{"order": order}
		if cursor != "" {
			variables["after"] = cursor
		}
		if !opts.PostedAfter.IsZero() {
			variables["postedAfter"] = opts.PostedAfter.UTC().Format(time.RFC3339)
		}
		if !opts.PostedBefore.IsZero() {
			variables["postedBefore"] = opts.PostedBefore.UTC().Format(time.RFC3339)
		}

		page, hasNext, nextCursor, err := a.fetchPage(ctx, variables)
		if err != nil {
			if a.metric != nil {
				a.metric.RecordAdapterRequest("discovery-pipeline", sourceName, order, "error", time.Since(start))
			}
			return nil, errors.UpstreamError(sourceName, err)
		}
		posts = append(posts, page...)
		cursor = nextCursor

		if !hasNext || (limit > 0 && len(posts) >= limit) {
			break
		}
	}

	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	if a.metric != nil {
		a.metric.RecordAdapterRequest("discovery-pipeline", sourceName, order, "success", time.Since(start))
		a.metric.RecordPostsIngested("discovery-pipeline", sourceName, len(posts))
	}
	return posts, nil
}

func (a *Adapter) fetchPage(ctx context.Context, variables map[string]any) ([]model.Post, bool, string, error) {
	body, err := json.Marshal(graphqlRequest{Query: postsQuery, Variables: variables})
	if err != nil {
		return nil, false, "", err
	}

	var raw []byte
	retryCfg := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.1}
	err = a.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, retryCfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+a.token)

			resp, err := a.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("product launch request failed: status %d", resp.StatusCode)
			}
			respBody, err := httputil.ReadAllStrict(resp.Body, 2<<20)
			if err != nil {
				return err
			}
			raw = respBody
			return nil
		})
	})
	if err != nil {
		return nil, false, "", err
	}

	var parsed postsResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false, "", errors.ParseFailed(sourceName, err)
	}
	if len(parsed.Errors) > 0 {
		return nil, false, "", fmt.Errorf("product launch graphql error: %s", parsed.Errors[0].Message)
	}

	edges := parsed.Data.Posts.Edges
	posts := make([]model.Post, 0, len(edges))
	var lastCursor string
	for _, e := range edges {
		n := e.Node
		if n.ID == "" {
			continue
		}
		createdAt, _ := time.Parse(time.RFC3339, n.CreatedAt)
		p := model.Post{
			ID:            adapters.NormalizeID(sourceName, n.ID),
			Source:        sourceName,
			Title:         n.Name,
			Body:          n.Tagline + "\n" + n.Description,
			URL:           n.URL,
			Upvotes:       n.VotesCount,
			CommentsCount: n.CommentsCount,
			CreatedAt:     adapters.CoerceCreatedAt(createdAt),
			Channel:       sourceName + "/" + n.Name,
		}
		p.Normalize()
		posts = append(posts, p)
		lastCursor = e.Cursor
	}

	return posts, parsed.Data.Posts.PageInfo.HasNextPage, lastCursor, nil
}

// HealthCheck fetches one page of posts ordered by RANKING and reports
// whether fetchPage returned without error; transport failures and 5xx
// replies count as unhealthy.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	_, _, _, err := a.fetchPage(ctx, map[string]any{"order": "RANKING"})
	return err == nil
}
