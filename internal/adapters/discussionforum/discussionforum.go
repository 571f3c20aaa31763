// Package discussionforum implements the discussion-forum adapter: an
// authenticated listing client supporting new/hot/top(time_window) modes,
// grounded on the original Reddit-style ingestion module.
package discussionforum

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"

	"github.com/foundersignal/pipeline/infrastructure/errors"
	"github.com/foundersignal/pipeline/infrastructure/httputil"
	"github.com/foundersignal/pipeline/infrastructure/metrics"
	"github.com/foundersignal/pipeline/infrastructure/resilience"
	"github.com/foundersignal/pipeline/internal/adapters"
	"github.com/foundersignal/pipeline/internal/model"
)

const sourceName = "discussion-forum"

// Adapter ingests listings from the discussion-forum platform.
type Adapter struct {
	client       *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	userAgent    string
	metric       *metrics.Metrics
	cb           *resilience.CircuitBreaker
}

// New builds a discussion-forum Adapter against baseURL (the platform's
// OAuth-protected listing API).
func New(baseURL string, metric *metrics.Metrics) (*Adapter, error) {
	client, normalized, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: baseURL, ServiceID: sourceName},
		httputil.DefaultClientDefaults(),
	)
	if err != nil {
		return nil, err
	}
	cb := resilience.New(resilience.DefaultServiceCBConfig(nil))
	return &Adapter{client: client, baseURL: normalized, metric: metric, cb: cb}, nil
}

func (a *Adapter) Name() string     { return sourceName }
func (a *Adapter) Platform() string { return "Discussion Forum" }

func (a *Adapter) Capabilities() adapters.Capability {
	return adapters.CapSortNew | adapters.CapSortHot | adapters.CapSortTop | adapters.CapComments | adapters.CapHistorical
}

// Configure sets OAuth-style credentials and a user agent.
func (a *Adapter) Configure(options map[string]string) error {
	a.clientID = options["client_id"]
	a.clientSecret = options["client_secret"]
	a.userAgent = options["user_agent"]
	if a.userAgent == "" {
		a.userAgent = "opportunity-discovery/1.0"
	}
	if a.clientID == "" || a.clientSecret == "" {
		return errors.MissingCredential("discussion_forum_client_credentials")
	}
	return nil
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Author      string  `json:"author"`
				Permalink   string  `json:"permalink"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				CreatedUTC  float64 `json:"created_utc"`
				Subreddit   string  `json:"subreddit"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Scrape fetches up to limit posts from target (a forum name) using
// opts.Sort ("new", "hot", "top") and, for "top", opts.TimeWindow.
func (a *Adapter) Scrape(ctx context.Context, target string, limit int, opts adapters.ScrapeOptions) ([]model.Post, error) {
	sort := opts.Sort
	if sort == "" {
		sort = "hot"
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if sort == "top" {
		window := opts.TimeWindow
		if window == "" {
			window = "week"
		}
		q.Set("t", window)
	}

	endpoint := fmt.Sprintf("%s/r/%s/%s.json?%s", a.baseURL, target, sort, q.Encode())

	start := time.Now()
	raw, err := a.getWithRetry(ctx, endpoint)
	status := "success"
	if err != nil {
		status = "error"
	}
	if a.metric != nil {
		a.metric.RecordAdapterRequest("discovery-pipeline", sourceName, sort, status, time.Since(start))
	}
	if err != nil {
		return nil, errors.UpstreamError(sourceName, err)
	}

	var parsed listingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.ParseFailed(sourceName, err)
	}

	posts := make([]model.Post, 0, len(parsed.Data.Children))
	for _, child := range parsed.Data.Children {
		d := child.Data
		// Empty selftext includes link posts with no body; dropped per the
		// empty-body normalization rule rather than kept with a nil body.
		if d.ID == "" || d.Selftext == "" || d.Selftext == "[deleted]" || d.Selftext == "[removed]" {
			continue
		}
		p := model.Post{
			ID:            adapters.NormalizeID(sourceName, d.ID),
			Source:        sourceName,
			Title:         d.Title,
			Body:          d.Selftext,
			Author:        d.Author,
			URL:           "https://reddit.com" + d.Permalink,
			Upvotes:       d.Score,
			CommentsCount: d.NumComments,
			CreatedAt:     adapters.CoerceCreatedAt(time.Unix(int64(d.CreatedUTC), 0)),
			Channel:       "r/" + target,
			Subreddit:     target,
		}
		p.Normalize()
		posts = append(posts, p)
	}

	if a.metric != nil {
		a.metric.RecordPostsIngested("discovery-pipeline", sourceName, len(posts))
	}
	return posts, nil
}

func (a *Adapter) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var body []byte
	retryCfg := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.1}

	err := a.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, retryCfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			req.Header.Set("User-Agent", a.userAgent)

			resp, err := a.client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests {
				return errors.RateLimitExceeded(0, "unknown")
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("discussion forum listing failed: status %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				raw, _ := httputil.ReadAllStrict(resp.Body, 1<<20)
				return backoff.Permanent(fmt.Errorf("discussion forum listing failed: status %d: %s", resp.StatusCode, string(raw)))
			}

			raw, err := httputil.ReadAllStrict(resp.Body, 4<<20)
			if err != nil {
				return err
			}
			body = raw
			return nil
		})
	})
	return body, err
}

// HealthCheck reports whether the platform's listing endpoint is reachable.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", a.userAgent)
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
