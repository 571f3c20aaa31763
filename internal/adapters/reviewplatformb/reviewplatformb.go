// Package reviewplatformb implements the review-platform-B adapter, a
// Capterra-style review marketplace ingested via an Apify-style actor run,
// grounded on the original Capterra scraping module.
package reviewplatformb

import (
	"context"
	"fmt"
	"time"

	"github.com/foundersignal/pipeline/infrastructure/errors"
	"github.com/foundersignal/pipeline/infrastructure/metrics"
	"github.com/foundersignal/pipeline/internal/adapters"
	"github.com/foundersignal/pipeline/internal/model"
)

const sourceName = "review-platform-b"
const actorID = "review-platform-b-actor"

// Adapter ingests reviews for a product slug from review-platform-B.
type Adapter struct {
	runner *adapters.ApifyRunner
	metric *metrics.Metrics
}

// New builds a review-platform-B Adapter against an Apify-style base URL.
func New(baseURL, token string, metric *metrics.Metrics) (*Adapter, error) {
	runner, err := adapters.NewApifyRunner(baseURL, token, sourceName)
	if err != nil {
		return nil, err
	}
	return &Adapter{runner: runner, metric: metric}, nil
}

func (a *Adapter) Name() string     { return sourceName }
func (a *Adapter) Platform() string { return "Review Platform B" }

func (a *Adapter) Capabilities() adapters.Capability {
	return adapters.CapReviews | adapters.CapHistorical
}

func (a *Adapter) Configure(options map[string]string) error {
	if a.runner.Token == "" {
		a.runner.Token = options["apify_api_token"]
	}
	if a.runner.Token == "" {
		return errors.MissingCredential("review_platform_b_apify_token")
	}
	return nil
}

// Scrape runs the actor against target (a product slug) and maps the
// resulting dataset items into Posts.
func (a *Adapter) Scrape(ctx context.Context, target string, limit int, opts adapters.ScrapeOptions) ([]model.Post, error) {
	start := time.Now()
	items, err := a.runner.Run(ctx, actorID, map[string]any{"product": target, "resultsLimit": limit}, 30)
	status := "success"
	if err != nil {
		status = "error"
	}
	if a.metric != nil {
		a.metric.RecordAdapterRequest("discovery-pipeline", sourceName, "reviews", status, time.Since(start))
	}
	if err != nil {
		return nil, errors.UpstreamError(sourceName, err)
	}

	posts := make([]model.Post, 0, len(items))
	for i, raw := range items {
		p, ok := toPost(raw, target, i)
		if !ok {
			continue
		}
		posts = append(posts, p)
	}
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	if a.metric != nil {
		a.metric.RecordPostsIngested("discovery-pipeline", sourceName, len(posts))
	}
	return posts, nil
}

func toPost(raw map[string]any, product string, index int) (model.Post, bool) {
	body := combineReviewText(raw)
	title, _ := raw["title"].(string)
	if body == "" && title == "" {
		return model.Post{}, false
	}

	id := stringField(raw, "id")
	if id == "" {
		id = stringField(raw, "reviewId")
	}
	if id == "" {
		id = fmt.Sprintf("%s_%d", product, index)
	}

	rating := firstFloatField(raw, "overallRating", "rating")
	helpful := firstIntField(raw, "helpfulCount", "votes")
	date := firstStringField(raw, "date", "reviewDate")

	p := model.Post{
		ID:            adapters.NormalizeID(sourceName, id),
		Source:        sourceName,
		Title:         titleOrDefault(title, product),
		Body:          body,
		Author:        stringFieldOrDefault(raw, "reviewerName", "anonymous"),
		URL:           firstStringField(raw, "reviewUrl"),
		Upvotes:       helpful,
		CommentsCount: 0,
		CreatedAt:     adapters.CoerceCreatedAt(parseDate(date)),
		Channel:       sourceName + "/" + product,
		Metadata: map[string]any{
			"star_rating":      rating,
			"ease_of_use":      floatField(raw, "easeOfUse"),
			"customer_service": floatField(raw, "customerService"),
			"functionality":    floatField(raw, "functionality"),
			"value_for_money":  floatField(raw, "valueForMoney"),
			"pros":             stringField(raw, "pros"),
			"cons":             stringField(raw, "cons"),
			"reviewer_title":   stringField(raw, "reviewerTitle"),
			"company_size":     stringField(raw, "companySize"),
			"industry":         stringField(raw, "industry"),
		},
	}
	p.Normalize()
	return p, true
}

// combineReviewText joins pros/cons/body/comments the way the original
// scraper's _combine_review_text does.
func combineReviewText(raw map[string]any) string {
	var parts []string
	if pros := stringField(raw, "pros"); pros != "" {
		parts = append(parts, "PROS: "+pros)
	}
	if cons := stringField(raw, "cons"); cons != "" {
		parts = append(parts, "CONS: "+cons)
	}
	if body := stringField(raw, "reviewBody"); body != "" {
		parts = append(parts, body)
	}
	if comments := stringField(raw, "comments"); comments != "" {
		parts = append(parts, "COMMENTS: "+comments)
	}
	out := ""
	for i, part := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += part
	}
	return out
}

func titleOrDefault(title, product string) string {
	if title != "" {
		return title
	}
	return "Capterra Review of " + product
}

func firstStringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := stringField(m, k); v != "" {
			return v
		}
	}
	return ""
}

func stringFieldOrDefault(m map[string]any, key, def string) string {
	if v := stringField(m, key); v != "" {
		return v
	}
	return def
}

func firstFloatField(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return floatField(m, k)
		}
	}
	return 0
}

func firstIntField(m map[string]any, keys ...string) int {
	return int(firstFloatField(m, keys...))
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// HealthCheck reports whether the actor runner is configured; the actor-run
// contract has no lightweight ping endpoint.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	return a.runner.Token != ""
}
