// Package scoring computes the seven-dimension Opportunity Score for a post,
// combining the pain analyzer's output with engagement, recency, keyword and
// cross-corpus history signals.
package scoring

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/foundersignal/pipeline/internal/model"
)

// historySource is the subset of the Store the engine needs to compute
// trend_momentum and cross_source_bonus. Kept narrow so tests can fake it.
type historySource interface {
	CountMatchingTerms(ctx context.Context, source string, terms []string, since, until time.Time, excludePostID string) (int, error)
	DistinctOtherSourcesMatching(ctx context.Context, excludeSource string, terms []string, since time.Time, excludePostID string) (int, error)
}

// sourceEngagement is one row of the engagement_norm caps table from §4.6.
type sourceEngagement struct {
	upvoteCap      float64
	upvoteWeight   float64
	commentCap     float64
	commentWeight  float64
	starWeight     float64 // 0 when the source has no star-rating bonus
}

var engagementTable = map[string]sourceEngagement{
	"discussion-forum":  {upvoteCap: 200, upvoteWeight: 0.5, commentCap: 50, commentWeight: 0.5},
	"news-aggregator":   {upvoteCap: 300, upvoteWeight: 0.6, commentCap: 150, commentWeight: 0.4},
	"review-platform-a": {upvoteCap: 20, upvoteWeight: 0.3, commentCap: 1, commentWeight: 0, starWeight: 0.7},
	"review-platform-b": {upvoteCap: 15, upvoteWeight: 0.2, commentCap: 1, commentWeight: 0, starWeight: 0.8},
}

// defaultEngagement is used for any source not in the table; it treats the
// post like a mid-sized forum post so unknown sources still get a bounded
// signal rather than zero.
var defaultEngagement = sourceEngagement{upvoteCap: 200, upvoteWeight: 0.5, commentCap: 50, commentWeight: 0.5}

// EngagementNorm computes the engagement_norm dimension for a post, per §4.6
// and scenarios S1/S2.
func EngagementNorm(p model.Post) float64 {
	row, ok := engagementTable[p.Source]
	if !ok {
		row = defaultEngagement
	}

	score := min1(float64(p.Upvotes)/row.upvoteCap)*row.upvoteWeight +
		min1(float64(p.CommentsCount)/row.commentCap)*row.commentWeight

	if row.starWeight > 0 {
		if rating, ok := starRating(p.Metadata); ok {
			bonus := math.Max(0, (5-rating)/4) * row.starWeight
			score += bonus
		}
	}
	return model.Clamp01(score)
}

func starRating(meta map[string]any) (float64, bool) {
	raw, ok := meta["star_rating"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// Recency buckets age from now per §4.6 and scenario S3.
func Recency(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.8
	case age < 30*24*time.Hour:
		return 0.5
	case age < 90*24*time.Hour:
		return 0.2
	default:
		return 0.0
	}
}

var punctuation = regexp.MustCompile(`[^a-z0-9\s]+`)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "her": true, "was": true, "one": true,
	"our": true, "out": true, "day": true, "get": true, "has": true, "him": true,
	"his": true, "how": true, "man": true, "new": true, "now": true, "old": true,
	"see": true, "two": true, "way": true, "who": true, "boy": true, "did": true,
	"its": true, "let": true, "put": true, "say": true, "she": true, "too": true,
	"use": true, "with": true, "this": true, "that": true, "have": true, "from": true,
	"they": true, "been": true, "what": true, "were": true, "when": true, "your": true,
	"about": true, "into": true, "than": true, "them": true, "then": true, "these": true,
	"some": true, "just": true, "like": true, "only": true, "over": true, "such": true,
	"very": true, "will": true, "would": true, "there": true, "their": true,
}

// ExtractKeyTerms extracts up to five key terms from text per §4.6:
// lowercase, strip punctuation, drop tokens under length 3 and stop words.
func ExtractKeyTerms(text string) []string {
	lower := strings.ToLower(text)
	stripped := punctuation.ReplaceAllString(lower, " ")

	counts := map[string]int{}
	order := []string{}
	for _, tok := range strings.Fields(stripped) {
		if len(tok) < 3 || stopWords[tok] {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > 5 {
		order = order[:5]
	}
	return order
}

// TrendMomentum compares recent-vs-older key-term matches against the same
// source, per §4.6 and scenario S5.
func TrendMomentum(ctx context.Context, store historySource, source string, terms []string, postID string, now time.Time) (float64, error) {
	recent, err := store.CountMatchingTerms(ctx, source, terms, now.Add(-30*24*time.Hour), now, postID)
	if err != nil {
		return 0, err
	}
	older, err := store.CountMatchingTerms(ctx, source, terms, now.Add(-60*24*time.Hour), now.Add(-30*24*time.Hour), postID)
	if err != nil {
		return 0, err
	}
	if older == 0 {
		return 0.5, nil
	}
	ratio := float64(recent) / float64(older)
	return 1 / (1 + math.Exp(-2*(ratio-1))), nil
}

// CrossSourceBonus rewards the same key terms appearing on other sources
// within the last 90 days, per §4.6 and scenario S6. Deliberately uncapped
// before the final clamp — an explicit Open Question decision.
func CrossSourceBonus(ctx context.Context, store historySource, source string, terms []string, postID string, now time.Time) (float64, error) {
	count, err := store.DistinctOtherSourcesMatching(ctx, source, terms, now.Add(-90*24*time.Hour), postID)
	if err != nil {
		return 0, err
	}
	return 0.05 * float64(count), nil
}

type keywordBin struct {
	phrases []string
	weight  float64
}

var marketSignalBins = []keywordBin{
	{
		phrases: []string{"paying for", "subscription", "monthly fee", "enterprise", "api", "b2b", "saas", "willing to pay", "shut up and take my money"},
		weight:  0.3,
	},
	{
		phrases: []string{"alternative to", "looking for", "better tool", "recommend", "comparison", "vs", "switch from", "migrate"},
		weight:  0.15,
	},
	{
		phrases: []string{"how do i", "tutorial", "help with", "frustrated with", "wish there was", "why doesn't"},
		weight:  0.05,
	},
}

// MarketSignal scans text for buying-intent keyword phrases, per §4.6 and
// scenario S4.
func MarketSignal(text string) float64 {
	lower := strings.ToLower(text)
	total := 0.0
	for _, bin := range marketSignalBins {
		for _, phrase := range bin.phrases {
			if strings.Contains(lower, phrase) {
				total += bin.weight
			}
		}
	}
	return model.Clamp01(total)
}

// Compute derives the full OpportunityScore for a post, per §4.6.
func Compute(ctx context.Context, store historySource, post model.Post, ps model.PainScore, weights model.ScoreWeights, now time.Time) (model.OpportunityScore, error) {
	text := post.TextForExtraction()
	terms := ExtractKeyTerms(text)

	trend, err := TrendMomentum(ctx, store, post.Source, terms, post.ID, now)
	if err != nil {
		return model.OpportunityScore{}, err
	}
	bonus, err := CrossSourceBonus(ctx, store, post.Source, terms, post.ID, now)
	if err != nil {
		return model.OpportunityScore{}, err
	}

	sc := model.OpportunityScore{
		PostID:             post.ID,
		Source:             post.Source,
		PainIntensity:      model.Clamp01(ps.Score),
		EngagementNorm:     EngagementNorm(post),
		ValidationEvidence: model.Clamp01(ps.ValidationScore),
		SentimentIntensity: model.Clamp01(ps.SentimentIntensity),
		Recency:            Recency(post.CreatedAt, now),
		TrendMomentum:      trend,
		MarketSignal:       MarketSignal(text),
		CrossSourceBonus:   bonus,
		Weights:            weights,
		ComputedAt:         now,
	}

	weighted := weights.PainIntensity*sc.PainIntensity +
		weights.EngagementNorm*sc.EngagementNorm +
		weights.ValidationEvidence*sc.ValidationEvidence +
		weights.SentimentIntensity*sc.SentimentIntensity +
		weights.Recency*sc.Recency +
		weights.TrendMomentum*sc.TrendMomentum +
		weights.MarketSignal*sc.MarketSignal

	sc.FinalScore = model.Clamp01(weighted + bonus)
	return sc, nil
}
