// Package model defines the canonical record types shared by every
// component of the discovery pipeline: posts ingested from source adapters,
// pain-intensity classifications, opportunity scores, and the two
// boundary-only types (Lead, ValidationReport) whose construction lives
// outside this module.
package model

import "time"

// SentimentLabel is one of the fixed sentiment categories the pain analyzer
// assigns or backfills.
type SentimentLabel string

const (
	SentimentFrustrated SentimentLabel = "frustrated"
	SentimentDesperate   SentimentLabel = "desperate"
	SentimentCurious     SentimentLabel = "curious"
	SentimentNeutral     SentimentLabel = "neutral"
	SentimentPositive    SentimentLabel = "positive"
)

// sentimentIntensityTable is the fixed table used to backfill
// sentiment_intensity from sentiment_label when only the label is present.
var sentimentIntensityTable = map[SentimentLabel]float64{
	SentimentFrustrated: 0.7,
	SentimentDesperate:  1.0,
	SentimentCurious:    0.4,
	SentimentNeutral:    0.2,
	SentimentPositive:   0.1,
}

// IntensityForLabel returns the fixed backfill intensity for a sentiment
// label, and false if the label is not recognized.
func IntensityForLabel(label SentimentLabel) (float64, bool) {
	v, ok := sentimentIntensityTable[label]
	return v, ok
}

// LabelForIntensity chooses a sentiment label by threshold when intensity is
// known but the label is missing.
func LabelForIntensity(intensity float64) SentimentLabel {
	switch {
	case intensity >= 0.8:
		return SentimentDesperate
	case intensity >= 0.6:
		return SentimentFrustrated
	case intensity >= 0.4:
		return SentimentCurious
	default:
		return SentimentNeutral
	}
}

// Post is a normalized item from a source adapter.
type Post struct {
	ID                 string
	Source             string
	Title              string
	Body               string
	Author             string
	URL                string
	Upvotes            int
	CommentsCount      int
	CreatedAt          time.Time
	Channel            string
	Subreddit          string
	SentimentLabel     SentimentLabel
	SentimentIntensity float64
	Metadata           map[string]any
}

// Clamp01 clamps a float64 into [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Normalize enforces the Post invariants from the data model: sentiment
// intensity in [0,1], non-negative counters, and a UTC created_at.
func (p *Post) Normalize() {
	p.SentimentIntensity = Clamp01(p.SentimentIntensity)
	if p.Upvotes < 0 {
		p.Upvotes = 0
	}
	if p.CommentsCount < 0 {
		p.CommentsCount = 0
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	} else {
		p.CreatedAt = p.CreatedAt.UTC()
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
}

// TextForExtraction returns title and body concatenated, the input to
// key-term extraction and market-signal scanning.
func (p *Post) TextForExtraction() string {
	if p.Body == "" {
		return p.Title
	}
	return p.Title + " " + p.Body
}

// PainScore is the analyzer's classification of one Post.
type PainScore struct {
	Score              float64
	Reasoning          string
	DetectedProblems   []string
	SuggestedSolutions []string
	EngagementScore    float64
	ValidationScore    float64
	RecencyScore       float64
	CompositeValue     float64
	SentimentLabel     SentimentLabel
	SentimentIntensity float64
}

// BackfillSentiment applies the post-parse repair logic from §4.4 in order:
// if intensity is known but label is missing, derive the label by
// threshold; if label is known but intensity is zero, derive intensity from
// the fixed table.
func (p *PainScore) BackfillSentiment() {
	if p.SentimentIntensity > 0 && p.SentimentLabel == "" {
		p.SentimentLabel = LabelForIntensity(p.SentimentIntensity)
		return
	}
	if p.SentimentLabel != "" && p.SentimentIntensity == 0 {
		if v, ok := IntensityForLabel(p.SentimentLabel); ok {
			p.SentimentIntensity = v
		}
	}
}

// FailedPainScore is the fail-open result returned when analysis could not
// complete, per §4.4 rule 3 and invariant/scenario S8.
func FailedPainScore(err error) PainScore {
	return PainScore{
		Score:     0,
		Reasoning: "Analysis failed: " + err.Error(),
	}
}

// ScoreWeights holds the per-dimension weights used by the scoring engine.
// The zero value is invalid; use DefaultWeights().
type ScoreWeights struct {
	PainIntensity      float64
	EngagementNorm     float64
	ValidationEvidence float64
	SentimentIntensity float64
	Recency            float64
	TrendMomentum      float64
	MarketSignal       float64
}

// DefaultWeights returns the default weight set from §4.6, summing to 1.0.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		PainIntensity:      0.25,
		EngagementNorm:     0.15,
		ValidationEvidence: 0.15,
		SentimentIntensity: 0.15,
		Recency:            0.08,
		TrendMomentum:      0.12,
		MarketSignal:       0.10,
	}
}

// Sum returns the sum of all seven weights, used to validate invariant 7.
func (w ScoreWeights) Sum() float64 {
	return w.PainIntensity + w.EngagementNorm + w.ValidationEvidence +
		w.SentimentIntensity + w.Recency + w.TrendMomentum + w.MarketSignal
}

// OpportunityScore is the Scoring Engine's output for one Post.
type OpportunityScore struct {
	PostID             string
	Source             string
	FinalScore         float64
	PainIntensity      float64
	EngagementNorm     float64
	ValidationEvidence float64
	SentimentIntensity float64
	Recency            float64
	TrendMomentum      float64
	MarketSignal       float64
	CrossSourceBonus   float64
	Weights            ScoreWeights
	ComputedAt         time.Time
}

// Dimensions returns the seven scoring dimensions as a name-keyed map,
// retained on the record for audit per §3.
func (o *OpportunityScore) Dimensions() map[string]float64 {
	return map[string]float64{
		"pain_intensity":      o.PainIntensity,
		"engagement_norm":     o.EngagementNorm,
		"validation_evidence": o.ValidationEvidence,
		"sentiment_intensity": o.SentimentIntensity,
		"recency":             o.Recency,
		"trend_momentum":      o.TrendMomentum,
		"market_signal":       o.MarketSignal,
	}
}

// Lead is referenced at the boundary (§6); its extraction logic is an
// external collaborator, but the Store persists and retrieves it by this
// shape.
type Lead struct {
	ID          int64
	PostID      string
	ContactInfo string
	IntentScore float64
	Status      string
	CreatedAt   time.Time
}

// ValidationReport is referenced at the boundary (§6); its generation logic
// is an external collaborator.
type ValidationReport struct {
	ID         int64
	PostID     string
	Summary    string
	Confidence float64
	CreatedAt  time.Time
}

// Persona is carried in the store schema per §6's persisted-state layout;
// persona generation logic is an external collaborator.
type Persona struct {
	ID        int64
	Name      string
	Traits    map[string]any
	CreatedAt time.Time
}
