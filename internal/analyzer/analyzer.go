// Package analyzer implements the Pain Analyzer (C5): it builds a fixed
// prompt from a Post, asks the LLM client for a structured reply, and
// parses it into a model.PainScore, failing open on any error per §4.4.
package analyzer

import (
	"context"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/foundersignal/pipeline/internal/llm"
	"github.com/foundersignal/pipeline/internal/model"
)

// maxBodyChars clips the body included in the prompt so a very long post
// does not blow the provider's context window.
const maxBodyChars = 4000

// completer is the subset of llm.Client the analyzer depends on.
type completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

const systemPrompt = "You are a product discovery analyst. Read the post and assess how strongly it expresses a real, unmet pain point that a founder could build a product around."

// Analyzer applies the fixed prompt template and parses the oracle's reply.
type Analyzer struct {
	llm completer
}

// New builds an Analyzer around an LLM client.
func New(c completer) *Analyzer {
	return &Analyzer{llm: c}
}

type rawPainScore struct {
	Score              float64  `json:"score"`
	Reasoning          string   `json:"reasoning"`
	DetectedProblems   []string `json:"detected_problems"`
	SuggestedSolutions []string `json:"suggested_solutions"`
	ValidationScore    float64  `json:"validation_score"`
	SentimentLabel     string   `json:"sentiment_label"`
	SentimentIntensity float64  `json:"sentiment_intensity"`
}

// Analyze builds the prompt, requests a JSON reply, and parses it into a
// PainScore, applying the sentiment backfill rules and failing open on any
// transport or parse error.
func (a *Analyzer) Analyze(ctx context.Context, p model.Post) model.PainScore {
	prompt := buildPrompt(p)

	reply, err := a.llm.Complete(ctx, llm.CompletionRequest{
		Prompt:         prompt,
		SystemPrompt:   systemPrompt,
		ResponseFormat: llm.ResponseFormatJSON,
		Temperature:    0.3,
		MaxTokens:      600,
	})
	if err != nil {
		return model.FailedPainScore(err)
	}

	var raw rawPainScore
	if err := json.Unmarshal([]byte(reply), &raw); err != nil {
		return model.FailedPainScore(err)
	}

	ps := model.PainScore{
		Score:              model.Clamp01(raw.Score),
		Reasoning:          raw.Reasoning,
		DetectedProblems:   raw.DetectedProblems,
		SuggestedSolutions: raw.SuggestedSolutions,
		ValidationScore:    model.Clamp01(raw.ValidationScore),
		SentimentLabel:     model.SentimentLabel(raw.SentimentLabel),
		SentimentIntensity: model.Clamp01(raw.SentimentIntensity),
	}
	ps.BackfillSentiment()
	return ps
}

func buildPrompt(p model.Post) string {
	body := p.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(p.Title)
	if body != "" {
		b.WriteString("\nBody: ")
		b.WriteString(body)
	}
	b.WriteString("\n\nRespond with a JSON object with fields: score (0-1), reasoning, ")
	b.WriteString("detected_problems (string array), suggested_solutions (string array), ")
	b.WriteString("validation_score (0-1), sentiment_label (frustrated|desperate|curious|neutral|positive), ")
	b.WriteString("sentiment_intensity (0-1).")
	return b.String()
}
