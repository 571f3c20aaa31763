package llm

import (
	"context"
	"strings"

	json "github.com/goccy/go-json"
)

// MockBackend returns deterministic, heuristic-derived replies without
// calling any network service — the "mock" provider named in
// configuration, used for local development and tests.
type MockBackend struct{}

// NewMockBackend builds a MockBackend.
func NewMockBackend() *MockBackend { return &MockBackend{} }

func (m *MockBackend) name() string { return "mock" }

type mockPainScore struct {
	Score              float64  `json:"score"`
	Reasoning          string   `json:"reasoning"`
	DetectedProblems   []string `json:"detected_problems"`
	SuggestedSolutions []string `json:"suggested_solutions"`
	ValidationScore    float64  `json:"validation_score"`
	SentimentLabel     string   `json:"sentiment_label"`
	SentimentIntensity float64  `json:"sentiment_intensity"`
}

// call derives a plausible PainScore-shaped JSON reply from simple keyword
// heuristics over the prompt, so callers exercising the full analyzer
// pipeline see believable variance without a live LLM.
func (m *MockBackend) call(ctx context.Context, req CompletionRequest) (string, error) {
	lower := strings.ToLower(req.Prompt)

	score := 0.3
	label := "neutral"
	intensity := 0.2
	problems := []string{}
	solutions := []string{}

	switch {
	case containsAny(lower, "desperate", "can't take it", "shut up and take my money"):
		score, label, intensity = 0.95, "desperate", 1.0
	case containsAny(lower, "frustrat", "annoying", "broken"):
		score, label, intensity = 0.75, "frustrated", 0.7
	case containsAny(lower, "curious", "wondering", "how do i"):
		score, label, intensity = 0.5, "curious", 0.4
	case containsAny(lower, "love", "great", "works well"):
		score, label, intensity = 0.1, "positive", 0.1
	}

	if containsAny(lower, "bug", "fails", "broken", "error") {
		problems = append(problems, "recurring reliability issue")
	}
	if containsAny(lower, "pay", "subscription", "pricing") {
		solutions = append(solutions, "paid alternative or managed service")
	}

	reply := mockPainScore{
		Score:              score,
		Reasoning:          "mock heuristic classification",
		DetectedProblems:   problems,
		SuggestedSolutions: solutions,
		ValidationScore:    score * 0.8,
		SentimentLabel:     label,
		SentimentIntensity: intensity,
	}

	out, err := json.Marshal(reply)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
