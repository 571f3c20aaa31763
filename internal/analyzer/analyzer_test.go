package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/foundersignal/pipeline/internal/llm"
	"github.com/foundersignal/pipeline/internal/model"
)

// fakeCompleter returns a fixed reply or error, and records the last request
// it received.
type fakeCompleter struct {
	reply   string
	err     error
	lastReq llm.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func TestAnalyze_ParsesReply(t *testing.T) {
	f := &fakeCompleter{reply: `{"score":0.8,"reasoning":"clear pain","detected_problems":["billing"],"suggested_solutions":["automation"],"validation_score":0.6,"sentiment_label":"frustrated","sentiment_intensity":0.7}`}
	a := New(f)

	ps := a.Analyze(context.Background(), model.Post{Title: "billing is broken", Body: "stripe webhooks fail"})
	if ps.Score != 0.8 {
		t.Errorf("Score = %v, want 0.8", ps.Score)
	}
	if ps.SentimentLabel != model.SentimentFrustrated {
		t.Errorf("SentimentLabel = %v, want frustrated", ps.SentimentLabel)
	}
	if len(ps.DetectedProblems) != 1 || ps.DetectedProblems[0] != "billing" {
		t.Errorf("DetectedProblems = %v", ps.DetectedProblems)
	}
}

func TestAnalyze_RequestsJSONFormat(t *testing.T) {
	f := &fakeCompleter{reply: `{}`}
	a := New(f)
	a.Analyze(context.Background(), model.Post{Title: "x"})

	if f.lastReq.ResponseFormat != llm.ResponseFormatJSON {
		t.Errorf("ResponseFormat = %v, want json_object", f.lastReq.ResponseFormat)
	}
	if !strings.Contains(f.lastReq.Prompt, "x") {
		t.Errorf("Prompt = %q, want to include title", f.lastReq.Prompt)
	}
}

func TestAnalyze_FailsOpenOnTransportError_S8(t *testing.T) {
	f := &fakeCompleter{err: errors.New("upstream down")}
	a := New(f)

	ps := a.Analyze(context.Background(), model.Post{Title: "x"})
	if ps.Score != 0 {
		t.Errorf("Score = %v, want 0", ps.Score)
	}
	if !strings.HasPrefix(ps.Reasoning, "Analysis failed") {
		t.Errorf("Reasoning = %q, want prefix 'Analysis failed'", ps.Reasoning)
	}
}

func TestAnalyze_FailsOpenOnParseError(t *testing.T) {
	f := &fakeCompleter{reply: "not json at all"}
	a := New(f)

	ps := a.Analyze(context.Background(), model.Post{Title: "x"})
	if ps.Score != 0 {
		t.Errorf("Score = %v, want 0", ps.Score)
	}
	if !strings.HasPrefix(ps.Reasoning, "Analysis failed") {
		t.Errorf("Reasoning = %q, want prefix 'Analysis failed'", ps.Reasoning)
	}
}

func TestAnalyze_BackfillsSentiment_S7(t *testing.T) {
	f := &fakeCompleter{reply: `{"score":0.5,"sentiment_intensity":0.85}`}
	a := New(f)

	ps := a.Analyze(context.Background(), model.Post{Title: "x"})
	if ps.SentimentLabel != model.SentimentDesperate {
		t.Errorf("SentimentLabel = %v, want desperate", ps.SentimentLabel)
	}
}

func TestAnalyze_ClipsLongBody(t *testing.T) {
	f := &fakeCompleter{reply: `{}`}
	a := New(f)
	longBody := strings.Repeat("a", maxBodyChars+500)

	a.Analyze(context.Background(), model.Post{Title: "x", Body: longBody})
	if strings.Contains(f.lastReq.Prompt, strings.Repeat("a", maxBodyChars+1)) {
		t.Error("prompt should clip body to maxBodyChars")
	}
}
