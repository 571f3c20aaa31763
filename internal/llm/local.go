package llm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/foundersignal/pipeline/infrastructure/httputil"
)

// LocalBackend talks to a local completion daemon (an Ollama-style host),
// the "local" provider named in configuration.
type LocalBackend struct {
	host   string
	model  string
	client *http.Client
}

// NewLocalBackend builds a LocalBackend pointed at a local daemon host/model.
func NewLocalBackend(host, model string) (*LocalBackend, error) {
	client, normalized, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: host, ServiceID: "llm-local"},
		httputil.DefaultClientDefaults(),
	)
	if err != nil {
		return nil, err
	}
	return &LocalBackend{host: normalized, model: model, client: client}, nil
}

func (l *LocalBackend) name() string { return "local" }

type localGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type localGenerateResponse struct {
	Response string `json:"response"`
}

func (l *LocalBackend) call(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(localGenerateRequest{
		Model:  l.model,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("local completion request failed: status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed localGenerateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	return parsed.Response, nil
}
