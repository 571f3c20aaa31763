package llm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/foundersignal/pipeline/infrastructure/httputil"
)

// HostedBackend talks to a bearer-authenticated chat-completion API (the
// "hosted" provider named in configuration), returning choices[0].message.content.
type HostedBackend struct {
	providerName string
	baseURL      string
	model        string
	apiKey       string
	client       *http.Client
}

// NewHostedBackend builds a HostedBackend for a given provider label
// ("groq", etc.), base URL, model and bearer API key.
func NewHostedBackend(providerName, baseURL, model, apiKey string) (*HostedBackend, error) {
	client, normalized, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: baseURL, ServiceID: "llm-" + providerName},
		httputil.DefaultClientDefaults(),
	)
	if err != nil {
		return nil, err
	}
	return &HostedBackend{
		providerName: providerName,
		baseURL:      normalized,
		model:        model,
		apiKey:       apiKey,
		client:       client,
	}, nil
}

func (h *HostedBackend) name() string { return h.providerName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (h *HostedBackend) call(ctx context.Context, req CompletionRequest) (string, error) {
	messages := []chatMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       h.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := httputil.ReadAllStrict(resp.Body, 1<<20)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s completion request failed: status %d: %s", h.providerName, resp.StatusCode, string(raw))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s completion response had no choices", h.providerName)
	}
	return parsed.Choices[0].Message.Content, nil
}
