package adapters

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/foundersignal/pipeline/infrastructure/httputil"
	"github.com/foundersignal/pipeline/infrastructure/resilience"
)

// ApifyRunner is a thin client for the Apify-style actor-runner contract
// shared by the review-platform adapters: start a named actor with input,
// poll until the run finishes, then page through the resulting dataset.
// No ecosystem Apify SDK appeared anywhere in the reference pack, so this
// is a small hand-rolled REST client rather than a wrapped library.
type ApifyRunner struct {
	Client  *http.Client
	BaseURL string
	Token   string
	cb      *resilience.CircuitBreaker
}

// NewApifyRunner builds a runner against the Apify-style REST API.
func NewApifyRunner(baseURL, token string, serviceID string) (*ApifyRunner, error) {
	client, normalized, err := httputil.NewClientWithBaseURL(
		httputil.ClientConfig{BaseURL: baseURL, ServiceID: serviceID}, httputil.DefaultClientDefaults())
	if err != nil {
		return nil, err
	}
	cb := resilience.New(resilience.DefaultServiceCBConfig(nil))
	return &ApifyRunner{Client: client, BaseURL: normalized, Token: token, cb: cb}, nil
}

type runStartResponse struct {
	Data struct {
		ID            string `json:"id"`
		DefaultDatasetId string `json:"defaultDatasetId"`
		Status        string `json:"status"`
	} `json:"data"`
}

// Run starts actorID with input, polls until terminal state, and returns
// the resulting dataset items as raw JSON objects.
func (r *ApifyRunner) Run(ctx context.Context, actorID string, input map[string]any, maxPollAttempts int) ([]map[string]any, error) {
	startRaw, err := r.post(ctx, fmt.Sprintf("%s/v2/acts/%s/runs?token=%s", r.BaseURL, actorID, r.Token), input)
	if err != nil {
		return nil, err
	}

	var started runStartResponse
	if err := json.Unmarshal(startRaw, &started); err != nil {
		return nil, err
	}

	datasetID := started.Data.DefaultDatasetId
	status := started.Data.Status
	runID := started.Data.ID

	for attempt := 0; attempt < maxPollAttempts && !isTerminal(status); attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}

		pollRaw, err := r.get(ctx, fmt.Sprintf("%s/v2/actor-runs/%s?token=%s", r.BaseURL, runID, r.Token))
		if err != nil {
			return nil, err
		}
		var polled runStartResponse
		if err := json.Unmarshal(pollRaw, &polled); err != nil {
			return nil, err
		}
		status = polled.Data.Status
		if polled.Data.DefaultDatasetId != "" {
			datasetID = polled.Data.DefaultDatasetId
		}
	}

	if datasetID == "" {
		return nil, fmt.Errorf("apify run %s produced no dataset", runID)
	}

	itemsRaw, err := r.get(ctx, fmt.Sprintf("%s/v2/datasets/%s/items?token=%s&format=json", r.BaseURL, datasetID, r.Token))
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := json.Unmarshal(itemsRaw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func isTerminal(status string) bool {
	switch status {
	case "SUCCEEDED", "FAILED", "ABORTED", "TIMED-OUT":
		return true
	default:
		return false
	}
}

func (r *ApifyRunner) post(ctx context.Context, endpoint string, body map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var out []byte
	retryCfg := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.1}
	err = r.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, retryCfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := r.Client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("apify request failed: status %d", resp.StatusCode)
			}
			raw, err := httputil.ReadAllStrict(resp.Body, 4<<20)
			if err != nil {
				return err
			}
			out = raw
			return nil
		})
	})
	return out, err
}

func (r *ApifyRunner) get(ctx context.Context, endpoint string) ([]byte, error) {
	var out []byte
	retryCfg := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, Jitter: 0.1}
	err := r.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, retryCfg, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}
			resp, err := r.Client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("apify request failed: status %d", resp.StatusCode)
			}
			raw, err := httputil.ReadAllStrict(resp.Body, 4<<20)
			if err != nil {
				return err
			}
			out = raw
			return nil
		})
	})
	return out, err
}
