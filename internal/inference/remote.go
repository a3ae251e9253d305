package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	remoteMaxAttempts  = 3
	remoteBaseBackoff  = 100 * time.Millisecond
	remoteRequestLimit = 1 << 20 // response body cap
)

// RemoteScorer scores vectors against a remote scoring service speaking the
// same JSON contract as the local API. Transient failures (network errors,
// 5xx) are retried with exponential backoff; validation rejections are not.
type RemoteScorer struct {
	baseURL string
	client  *http.Client
}

// NewRemoteScorer creates a client for the scoring service at baseURL.
func NewRemoteScorer(baseURL string, client *http.Client) *RemoteScorer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteScorer{baseURL: baseURL, client: client}
}

// Score implements domain.Scorer over HTTP.
func (r *RemoteScorer) Score(ctx context.Context, vec *domain.FeatureVector, opts domain.ScoreOptions) (*domain.PredictionResult, error) {
	payload, err := json.Marshal(vec.ToMap())
	if err != nil {
		return nil, fmt.Errorf("encode feature vector: %w", err)
	}

	url := r.baseURL + "/predict"
	if !opts.UseCache {
		url += "?cache=false"
	}

	var lastErr error
	for attempt := 0; attempt < remoteMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := remoteBaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, retryable, err := r.post(ctx, url, payload)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("remote scorer: %d attempts failed: %w", remoteMaxAttempts, lastErr)
}

// post performs one request. The second return reports whether the failure
// is worth retrying.
func (r *RemoteScorer) post(ctx context.Context, url string, payload []byte) (*domain.PredictionResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, remoteRequestLimit))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var result domain.PredictionResult
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, false, fmt.Errorf("decode response: %w", err)
		}
		return &result, false, nil

	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		var verr domain.ValidationError
		if err := json.Unmarshal(body, &verr); err == nil && len(verr.Fields) > 0 {
			return nil, false, &verr
		}
		return nil, false, fmt.Errorf("remote rejected request: %s", string(body))

	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("remote returned %d: %s", resp.StatusCode, string(body))

	default:
		return nil, false, fmt.Errorf("remote returned %d: %s", resp.StatusCode, string(body))
	}
}

// Ping checks the remote service's health endpoint.
func (r *RemoteScorer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping remote scorer: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote scorer unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
