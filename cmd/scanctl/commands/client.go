package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// apiGet and apiPost are thin JSON helpers over net/http; scanctl talks to
// the gateway exactly as any other HTTP client would, never reaching into
// internal/store directly.
func apiGet(ctx context.Context, path string, out interface{}) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return do(req, out)
}

func apiPost(ctx context.Context, path string, body interface{}, out interface{}) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIBaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, out)
}

func apiDelete(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, cfg.APIBaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return do(req, nil)
}

func do(req *http.Request, out interface{}) (*http.Response, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return resp, fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, string(body))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp, nil
}
