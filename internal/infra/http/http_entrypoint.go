package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ddp-dispatch/internal/domain"
)

// EntrypointName is the name the HTTP entrypoint is registered under.
const EntrypointName = "http"

// TrainRequest is the body posted to a training sidecar.
type TrainRequest struct {
	Args   []any             `json:"args"`
	Kwargs map[string]any    `json:"kwargs"`
	Env    map[string]string `json:"env"`
}

type httpEntrypoint struct {
	client *http.Client
}

// NewEntrypoint returns a training function that hands the run to an HTTP
// training sidecar. The sidecar URL is the "url" kwarg.
func NewEntrypoint(client *http.Client) domain.TrainFunc {
	if client == nil {
		client = http.DefaultClient
	}
	e := &httpEntrypoint{client: client}
	return e.Run
}

// Run posts the call to the sidecar and returns its decoded JSON response.
func (e *httpEntrypoint) Run(ctx context.Context, call domain.Call) (any, error) {
	url, ok := call.Kwargs["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("url kwarg must be a non-empty string")
	}

	body, err := json.Marshal(TrainRequest{
		Args:   call.Args,
		Kwargs: call.Kwargs,
		Env:    envMap(call.Env),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal train request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("training sidecar returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode sidecar response: %w", err)
	}
	return result, nil
}

func envMap(pairs []string) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		if k, v, ok := strings.Cut(p, "="); ok {
			m[k] = v
		}
	}
	return m
}
