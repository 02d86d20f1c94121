package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// maxUpstreamBody caps how much of the model service's reply is read.
const maxUpstreamBody = 1 << 20

// InferenceClient forwards prediction bodies to the model service. The URL
// can be swapped at runtime when the config file changes.
type InferenceClient struct {
	mu         sync.RWMutex
	url        string
	httpClient *http.Client
}

// NewInferenceClient creates a client for the model service at url.
func NewInferenceClient(url string, timeout time.Duration) *InferenceClient {
	return &InferenceClient{
		url: url,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// URL returns the current model service URL.
func (c *InferenceClient) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

// SetURL points the client at a new model service.
func (c *InferenceClient) SetURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = url
}

// Predict posts body unchanged and returns the upstream status and body. A
// non-nil error means no response was received.
func (c *InferenceClient) Predict(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
