// Package predict is the HTTP client for the gesture prediction endpoint.
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/payallenka/isl/internal/core/domain"
)

const (
	defaultBaseURL = "http://localhost:8000"
	predictPath    = "/api/predict/"

	// DefaultTimeout bounds a prediction request, including reading the body.
	DefaultTimeout = 7 * time.Second

	// fallbackMessage is used when a rejection carries no error text.
	fallbackMessage = "Prediction failed"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client posts keypoint tensors to the prediction endpoint. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// NewClient creates a new prediction client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the request deadline in use.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Predict sends tensor for classification. An empty token sends the request
// without an Authorization header.
func (c *Client) Predict(ctx context.Context, tensor domain.KeypointTensor, token string) (*domain.PredictionResult, error) {
	if err := tensor.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(domain.PredictRequest{Keypoints: tensor})
	if err != nil {
		return nil, domain.ErrEncodingInvariant("failed to marshal keypoints").WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, domain.ErrNetwork("failed to create request").WithCause(err)
	}

	c.setHeaders(httpReq, token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, domain.ErrValidation(errorMessage(respBody)).WithStatusCode(resp.StatusCode)
	}

	var result domain.PredictionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.ErrNetwork("failed to parse prediction response").WithCause(err)
	}
	if err := result.Validate(); err != nil {
		return nil, domain.ErrNetwork("malformed prediction response").WithCause(err)
	}

	return &result, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

// transportError classifies a failed round trip. Our own deadline expiring
// is a Timeout; everything else is a NetworkError.
func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout(fmt.Sprintf("Request aborted after %s", c.timeout)).WithCause(err)
	}
	return domain.ErrNetwork("Network request failed: " + err.Error()).WithCause(err)
}

// errorMessage extracts the "error" field of a rejection body.
func errorMessage(body []byte) string {
	var e domain.ErrorBody
	if err := json.Unmarshal(body, &e); err == nil && strings.TrimSpace(e.Error) != "" {
		return e.Error
	}
	return fallbackMessage
}
