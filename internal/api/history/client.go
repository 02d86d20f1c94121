// Package history reads the prediction transaction history.
package history

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
	defaultBaseURL  = "http://localhost:8000"
	transactionPath = "/api/transactions/"

	// DefaultTimeout matches the prediction client's deadline.
	DefaultTimeout = 7 * time.Second

	// EmptyMessage is shown when there is no transaction to display.
	EmptyMessage = "No transactions found."
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

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client fetches transactions with a single GET. No pagination, no retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a new history client.
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

// List returns every transaction in server order. Bodies that are not a JSON
// array (an error object, for instance) yield an empty list.
func (c *Client) List(ctx context.Context, token string) ([]domain.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+transactionPath, nil)
	if err != nil {
		return nil, domain.ErrNetwork("failed to create request").WithCause(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if strings.TrimSpace(token) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	return decodeRecords(body)
}

// FetchLatest returns the first transaction, which the server sends newest
// first. ok is false when there is none.
func (c *Client) FetchLatest(ctx context.Context, token string) (domain.TransactionRecord, bool, error) {
	records, err := c.List(ctx, token)
	if err != nil {
		return domain.TransactionRecord{}, false, err
	}
	if len(records) == 0 {
		return domain.TransactionRecord{}, false, nil
	}
	return records[0], true, nil
}

func decodeRecords(body []byte) ([]domain.TransactionRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return nil, domain.ErrNetwork("failed to parse transaction history")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, domain.ErrNetwork("failed to parse transaction history").WithCause(err)
	}

	records := make([]domain.TransactionRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.TransactionRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			// non-object entries carry nothing to render
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout(fmt.Sprintf("Request aborted after %s", c.timeout)).WithCause(err)
	}
	return domain.ErrNetwork("Network request failed: " + err.Error()).WithCause(err)
}
