package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabrielmiguelok/pagestudio/pkg/catalog"
	"github.com/gabrielmiguelok/pagestudio/pkg/retry"
)

// maxBodySize bounds responses read from a remote backend.
const maxBodySize = 4 << 20

// HTTPClient talks to a remote studio backend exposing /api/pages and
// /api/catalog. 5xx responses and transport errors are retried; 4xx are not.
// Repeated backend failures open a circuit breaker that fails calls fast.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	retry   *retry.Config
	breaker *retry.CircuitBreaker
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) { h.client = c }
}

// WithRetry replaces the retry policy.
func WithRetry(cfg *retry.Config) HTTPOption {
	return func(h *HTTPClient) { h.retry = cfg }
}

// WithBreaker replaces the circuit breaker. A nil breaker disables it.
func WithBreaker(cb *retry.CircuitBreaker) HTTPOption {
	return func(h *HTTPClient) { h.breaker = cb }
}

// NewHTTPClient creates a client for baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		retry:   retry.DefaultConfig(),
		breaker: retry.NewCircuitBreaker(nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	op := method + " " + path
	return retry.RetryWithResult(ctx, h.retry, func() ([]byte, error) {
		data, err := retry.ExecuteWithResult(h.breaker, func() ([]byte, error) {
			return h.attempt(ctx, op, method, path, body)
		})
		if errors.Is(err, retry.ErrCircuitOpen) {
			return nil, retry.Permanent(fmt.Errorf("%s: %w", op, err))
		}
		return data, err
	})
}

func (h *HTTPClient) attempt(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	case resp.StatusCode >= 400:
		return nil, retry.Permanent(&StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))})
	}
	return data, nil
}

// HTTPRepository stores pages through a remote backend.
type HTTPRepository struct {
	*HTTPClient
}

// NewHTTPRepository creates a page repository for baseURL.
func NewHTTPRepository(baseURL string, opts ...HTTPOption) *HTTPRepository {
	return &HTTPRepository{HTTPClient: NewHTTPClient(baseURL, opts...)}
}

// Get fetches the page document.
func (r *HTTPRepository) Get(ctx context.Context, page string) ([]byte, error) {
	return r.do(ctx, http.MethodGet, "/api/pages/"+url.PathEscape(page), nil)
}

// Put replaces the page document.
func (r *HTTPRepository) Put(ctx context.Context, page string, doc []byte) ([]byte, error) {
	return r.do(ctx, http.MethodPut, "/api/pages/"+url.PathEscape(page), doc)
}

// HTTPCatalog reads the catalog from a remote backend.
type HTTPCatalog struct {
	*HTTPClient
}

// NewHTTPCatalog creates a catalog source for baseURL.
func NewHTTPCatalog(baseURL string, opts ...HTTPOption) *HTTPCatalog {
	return &HTTPCatalog{HTTPClient: NewHTTPClient(baseURL, opts...)}
}

// List fetches the items of kind.
func (c *HTTPCatalog) List(ctx context.Context, kind catalog.Kind) ([]catalog.Item, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/catalog/"+url.PathEscape(string(kind)), nil)
	if err != nil {
		return nil, err
	}
	var items []catalog.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return items, nil
}
