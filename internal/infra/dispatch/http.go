// Package dispatch forwards queued actions to the backend over HTTP.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/resilience/internal/classify"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/offline"
)

// DefaultTimeout bounds a single dispatch request.
const DefaultTimeout = 10 * time.Second

// Request is the body POSTed for every queued action.
type Request struct {
	Type    domain.ActionType `json:"type"`
	ID      string            `json:"id,omitempty"`
	Payload map[string]any    `json:"payload"`
}

// HTTPDispatcher POSTs queued actions to a single endpoint.
type HTTPDispatcher struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger
}

// NewHTTPDispatcher creates a dispatcher for url.
func NewHTTPDispatcher(url string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPDispatcher{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: slog.Default().With("component", "dispatcher"),
	}
}

// Handlers returns a queue handler for each of types.
func (d *HTTPDispatcher) Handlers(types ...domain.ActionType) offline.Handlers {
	h := make(offline.Handlers, len(types))
	for _, typ := range types {
		h[typ] = d.Handler(typ)
	}
	return h
}

// Handler returns a queue handler that dispatches actions of type typ.
func (d *HTTPDispatcher) Handler(typ domain.ActionType) offline.ActionHandler {
	return func(ctx context.Context, payload map[string]any) error {
		var id string
		if it, ok := offline.ItemFromContext(ctx); ok {
			id = it.ID
		}
		return d.Dispatch(ctx, Request{Type: typ, ID: id, Payload: payload})
	}
}

// Dispatch sends one action. Rate limiting, server errors and transport
// failures are retryable; any other non-2xx response is wrapped with
// offline.Permanent. A JSON error body is returned as *classify.BackendError.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, r Request) error {
	jsonData, err := json.Marshal(r)
	if err != nil {
		return offline.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(jsonData))
	if err != nil {
		return offline.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", r.Type, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.log.Debug("Action dispatched", "type", r.Type, "item_id", r.ID, "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	herr := responseError(resp, body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		d.log.Warn("Dispatch rate limited", "type", r.Type, "retry_after", resp.Header.Get("Retry-After"))
		return herr
	case resp.StatusCode >= http.StatusInternalServerError:
		return herr
	default:
		return offline.Permanent(herr)
	}
}

func responseError(resp *http.Response, body []byte) error {
	var be classify.BackendError
	if json.Unmarshal(body, &be) == nil && (be.Code != "" || be.Message != "") {
		return &be
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (429), retry after: %s", resp.Header.Get("Retry-After"))
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
}
