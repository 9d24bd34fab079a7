package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/resilience/internal/classify"
	"github.com/vietddude/resilience/internal/core/domain"
	"github.com/vietddude/resilience/internal/infra/storage/memory"
	"github.com/vietddude/resilience/internal/offline"
)

type capture struct {
	mu       sync.Mutex
	requests []Request
}

func (c *capture) add(r Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, r)
}

func (c *capture) all() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.requests...)
}

func newServer(t *testing.T, status int, body string, c *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if c != nil {
			c.add(req)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatch_Success(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusCreated, `{"id":"nb-1"}`, c)
	d := NewHTTPDispatcher(srv.URL, time.Second)

	err := d.Dispatch(context.Background(), Request{
		Type:    domain.ActionCreateNotebook,
		ID:      "item-1",
		Payload: map[string]any{"title": "X"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reqs := c.all()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Type != domain.ActionCreateNotebook || reqs[0].ID != "item-1" || reqs[0].Payload["title"] != "X" {
		t.Errorf("unexpected request body: %+v", reqs[0])
	}
}

func TestDispatch_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
		code      string
	}{
		{"rate limited", http.StatusTooManyRequests, "", false, ""},
		{"server error", http.StatusInternalServerError, "boom", false, ""},
		{"bad gateway with code", http.StatusBadGateway, `{"code":"grpc:Unavailable","message":"upstream down"}`, false, "grpc:Unavailable"},
		{"bad request", http.StatusBadRequest, `{"code":"23502","message":"title is required"}`, true, "23502"},
		{"forbidden", http.StatusForbidden, "nope", true, ""},
		{"unauthorized", http.StatusUnauthorized, `{"code":"PGRST301","message":"JWT expired"}`, true, "PGRST301"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body, nil)
			d := NewHTTPDispatcher(srv.URL, time.Second)

			err := d.Dispatch(context.Background(), Request{Type: domain.ActionUpdateProfile})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := offline.IsPermanent(err); got != tt.permanent {
				t.Errorf("expected permanent=%v, got %v (%v)", tt.permanent, got, err)
			}

			var be *classify.BackendError
			if tt.code == "" {
				if errors.As(err, &be) {
					t.Errorf("expected plain error, got backend error %+v", be)
				}
				return
			}
			if !errors.As(err, &be) {
				t.Fatalf("expected backend error, got %T", err)
			}
			if be.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, be.Code)
			}
		})
	}
}

func TestDispatch_BackendErrorClassifies(t *testing.T) {
	srv := newServer(t, http.StatusUnauthorized, `{"code":"PGRST301","message":"JWT expired"}`, nil)
	d := NewHTTPDispatcher(srv.URL, time.Second)

	err := d.Dispatch(context.Background(), Request{Type: domain.ActionUpdateProfile})
	ce := classify.ClassifyError(err, domain.ErrorContext{Operation: "update_profile"})
	if ce.Kind != domain.KindAuth {
		t.Errorf("expected auth kind, got %s", ce.Kind)
	}
}

func TestDispatch_TransportErrorRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewHTTPDispatcher(url, time.Second)
	err := d.Dispatch(context.Background(), Request{Type: domain.ActionAddMaterial})
	if err == nil {
		t.Fatal("expected error")
	}
	if offline.IsPermanent(err) {
		t.Error("transport failures must be retryable")
	}
}

func TestHandlers_ProcessQueue(t *testing.T) {
	c := &capture{}
	srv := newServer(t, http.StatusOK, "", c)
	d := NewHTTPDispatcher(srv.URL, time.Second)

	ctx := context.Background()
	q := offline.NewQueue(memory.NewQueueStore(), nil, offline.DefaultConfig())
	item, err := q.Enqueue(ctx, domain.ActionDeleteNotebook, map[string]any{"id": "nb-9"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	res, err := q.Process(ctx, d.Handlers(domain.ActionDeleteNotebook, domain.ActionCreateNotebook))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Success != 1 {
		t.Errorf("expected 1 success, got %+v", res)
	}

	reqs := c.all()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].ID != item.ID || reqs[0].Type != domain.ActionDeleteNotebook {
		t.Errorf("unexpected request: %+v", reqs[0])
	}
}
