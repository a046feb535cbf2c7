package exchange

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	method    string
	path      string
	query     string
	body      string
	apiKey    string
	timestamp string
	signature string
}

type recorder struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (r *recorder) record(req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, recordedRequest{
		method:    req.Method,
		path:      req.URL.Path,
		query:     req.URL.RawQuery,
		body:      string(body),
		apiKey:    req.Header.Get("X-Api-Key"),
		timestamp: req.Header.Get("X-Timestamp"),
		signature: req.Header.Get("X-Signature"),
	})
}

func (r *recorder) all() []recordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedRequest(nil), r.requests...)
}

func newTestBackend(t *testing.T, handler http.HandlerFunc, cfg LiveConfig) (*LiveBackend, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/api/v1"
	if cfg.APIKey == "" {
		cfg.APIKey = "key"
	}
	b := NewLiveBackend(cfg)
	t.Cleanup(b.Close)

	var sleeps []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return b, &sleeps
}

func TestLiveBackend_RetriesOnceAfterRetryAfter(t *testing.T) {
	rec := &recorder{}
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"ok":true}}`))
	}

	b, sleeps := newTestBackend(t, handler, LiveConfig{APISecret: "secret"})

	resp, err := b.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/orders",
		Query:  url.Values{"symbol": {"BTC-USD"}},
		Body:   map[string]string{"size": "0.01"},
		Auth:   true,
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if string(resp.Data) != `{"ok":true}` {
		t.Errorf("data = %s", resp.Data)
	}

	reqs := rec.all()
	if len(reqs) != 2 {
		t.Fatalf("expected exactly 2 requests (1 retry), got %d", len(reqs))
	}
	if len(*sleeps) != 1 || (*sleeps)[0] < 2*time.Second {
		t.Fatalf("expected one wait of at least 2s, got %v", *sleeps)
	}
	first, second := reqs[0], reqs[1]
	if first.method != second.method || first.path != second.path || first.query != second.query || first.body != second.body {
		t.Errorf("retried request differs: %+v vs %+v", first, second)
	}
	if second.path != "/api/v1/orders" {
		t.Errorf("path = %s", second.path)
	}
}

func TestLiveBackend_RetryIsCapped(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}

	b, sleeps := newTestBackend(t, handler, LiveConfig{MaxAttempts: 3})

	_, err := b.Do(context.Background(), Request{Method: http.MethodGet, Path: "/markets"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if len(*sleeps) != 2 {
		t.Errorf("expected 2 waits, got %d", len(*sleeps))
	}
}

func TestLiveBackend_RetryRespectsDeadline(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}

	b, sleeps := newTestBackend(t, handler, LiveConfig{MaxAttempts: 5, RetryDeadline: time.Minute})

	_, err := b.Do(context.Background(), Request{Method: http.MethodGet, Path: "/markets"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != 1 || len(*sleeps) != 0 {
		t.Errorf("expected no retry past the deadline, got %d calls and %d waits", calls, len(*sleeps))
	}
}

func TestLiveBackend_DefaultRetryAfter(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	}

	b, sleeps := newTestBackend(t, handler, LiveConfig{})
	if _, err := b.Do(context.Background(), Request{Method: http.MethodGet, Path: "/markets"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != 60*time.Second {
		t.Errorf("expected default 60s wait, got %v", *sleeps)
	}
}

func TestLiveBackend_CancelledWait(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}
	b, _ := newTestBackend(t, handler, LiveConfig{})
	b.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Do(ctx, Request{Method: http.MethodGet, Path: "/markets"})
	if err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

func TestLiveBackend_APIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantHTTP    int
	}{
		{"bad request", http.StatusBadRequest, `{"message":"invalid size","details":{"field":"size"}}`, "invalid size", http.StatusBadRequest},
		{"not found", http.StatusNotFound, `{"error":{"message":"order not found"}}`, "order not found", http.StatusNotFound},
		{"server error", http.StatusBadGateway, `upstream exploded`, "upstream exploded", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}
			b, _ := newTestBackend(t, handler, LiveConfig{})

			_, err := b.Do(context.Background(), Request{Method: http.MethodGet, Path: "/markets"})
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if apiErr.HTTPStatus() != tt.wantHTTP {
				t.Errorf("HTTPStatus() = %d, want %d", apiErr.HTTPStatus(), tt.wantHTTP)
			}
		})
	}
}

func TestLiveBackend_AuthWithoutSecret(t *testing.T) {
	called := false
	handler := func(w http.ResponseWriter, r *http.Request) { called = true }
	b, _ := newTestBackend(t, handler, LiveConfig{})

	_, err := b.Do(context.Background(), Request{Method: http.MethodGet, Path: "/account", Auth: true})
	if !errors.Is(err, ErrAuthNotConfigured) {
		t.Fatalf("expected ErrAuthNotConfigured, got %v", err)
	}
	if called {
		t.Error("request should not reach the network without a secret")
	}
}

func TestLiveBackend_SignsAuthenticatedRequests(t *testing.T) {
	rec := &recorder{}
	handler := func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{}}`))
	}
	b, _ := newTestBackend(t, handler, LiveConfig{APIKey: "my-key", APISecret: "secret"})
	b.now = func() time.Time { return time.UnixMilli(1700000000000) }

	if _, err := b.Do(context.Background(), Request{Method: http.MethodGet, Path: "/account", Auth: true}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	got := rec.all()[0]
	if got.apiKey != "my-key" {
		t.Errorf("X-Api-Key = %q", got.apiKey)
	}
	if got.timestamp != "1700000000000" {
		t.Errorf("X-Timestamp = %q", got.timestamp)
	}
	if want := NewSigner("secret").Sign("1700000000000", "GET", "/account", ""); got.signature != want {
		t.Errorf("X-Signature = %q, want %q", got.signature, want)
	}
}

func TestLiveBackend_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	b := NewLiveBackend(LiveConfig{BaseURL: base, APIKey: "key"})
	_, err := b.Do(context.Background(), Request{Method: http.MethodGet, Path: "/markets"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLiveBackend_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	b := NewLiveBackend(LiveConfig{BaseURL: srv.URL, APIKey: "key", Timeout: 50 * time.Millisecond})
	_, err := b.Do(context.Background(), Request{Method: http.MethodGet, Path: "/markets"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}
