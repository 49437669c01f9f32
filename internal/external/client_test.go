package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"runcoach/internal/types"
)

// noopSleep is a sleep function that does nothing, for fast tests.
func noopSleep(time.Duration) {}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond}
}

func newTestClient(t *testing.T, policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	t.Helper()
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep), WithUserAgent("runcoach-test/1.0")}, opts...)
	return NewBaseClient(&http.Client{Timeout: 5 * time.Second}, t.Name(), policy, opts...)
}

func doGet(t *testing.T, ctx context.Context, c *BaseClient, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	return c.Do(req)
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	resp, err := doGet(t, context.Background(), newTestClient(t, NoRetryPolicy()), server.URL)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestDo_TraceAndUserAgentHeaders(t *testing.T) {
	var gotTrace, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = r.Header.Get("X-Trace-Id")
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := newTestClient(t, NoRetryPolicy())

	ctx := types.WithRequestID(context.Background(), "req-1")
	ctx = types.WithSyncRunID(ctx, "run-42")
	resp, err := doGet(t, ctx, client, server.URL)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	resp.Body.Close()

	if gotTrace != "run-42" {
		t.Errorf("expected sync run id to win as trace id, got %q", gotTrace)
	}
	if gotUA != "runcoach-test/1.0" {
		t.Errorf("unexpected User-Agent %q", gotUA)
	}

	resp, err = doGet(t, context.Background(), client, server.URL)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	resp.Body.Close()
	if gotTrace != "" {
		t.Errorf("expected no trace header without context ids, got %q", gotTrace)
	}
}

func TestDo_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := doGet(t, context.Background(), newTestClient(t, NoRetryPolicy()), server.URL)
	if !types.HasCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Fatalf("expected %s, got %v", types.ErrCodeUpstreamUnavailable, err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected exactly 1 call, got %d", n)
	}
}

func TestDo_RetriesWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	resp, err := doGet(t, context.Background(), newTestClient(t, fastPolicy(2)), server.URL)
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	defer resp.Body.Close()

	if n := calls.Load(); n != 3 {
		t.Errorf("expected 3 calls, got %d", n)
	}
}

func TestDo_429MapsToRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resp, err := doGet(t, context.Background(), newTestClient(t, NoRetryPolicy()), server.URL)
	if resp != nil {
		t.Error("expected nil response on 429")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamRateLimited, appErr.Code)
	}
}

func TestDo_4xxReturnedAsIs(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := doGet(t, context.Background(), newTestClient(t, fastPolicy(3)), server.URL)
	if err != nil {
		t.Fatalf("expected no error for 404, got: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 call for 4xx, got %d", n)
	}
}

func TestDo_RetryAfterHonoredAndCapped(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		want       time.Duration
	}{
		{"honored", "2", 2 * time.Second},
		{"capped", "3600", 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.Header().Set("Retry-After", tt.retryAfter)
					w.WriteHeader(http.StatusTooManyRequests)
				}
			}))
			defer server.Close()

			var slept []time.Duration
			client := NewBaseClient(
				&http.Client{Timeout: 5 * time.Second},
				"retry-after-"+tt.name,
				RetryPolicy{MaxRetries: 1, MinWait: 100 * time.Millisecond, MaxWait: 5 * time.Second},
				WithSleepFunc(func(d time.Duration) { slept = append(slept, d) }),
			)

			resp, err := doGet(t, context.Background(), client, server.URL)
			if err != nil {
				t.Fatalf("expected success, got: %v", err)
			}
			resp.Body.Close()

			if len(slept) != 1 || slept[0] != tt.want {
				t.Errorf("expected one sleep of %v, got %v", tt.want, slept)
			}
		})
	}
}

func TestDo_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, NoRetryPolicy())

	// The breaker trips after more than five consecutive failures.
	for i := 0; i < 6; i++ {
		_, _ = doGet(t, context.Background(), client, server.URL)
	}
	before := calls.Load()

	_, err := doGet(t, context.Background(), client, server.URL)
	if !types.HasCode(err, types.ErrCodeUpstreamRateLimited) {
		t.Fatalf("expected open breaker to map to %s, got %v", types.ErrCodeUpstreamRateLimited, err)
	}
	if calls.Load() != before {
		t.Error("expected no server call while the breaker is open")
	}
}

func TestDo_NetworkErrorMapsToUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := doGet(t, context.Background(), newTestClient(t, NoRetryPolicy()), url)
	if !types.HasCode(err, types.ErrCodeUpstreamUnavailable) {
		t.Fatalf("expected %s, got %v", types.ErrCodeUpstreamUnavailable, err)
	}
}

func TestDo_ObserverSeesThrottledResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Probe", "seen")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var observed []string
	client := newTestClient(t, NoRetryPolicy(), WithResponseObserver(func(r *http.Response) {
		observed = append(observed, r.Header.Get("X-Probe"))
	}))

	_, _ = doGet(t, context.Background(), client, server.URL)

	if len(observed) != 1 || observed[0] != "seen" {
		t.Errorf("expected observer to see the 429 response, got %v", observed)
	}
}

func TestComputeBackoff_Bounds(t *testing.T) {
	client := &BaseClient{retryPolicy: RetryPolicy{MaxRetries: 5, MinWait: 100 * time.Millisecond, MaxWait: 2 * time.Second}}

	for attempt := 0; attempt < 6; attempt++ {
		d := client.computeBackoff(attempt, nil)
		if d < client.retryPolicy.MinWait || d > client.retryPolicy.MaxWait {
			t.Errorf("attempt %d: backoff %v outside [%v, %v]", attempt, d, client.retryPolicy.MinWait, client.retryPolicy.MaxWait)
		}
	}
}
