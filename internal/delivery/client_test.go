package delivery

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serverdeck/serverdeck-agent/internal/config"
	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.DashboardURL = url
	cfg.ServerID = "srv-test"
	cfg.APIKey = "key-test"
	cfg.RetryAttempts = 3
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func TestAuthHeaderInjected(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), testLogger())
	if !c.Ping(context.Background()) {
		t.Fatal("ping failed")
	}
	if got := gotAuth.Load(); got != "Bearer srv-test:key-test" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestRegisterSkipsAuthAndReturnsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/register" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("registration carried Authorization %q", auth)
		}
		var info types.SystemInfo
		if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(types.RegisterResponse{ServerID: "srv-new", APIKey: "key-new"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ServerID, cfg.APIKey = "", ""
	c := New(cfg, testLogger())

	cred, err := c.Register(context.Background(), types.SystemInfo{Hostname: "h1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if cred.ServerID != "srv-new" || cred.APIKey != "key-new" {
		t.Errorf("cred = %+v", cred)
	}
}

func TestRegisterErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ServerID, cfg.APIKey = "", ""
	c := New(cfg, testLogger())

	if _, err := c.Register(context.Background(), types.SystemInfo{}); err == nil {
		t.Fatal("Register succeeded on 503")
	}
}

func TestSendMetricsSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), testLogger())
	if !c.SendMetrics(context.Background(), payloadN(1)) {
		t.Fatal("SendMetrics = false")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if c.buf.len() != 0 {
		t.Errorf("buffered = %d, want 0", c.buf.len())
	}
}

func TestSendMetricsAuthFailureSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), testLogger())
	if c.SendMetrics(context.Background(), payloadN(1)) {
		t.Fatal("SendMetrics = true on 401")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want exactly 1 (401 is terminal)", calls.Load())
	}
	if c.buf.len() != 0 {
		t.Errorf("buffered = %d; auth failures must not buffer", c.buf.len())
	}
}

func TestSendMetricsRetriesThenBuffers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryDelay = 15 * time.Millisecond
	c := New(cfg, testLogger())

	start := time.Now()
	if c.SendMetrics(context.Background(), payloadN(1)) {
		t.Fatal("SendMetrics = true on persistent 500")
	}
	elapsed := time.Since(start)

	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	// Two inter-attempt delays must have elapsed.
	if elapsed < 2*cfg.RetryDelay {
		t.Errorf("elapsed = %v, want >= %v", elapsed, 2*cfg.RetryDelay)
	}
	if c.buf.len() != 1 {
		t.Errorf("buffered = %d, want 1", c.buf.len())
	}
}

func TestSendMetricsUnreachableBuffers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening

	cfg := testConfig(srv.URL)
	cfg.RetryDelay = time.Millisecond
	c := New(cfg, testLogger())

	if c.SendMetrics(context.Background(), payloadN(1)) {
		t.Fatal("SendMetrics = true with no server")
	}
	if c.buf.len() != 1 {
		t.Errorf("buffered = %d, want 1", c.buf.len())
	}
}

func TestDrainBufferOldestFirst(t *testing.T) {
	// The client sends sequentially, so the handler never runs concurrently.
	var received []float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p types.MetricsPayload
		json.NewDecoder(r.Body).Decode(&p)
		received = append(received, p.Metrics.CPUPercent)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), testLogger())
	c.buf.push(payloadN(1))
	c.buf.push(payloadN(2))

	if !c.SendMetrics(context.Background(), payloadN(3)) {
		t.Fatal("SendMetrics = false")
	}
	want := []float64{3, 1, 2} // current payload first, then buffered oldest-first
	if len(received) != len(want) {
		t.Fatalf("received %v, want %v", received, want)
	}
	for i := range want {
		if received[i] != want[i] {
			t.Errorf("received[%d] = %v, want %v", i, received[i], want[i])
		}
	}
	if c.buf.len() != 0 {
		t.Errorf("buffered = %d after drain", c.buf.len())
	}
}

func TestDrainBufferStopsAtFirstFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Succeed for the live payload and the first buffered entry, then fail.
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), testLogger())
	c.buf.push(payloadN(1))
	c.buf.push(payloadN(2))
	c.buf.push(payloadN(3))

	if !c.SendMetrics(context.Background(), payloadN(4)) {
		t.Fatal("SendMetrics = false")
	}
	if c.buf.len() != 2 {
		t.Errorf("buffered = %d, want 2 (drain stops at first failure)", c.buf.len())
	}
}

func TestFetchPendingConfig(t *testing.T) {
	tests := []struct {
		name     string
		response types.PendingConfigResponse
		want     bool
	}{
		{"update pending", types.PendingConfigResponse{HasUpdate: true, Config: map[string]any{"top_processes": 5}}, true},
		{"no update", types.PendingConfigResponse{HasUpdate: false}, false},
		{"flag without body", types.PendingConfigResponse{HasUpdate: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/config/srv-test" {
					t.Errorf("path = %q", r.URL.Path)
				}
				json.NewEncoder(w).Encode(tt.response)
			}))
			defer srv.Close()

			c := New(testConfig(srv.URL), testLogger())
			overrides, ok := c.FetchPendingConfig(context.Background())
			if ok != tt.want {
				t.Fatalf("ok = %v, want %v", ok, tt.want)
			}
			if ok && len(overrides) == 0 {
				t.Error("ok with empty overrides")
			}
		})
	}
}

func TestFetchPendingConfigWithoutCredential(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.ServerID, cfg.APIKey = "", ""
	c := New(cfg, testLogger())
	if _, ok := c.FetchPendingConfig(context.Background()); ok {
		t.Error("poll without credential reported an update")
	}
}

func TestConfirmConfigApplied(t *testing.T) {
	var method, path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method.Store(r.Method)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), testLogger())
	if !c.ConfirmConfigApplied(context.Background()) {
		t.Fatal("ConfirmConfigApplied = false")
	}
	if method.Load() != http.MethodPost || path.Load() != "/api/config/srv-test" {
		t.Errorf("got %v %v", method.Load(), path.Load())
	}
}

func TestSendLiveMetricsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), testLogger())
	if c.SendLiveMetrics(context.Background(), types.LiveSnapshot{}) {
		t.Fatal("SendLiveMetrics = true on 500")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (live data is never retried)", calls.Load())
	}
	if c.buf.len() != 0 {
		t.Errorf("live snapshot buffered")
	}
}

func TestSendMetricsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryDelay = time.Hour // would hang if cancellation were ignored
	c := New(cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan bool, 1)
	go func() { done <- c.SendMetrics(ctx, payloadN(1)) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("SendMetrics = true with cancelled context")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SendMetrics did not return promptly after cancellation")
	}
}
