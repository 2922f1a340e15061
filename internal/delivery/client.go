package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/serverdeck/serverdeck-agent/internal/config"
	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

const (
	// shortTimeoutCap bounds the timeout of best-effort endpoints (ping,
	// config poll/ack, live metrics) regardless of request_timeout.
	shortTimeoutCap = 10 * time.Second

	maxResponseBodyBytes = 64 * 1024
)

// Credential is the (server_id, api_key) pair identifying this agent.
type Credential struct {
	ServerID string
	APIKey   string
}

// Present reports whether both halves of the credential are set.
func (c Credential) Present() bool {
	return c.ServerID != "" && c.APIKey != ""
}

// token renders the bearer value sent on authenticated requests.
func (c Credential) token() string {
	return c.ServerID + ":" + c.APIKey
}

// attemptOutcome classifies a single metrics delivery attempt.
type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	outcomeRetryable
	outcomeTerminal
)

// Client talks to the dashboard. The hot-reloadable transport parameters
// (timeout, retry count/delay, credential, buffer capacity) are guarded by
// a mutex because the live stream loop sends through the same client that
// the primary cycle refreshes; the offline buffer needs no lock since only
// the primary cycle's call path touches it.
type Client struct {
	baseURL    string
	logger     *slog.Logger
	httpClient *http.Client

	mu            sync.RWMutex
	cred          Credential
	timeout       time.Duration
	retryAttempts int
	retryDelay    time.Duration

	buf *offlineBuffer
}

// New builds a Client from the given configuration. The base URL and TLS
// verification mode are fixed for the lifetime of the client; everything
// else can be updated later via Refresh.
func New(cfg *config.Config, logger *slog.Logger) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(cfg.DashboardURL, "/"),
		logger:        logger,
		cred:          Credential{ServerID: cfg.ServerID, APIKey: cfg.APIKey},
		timeout:       cfg.RequestTimeout,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		buf:           newOfflineBuffer(cfg.OfflineBufferMax),
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}, //nolint:gosec // user-configured
	}
	c.httpClient = &http.Client{Transport: &authRoundTripper{base: transport, client: c}}
	return c
}

// Refresh re-derives the hot-reloadable transport parameters from the
// now-current configuration. Called once per primary cycle.
func (c *Client) Refresh(cfg *config.Config) {
	c.mu.Lock()
	c.timeout = cfg.RequestTimeout
	c.retryAttempts = cfg.RetryAttempts
	c.retryDelay = cfg.RetryDelay
	c.mu.Unlock()
	c.buf.setCapacity(cfg.OfflineBufferMax)
}

// SetCredential installs the credential obtained from registration.
func (c *Client) SetCredential(cred Credential) {
	c.mu.Lock()
	c.cred = cred
	c.mu.Unlock()
}

func (c *Client) credential() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

func (c *Client) requestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeout
}

func (c *Client) shortTimeout() time.Duration {
	t := c.requestTimeout()
	if t > shortTimeoutCap {
		return shortTimeoutCap
	}
	return t
}

func (c *Client) retryParams() (attempts int, delay time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.retryAttempts, c.retryDelay
}

// Register performs the one-shot registration call. No retry here: the
// orchestrator owns the retry-with-backoff loop at the call site.
func (c *Client) Register(ctx context.Context, info types.SystemInfo) (Credential, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/api/register", info, c.requestTimeout())
	if err != nil {
		return Credential{}, fmt.Errorf("delivery: register: %w", err)
	}
	if status < 200 || status > 299 {
		return Credential{}, fmt.Errorf("delivery: register: unexpected status %d: %s", status, body)
	}
	var reg types.RegisterResponse
	if err := json.Unmarshal(body, &reg); err != nil {
		return Credential{}, fmt.Errorf("delivery: register: decode response: %w", err)
	}
	cred := Credential{ServerID: reg.ServerID, APIKey: reg.APIKey}
	if !cred.Present() {
		return Credential{}, errors.New("delivery: register: response missing credential")
	}
	return cred, nil
}

// SendMetrics delivers one primary-cycle payload with the full retry
// contract. Returns true on delivery; false means the payload ended up in
// the offline buffer (or was dropped with the buffer's oldest entry).
func (c *Client) SendMetrics(ctx context.Context, payload types.MetricsPayload) bool {
	attempts, delay := c.retryParams()
	for attempt := 1; attempt <= attempts; attempt++ {
		outcome, status := c.attemptMetrics(ctx, payload)
		switch outcome {
		case outcomeSuccess:
			c.logger.Info("delivery: metrics sent", "attempt", attempt)
			c.drainBuffer(ctx)
			return true
		case outcomeTerminal:
			c.logger.Error("delivery: authentication rejected — check server_id and api_key in config")
			return false
		case outcomeRetryable:
			c.logger.Warn("delivery: metrics attempt failed",
				"attempt", attempt, "attempts", attempts, "status", status)
		}
		if attempt < attempts && !sleepCtx(ctx, delay) {
			break
		}
	}

	if c.buf.push(payload) {
		c.logger.Warn("delivery: offline buffer full, evicted oldest payload",
			"buffer_cap", c.buf.capacity())
	}
	c.logger.Warn("delivery: all attempts failed, payload buffered", "buffered", c.buf.len())
	return false
}

// attemptMetrics performs one POST /api/metrics and classifies the result.
// Only a 401 is terminal; every other failure is retryable (the dashboard
// treats transient 5xx and unknown 4xx alike).
func (c *Client) attemptMetrics(ctx context.Context, payload types.MetricsPayload) (attemptOutcome, int) {
	status, _, err := c.do(ctx, http.MethodPost, "/api/metrics", payload, c.requestTimeout())
	if err != nil {
		return outcomeRetryable, 0
	}
	switch {
	case status == http.StatusOK:
		return outcomeSuccess, status
	case status == http.StatusUnauthorized:
		return outcomeTerminal, status
	default:
		return outcomeRetryable, status
	}
}

// drainBuffer sends buffered payloads oldest-first, one attempt each,
// stopping at the first failure. Remaining entries stay buffered.
func (c *Client) drainBuffer(ctx context.Context) {
	if c.buf.len() == 0 {
		return
	}
	c.logger.Info("delivery: flushing buffered payloads", "count", c.buf.len())

	sent := 0
	for {
		p, ok := c.buf.peek()
		if !ok {
			break
		}
		if outcome, _ := c.attemptMetrics(ctx, p); outcome != outcomeSuccess {
			break
		}
		c.buf.pop()
		sent++
	}
	if sent > 0 {
		c.logger.Info("delivery: flushed buffered payloads", "sent", sent, "remaining", c.buf.len())
	}
}

// Ping sends the liveness heartbeat. Best effort: no retry, no buffering.
func (c *Client) Ping(ctx context.Context) bool {
	status, _, err := c.do(ctx, http.MethodPost, "/api/ping", nil, c.shortTimeout())
	return err == nil && status == http.StatusOK
}

// FetchPendingConfig polls for a dashboard-pushed override document. It
// returns overrides only when the server explicitly flags one pending;
// any transport or decode error is treated as "no update".
func (c *Client) FetchPendingConfig(ctx context.Context) (map[string]any, bool) {
	cred := c.credential()
	if !cred.Present() {
		return nil, false
	}
	status, body, err := c.do(ctx, http.MethodGet, "/api/config/"+cred.ServerID, nil, c.shortTimeout())
	if err != nil || status != http.StatusOK {
		return nil, false
	}
	var pending types.PendingConfigResponse
	if err := json.Unmarshal(body, &pending); err != nil {
		return nil, false
	}
	if !pending.HasUpdate || len(pending.Config) == 0 {
		return nil, false
	}
	return pending.Config, true
}

// ConfirmConfigApplied acknowledges receipt of a pending override set.
// Sent regardless of whether any key actually changed.
func (c *Client) ConfirmConfigApplied(ctx context.Context) bool {
	cred := c.credential()
	if !cred.Present() {
		return false
	}
	status, _, err := c.do(ctx, http.MethodPost, "/api/config/"+cred.ServerID, nil, c.shortTimeout())
	return err == nil && status == http.StatusOK
}

// SendLiveMetrics pushes one live snapshot. Live data is perishable, so
// there is no retry and no buffering — a missed tick beats stale data.
func (c *Client) SendLiveMetrics(ctx context.Context, snap types.LiveSnapshot) bool {
	status, _, err := c.do(ctx, http.MethodPost, "/api/metrics/live", snap, c.shortTimeout())
	return err == nil && status == http.StatusOK
}

// do executes one JSON request and returns the status code and the
// (length-capped) response body.
func (c *Client) do(ctx context.Context, method, path string, body any, timeout time.Duration) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
	}

	// Shutdown is cooperative: cancellation is honored between attempts and
	// during retry sleeps, never by aborting a request already on the wire.
	// The per-request timeout is the only thing that preempts an in-flight
	// call.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// authRoundTripper injects the bearer credential into every outgoing
// request. Registration runs before a credential exists and is skipped.
type authRoundTripper struct {
	base   http.RoundTripper
	client *Client
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if cred := t.client.credential(); cred.Present() {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+cred.token())
	}
	return t.base.RoundTrip(req)
}

// sleepCtx waits for d, returning false early if ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
