// Package delivery owns every outbound contract to the dashboard: the
// one-shot registration call, the retried-and-buffered metrics push, the
// fire-and-forget heartbeat and live-metric pushes, and the remote-config
// poll/acknowledge pair. All endpoints speak JSON over HTTP relative to a
// single base URL.
//
// Reliability contracts differ per endpoint and are deliberate:
//
//   - Register: single attempt; the orchestrator retries with backoff.
//   - SendMetrics: up to retry_attempts attempts with retry_delay between
//     them. A 401 is terminal (retrying a bad credential is useless). On
//     success the offline buffer is drained oldest-first, stopping at the
//     first failure. When every attempt fails the payload enters the
//     buffer, evicting the oldest entry if full.
//   - Ping, SendLiveMetrics, FetchPendingConfig, ConfirmConfigApplied:
//     single best-effort attempt with a capped short timeout; failures are
//     logged or swallowed, never escalated.
//
// Authentication is a bearer token composed as "server_id:api_key",
// injected by the shared authRoundTripper on every request once a
// credential is present.
package delivery
