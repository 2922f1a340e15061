package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/serverdeck/serverdeck-agent/internal/collector"
	"github.com/serverdeck/serverdeck-agent/internal/config"
	"github.com/serverdeck/serverdeck-agent/internal/delivery"
	"github.com/serverdeck/serverdeck-agent/internal/live"
	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

const (
	// defaultRegistrationBackoff is the wait between failed registration
	// attempts. Registration failures are expected at first boot when the
	// dashboard is not reachable yet, so the backoff is deliberately long
	// and flat.
	defaultRegistrationBackoff = 60 * time.Second

	// joinGrace is added to the configured request timeout when bounding
	// the shutdown join. The slowest thing a draining loop can be doing is
	// one in-flight request, which runs to its own timeout.
	joinGrace = 5 * time.Second

	// liveSettleDelay sits between priming the CPU counters and the first
	// live sample, so that sample covers a real measurement window.
	liveSettleDelay = 500 * time.Millisecond
)

// Agent ties the config store, collectors, live sampler, and delivery
// client into the two-loop runtime.
type Agent struct {
	path   string
	logger *slog.Logger
	client *delivery.Client

	mu  sync.RWMutex
	cfg *config.Config

	state  atomic.Int32
	cycles atomic.Int64

	// Overridable in tests.
	regBackoff  time.Duration
	joinTimeout time.Duration
}

// New builds an Agent around an already loaded configuration. path is
// where configuration changes (credential, remote overrides) persist.
func New(cfg *config.Config, path string, logger *slog.Logger) *Agent {
	a := &Agent{
		path:        path,
		logger:      logger,
		client:      delivery.New(cfg, logger),
		cfg:         cfg,
		regBackoff:  defaultRegistrationBackoff,
		joinTimeout: cfg.RequestTimeout + joinGrace,
	}
	a.state.Store(int32(StateAwaitingCredential))
	return a
}

// State returns the current lifecycle phase.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Cycles returns the number of primary cycles completed so far.
func (a *Agent) Cycles() int64 {
	return a.cycles.Load()
}

func (a *Agent) currentConfig() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

func (a *Agent) setConfig(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

// Run executes the agent lifecycle until ctx is cancelled: register if
// needed, then run the primary cycle loop and (if enabled) the live
// stream loop, then drain both with a bounded join.
func (a *Agent) Run(ctx context.Context) error {
	a.state.Store(int32(StateAwaitingCredential))

	if !a.currentConfig().HasCredential() {
		if !a.register(ctx) {
			a.state.Store(int32(StateStopped))
			a.logger.Info("agent: stopped before registration completed")
			return ctx.Err()
		}
	}

	// live_enabled is read once; toggling it needs a restart.
	liveEnabled := a.currentConfig().LiveEnabled

	a.state.Store(int32(StateRunning))
	a.logger.Info("agent: running",
		"collection_interval", a.currentConfig().CollectionInterval,
		"live_stream", liveEnabled)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		a.primaryLoop(gctx)
		return nil
	})
	if liveEnabled {
		g.Go(func() error {
			a.liveLoop(gctx)
			return nil
		})
	}

	<-ctx.Done()
	a.state.Store(int32(StateShuttingDown))
	a.logger.Info("agent: shutting down")

	done := make(chan struct{})
	go func() {
		_ = g.Wait() // loops never return errors
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.joinTimeout):
		a.logger.Warn("agent: loops did not drain in time", "timeout", a.joinTimeout)
	}

	a.state.Store(int32(StateStopped))
	a.logger.Info("agent: stopped", "cycles", a.cycles.Load())
	return ctx.Err()
}

// register loops until the dashboard hands out a credential or ctx is
// cancelled. Returns false only on cancellation.
func (a *Agent) register(ctx context.Context) bool {
	cfg := a.currentConfig()
	info := collector.SystemInfo(ctx, cfg)
	a.logger.Info("agent: registering with dashboard",
		"dashboard", cfg.DashboardURL, "hostname", info.Hostname)

	for {
		cred, err := a.client.Register(ctx, info)
		if err == nil {
			a.adoptCredential(cred)
			a.logger.Info("agent: registered", "server_id", cred.ServerID)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		a.logger.Warn("agent: registration failed, will retry",
			"error", err, "backoff", a.regBackoff)
		if !wait(ctx, a.regBackoff) {
			return false
		}
	}
}

// adoptCredential persists the new credential and installs it on the
// delivery client. A persistence failure is logged but does not block
// startup; the agent would simply re-register after a restart.
func (a *Agent) adoptCredential(cred delivery.Credential) {
	cfg := a.currentConfig()
	next := *cfg
	next.ServerID = cred.ServerID
	next.APIKey = cred.APIKey
	if err := config.Save(a.path, &next); err != nil {
		a.logger.Error("agent: could not persist credential", "error", err)
	}
	a.setConfig(&next)
	a.client.SetCredential(cred)
}

// primaryLoop runs the collect-and-deliver cycle with the optional
// mid-interval heartbeat until cancellation.
func (a *Agent) primaryLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		a.runCycle(ctx)

		interval := a.currentConfig().CollectionInterval
		if !wait(ctx, interval/2) {
			return
		}
		if cfg := a.currentConfig(); cfg.PingEnabled {
			if a.client.Ping(ctx) {
				a.logger.Debug("agent: ping ok")
			} else if ctx.Err() == nil {
				a.logger.Warn("agent: ping failed")
			}
		}
		if !wait(ctx, interval-interval/2) {
			return
		}
	}
}

// runCycle is one full primary cycle: reload config, reconcile remote
// overrides, collect, deliver.
func (a *Agent) runCycle(ctx context.Context) {
	cycle := a.cycles.Add(1)

	cfg := a.reloadConfig()
	cfg = a.reconcileRemote(ctx, cfg)
	a.client.Refresh(cfg)

	metrics := collector.Snapshot(ctx, cfg)
	if ctx.Err() != nil {
		return
	}

	payload := types.MetricsPayload{Metrics: metrics}
	if cfg.CollectProcesses {
		payload.Processes = collector.TopProcesses(ctx, cfg.TopProcesses)
	}
	payload.Services = collector.Services(ctx, cfg.MonitoredServices, cfg.AutoDiscoverServices)

	a.logger.Info("agent: cycle collected",
		"cycle", cycle,
		"cpu_percent", metrics.CPUPercent,
		"memory_percent", metrics.MemoryPercent,
		"disks", len(metrics.Disks),
		"processes", len(payload.Processes),
		"services", len(payload.Services))

	a.client.SendMetrics(ctx, payload)
}

// reloadConfig re-reads the config file at the top of a cycle. Fail
// soft: an unreadable or unparseable file keeps the previous in-memory
// configuration.
func (a *Agent) reloadConfig() *config.Config {
	prev := a.currentConfig()
	next, err := config.Load(a.path)
	if err != nil {
		a.logger.Warn("agent: config reload failed, keeping previous", "error", err)
		return prev
	}
	if changed := config.ChangedKeys(prev, next); len(changed) > 0 {
		a.logger.Info("agent: config changed", "keys", changed)
	}
	a.setConfig(next)
	return next
}

// reconcileRemote polls the dashboard for a pending override set, applies
// it, persists the merged document, and acknowledges. The acknowledgement
// goes out even when every override already matched, so the dashboard can
// clear its pending flag.
func (a *Agent) reconcileRemote(ctx context.Context, cfg *config.Config) *config.Config {
	overrides, ok := a.client.FetchPendingConfig(ctx)
	if !ok {
		return cfg
	}

	next := *cfg
	applied, err := next.ApplyRemote(overrides)
	if err != nil {
		a.logger.Warn("agent: could not apply remote config", "error", err)
		return cfg
	}
	if len(applied) > 0 {
		a.logger.Info("agent: remote config applied", "changes", applied)
		if err := config.Save(a.path, &next); err != nil {
			a.logger.Warn("agent: could not persist remote config", "error", err)
		}
		a.setConfig(&next)
		cfg = &next
	} else {
		a.logger.Debug("agent: remote config matched current settings")
	}

	if !a.client.ConfirmConfigApplied(ctx) && ctx.Err() == nil {
		a.logger.Warn("agent: config acknowledgement failed")
	}
	return cfg
}

// liveLoop pushes lightweight snapshots at live_interval until
// cancellation. Each tick samples and sends first, so the initial
// snapshot goes out right after the settle delay rather than one full
// interval in. Failed sends are dropped, never retried.
func (a *Agent) liveLoop(ctx context.Context) {
	a.logger.Info("agent: live stream started",
		"interval", a.currentConfig().LiveInterval)

	sampler := live.NewSampler(a.logger)
	sampler.Prime(ctx)
	// Let the primed CPU counters accumulate a real measurement window.
	if !wait(ctx, liveSettleDelay) {
		return
	}

	for {
		snap := sampler.Sample(ctx)
		if !a.client.SendLiveMetrics(ctx, snap) && ctx.Err() == nil {
			a.logger.Debug("agent: live snapshot dropped")
		}
		if !wait(ctx, a.currentConfig().LiveInterval) {
			return
		}
	}
}

// wait blocks for d or until ctx is cancelled, whichever comes first.
// Returns false on cancellation.
func wait(ctx context.Context, d time.Duration) bool {
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
