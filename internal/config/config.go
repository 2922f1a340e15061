package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when keys are absent from the config file.
const (
	DefaultDashboardURL       = "http://localhost:3000"
	DefaultCollectionInterval = 10 * time.Minute
	DefaultLiveInterval       = 10 * time.Second
	DefaultRequestTimeout     = 30 * time.Second
	DefaultRetryAttempts      = 3
	DefaultRetryDelay         = 10 * time.Second
	DefaultTopProcesses       = 15
	DefaultOfflineBufferMax   = 100
)

// Config is the full agent settings document. Fields map 1:1 to the
// snake_case keys in config.yaml.
type Config struct {
	// DashboardURL is the base URL of the dashboard server.
	DashboardURL string `yaml:"dashboard_url"`

	// ServerID and APIKey form the agent credential. Both are empty until
	// registration succeeds, then persisted and never regenerated.
	ServerID string `yaml:"server_id"`
	APIKey   string `yaml:"api_key"`

	// CollectionInterval controls the primary collect-and-deliver cycle.
	CollectionInterval time.Duration `yaml:"collection_interval"`

	// PingEnabled toggles the mid-cycle heartbeat.
	PingEnabled bool `yaml:"ping_enabled"`

	// Optional identity metadata included in the registration request.
	DisplayName string   `yaml:"display_name"`
	GroupName   string   `yaml:"group_name"`
	Tags        []string `yaml:"tags"`

	// Collector toggles.
	CollectProcesses     bool     `yaml:"collect_processes"`
	TopProcesses         int      `yaml:"top_processes"`
	CollectDisks         bool     `yaml:"collect_disks"`
	CollectNetwork       bool     `yaml:"collect_network"`
	MonitoredServices    []string `yaml:"monitored_services"`
	AutoDiscoverServices bool     `yaml:"auto_discover_services"`

	// LiveEnabled starts the live performance stream. Read once at startup;
	// toggling it requires an agent restart.
	LiveEnabled  bool          `yaml:"live_enabled"`
	LiveInterval time.Duration `yaml:"live_interval"`

	// Transport settings for the delivery client.
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	VerifySSL        bool          `yaml:"verify_ssl"`
	OfflineBufferMax int           `yaml:"offline_buffer_max"`

	// Logging.
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Extra preserves keys this agent version does not recognize so they
	// survive a Load/Save round trip.
	Extra map[string]any `yaml:",inline"`
}

// knownKeys is the defaulted key set. A document missing any of these is
// completed from defaults and written back on load.
var knownKeys = []string{
	"dashboard_url", "server_id", "api_key",
	"collection_interval", "ping_enabled",
	"display_name", "group_name", "tags",
	"collect_processes", "top_processes", "collect_disks", "collect_network",
	"monitored_services", "auto_discover_services",
	"live_enabled", "live_interval",
	"request_timeout", "retry_attempts", "retry_delay", "verify_ssl",
	"offline_buffer_max", "log_level", "log_format",
}

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		DashboardURL:         DefaultDashboardURL,
		CollectionInterval:   DefaultCollectionInterval,
		PingEnabled:          true,
		GroupName:            "Default",
		CollectProcesses:     true,
		TopProcesses:         DefaultTopProcesses,
		CollectDisks:         true,
		CollectNetwork:       true,
		AutoDiscoverServices: true,
		LiveInterval:         DefaultLiveInterval,
		RequestTimeout:       DefaultRequestTimeout,
		RetryAttempts:        DefaultRetryAttempts,
		RetryDelay:           DefaultRetryDelay,
		VerifySSL:            true,
		OfflineBufferMax:     DefaultOfflineBufferMax,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// HasCredential reports whether a registration credential is present.
func (c *Config) HasCredential() bool {
	return c.ServerID != "" && c.APIKey != ""
}

// Load reads the persisted document at path. A missing file is created
// from defaults; a partial file is completed from defaults and written
// back. Parse errors are returned so the caller can keep its previous
// in-memory configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if werr := Save(path, cfg); werr != nil {
			return nil, fmt.Errorf("config: write defaults: %w", werr)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.normalize()

	if missingKnownKeys(data) {
		// Persist the completed document. A write failure here is not
		// fatal: the in-memory config is already complete.
		if werr := Save(path, cfg); werr != nil {
			slog.Warn("config: could not persist completed document", "path", path, "err", werr)
		}
	}
	return cfg, nil
}

// Save overwrites the document at path atomically: the new content is
// written to a temp file in the same directory and renamed into place, so
// a concurrent reader never observes a partial write. Mode 0600 because
// the document carries the API key.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// ChangedKeys compares the fixed watch-list of hot-reloadable keys between
// two documents and returns the names that differ. The result is used for
// logging only; there are no rollback semantics.
func ChangedKeys(prev, next *Config) []string {
	var changed []string
	add := func(key string, differs bool) {
		if differs {
			changed = append(changed, key)
		}
	}
	add("collection_interval", prev.CollectionInterval != next.CollectionInterval)
	add("ping_enabled", prev.PingEnabled != next.PingEnabled)
	add("collect_processes", prev.CollectProcesses != next.CollectProcesses)
	add("top_processes", prev.TopProcesses != next.TopProcesses)
	add("collect_disks", prev.CollectDisks != next.CollectDisks)
	add("collect_network", prev.CollectNetwork != next.CollectNetwork)
	add("monitored_services", !slices.Equal(prev.MonitoredServices, next.MonitoredServices))
	add("auto_discover_services", prev.AutoDiscoverServices != next.AutoDiscoverServices)
	add("live_enabled", prev.LiveEnabled != next.LiveEnabled)
	add("live_interval", prev.LiveInterval != next.LiveInterval)
	add("request_timeout", prev.RequestTimeout != next.RequestTimeout)
	add("retry_attempts", prev.RetryAttempts != next.RetryAttempts)
	add("retry_delay", prev.RetryDelay != next.RetryDelay)
	add("log_level", prev.LogLevel != next.LogLevel)
	return changed
}

// ApplyRemote merges a dashboard-pushed override set into the document.
// Keys that are absent or differ from the current value are adopted; each
// adoption is reported as "key=value", with a "(new)" suffix for keys the
// document did not previously contain. An empty applied list means the
// document was not touched and does not need persisting.
func (c *Config) ApplyRemote(overrides map[string]any) ([]string, error) {
	if len(overrides) == 0 {
		return nil, nil
	}

	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("config: encode current document: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: decode current document: %w", err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var applied []string
	for _, k := range keys {
		v := overrides[k]
		cur, exists := doc[k]
		switch {
		case !exists:
			doc[k] = v
			applied = append(applied, fmt.Sprintf("%s=%v (new)", k, v))
		case compareValue(cur) != compareValue(v):
			doc[k] = v
			applied = append(applied, fmt.Sprintf("%s=%v", k, v))
		}
	}
	if len(applied) == 0 {
		return nil, nil
	}

	merged, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("config: encode merged document: %w", err)
	}
	next := Default()
	if err := yaml.Unmarshal(merged, next); err != nil {
		return nil, fmt.Errorf("config: apply overrides: %w", err)
	}
	next.normalize()
	*c = *next
	return applied, nil
}

// compareValue renders a value for override comparison. Duration strings
// are normalized so "10m" and "10m0s" compare equal.
func compareValue(v any) string {
	if s, ok := v.(string); ok {
		if d, err := time.ParseDuration(s); err == nil {
			return d.String()
		}
	}
	return fmt.Sprintf("%v", v)
}

// normalize clamps nonsensical values back to defaults rather than
// rejecting the document; the config store fails soft.
func (c *Config) normalize() {
	if c.CollectionInterval <= 0 {
		c.CollectionInterval = DefaultCollectionInterval
	}
	if c.LiveInterval <= 0 {
		c.LiveInterval = DefaultLiveInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.TopProcesses < 0 {
		c.TopProcesses = DefaultTopProcesses
	}
	if c.OfflineBufferMax < 1 {
		c.OfflineBufferMax = DefaultOfflineBufferMax
	}
}

// missingKnownKeys reports whether the raw document lacks any defaulted key.
func missingKnownKeys(data []byte) bool {
	var doc map[string]any
	if yaml.Unmarshal(data, &doc) != nil {
		return false
	}
	for _, k := range knownKeys {
		if _, ok := doc[k]; !ok {
			return true
		}
	}
	return false
}
