// Package config loads, persists and reconciles the agent configuration
// file (config.yaml).
//
// The document is a flat set of snake_case keys with a default for every
// key. Load(path) creates the file from defaults when it is missing and
// silently completes a partial document, writing the completed version
// back. Unknown keys round-trip untouched through Load/Save via an inline
// map, so a newer dashboard can push settings this agent version does not
// know about without losing them.
//
// ChangedKeys(prev, next) diffs the fixed watch-list of hot-reloadable
// keys between two documents; the result is for logging only.
// (*Config).ApplyRemote merges a dashboard-pushed override set and reports
// each adopted key as "key=value", or "key=value (new)" for keys the
// document did not previously contain.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and
// calls onChange with the newly parsed Config. It handles the
// rename→create pattern used by atomic-save editors by re-adding the
// watch after the event.
package config
