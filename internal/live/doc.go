// Package live produces the lightweight, high-frequency performance
// snapshots for the live stream: per-core CPU, memory and swap, network
// and disk I/O rates, and process/thread counts.
//
// Rate fields are derived from monotonically increasing OS counters via a
// rateTracker that keeps the previous sample as its baseline. The tracker
// is owned by a single Sampler whose lifecycle matches the live stream
// loop, and is only ever touched from that loop, so it carries no lock.
// The first sample after a (re)start always reports zero rates; a counter
// running backwards (reset, overflow) also yields zero rather than a
// negative rate.
package live
