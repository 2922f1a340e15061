package live

import (
	"math"
	"time"
)

type counterSample struct {
	value uint64
	at    time.Time
}

// rateTracker derives per-second rates from monotonic counters. It keeps
// one baseline per counter key. Single-owner: only the live stream loop
// reads or writes it, so no locking.
type rateTracker struct {
	samples map[string]counterSample
}

func newRateTracker() *rateTracker {
	return &rateTracker{samples: make(map[string]counterSample)}
}

// perSecond records the current counter value and returns the per-second
// rate since the previous observation, rounded to one decimal. The first
// observation of a key, a non-advancing clock, and a counter that ran
// backwards all report zero.
func (t *rateTracker) perSecond(key string, now time.Time, cur uint64) float64 {
	prev, ok := t.samples[key]
	t.samples[key] = counterSample{value: cur, at: now}
	if !ok {
		return 0
	}
	elapsed := now.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	if cur < prev.value {
		// counter reset/overflow/restart
		return 0
	}
	return round1(float64(cur-prev.value) / elapsed)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
