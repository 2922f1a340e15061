package live

import (
	"testing"
	"time"
)

func TestRateTrackerFirstObservationIsZero(t *testing.T) {
	rt := newRateTracker()
	if got := rt.perSecond("k", time.Now(), 1000); got != 0 {
		t.Errorf("first observation = %v, want 0", got)
	}
}

func TestRateTrackerComputesPerSecond(t *testing.T) {
	rt := newRateTracker()
	base := time.Now()

	rt.perSecond("k", base, 1000)
	if got := rt.perSecond("k", base.Add(2*time.Second), 1500); got != 250 {
		t.Errorf("rate = %v, want 250", got)
	}
	// Baseline advances with every observation.
	if got := rt.perSecond("k", base.Add(3*time.Second), 1600); got != 100 {
		t.Errorf("rate = %v, want 100", got)
	}
}

func TestRateTrackerRounding(t *testing.T) {
	rt := newRateTracker()
	base := time.Now()

	rt.perSecond("k", base, 0)
	if got := rt.perSecond("k", base.Add(3*time.Second), 100); got != 33.3 {
		t.Errorf("rate = %v, want 33.3", got)
	}
}

func TestRateTrackerCounterReset(t *testing.T) {
	rt := newRateTracker()
	base := time.Now()

	rt.perSecond("k", base, 5000)
	if got := rt.perSecond("k", base.Add(time.Second), 100); got != 0 {
		t.Errorf("rate after counter reset = %v, want 0", got)
	}
	// The reset value becomes the new baseline.
	if got := rt.perSecond("k", base.Add(2*time.Second), 300); got != 200 {
		t.Errorf("rate after re-baseline = %v, want 200", got)
	}
}

func TestRateTrackerIndependentKeys(t *testing.T) {
	rt := newRateTracker()
	base := time.Now()

	rt.perSecond("a", base, 100)
	rt.perSecond("b", base, 9000)
	if got := rt.perSecond("a", base.Add(time.Second), 200); got != 100 {
		t.Errorf("key a rate = %v, want 100", got)
	}
	if got := rt.perSecond("b", base.Add(time.Second), 9050); got != 50 {
		t.Errorf("key b rate = %v, want 50", got)
	}
}
