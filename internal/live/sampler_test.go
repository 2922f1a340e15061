package live

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestSamplerFirstSampleHasZeroRates(t *testing.T) {
	s := NewSampler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	snap := s.Sample(context.Background())

	if snap.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	zero := func(name string, v float64) {
		if v != 0 {
			t.Errorf("%s = %v on first sample, want 0", name, v)
		}
	}
	zero("BytesSentPerSec", snap.NetworkRate.BytesSentPerSec)
	zero("BytesRecvPerSec", snap.NetworkRate.BytesRecvPerSec)
	zero("ReadBytesPerSec", snap.DiskIORate.ReadBytesPerSec)
	zero("WriteBytesPerSec", snap.DiskIORate.WriteBytesPerSec)
}
