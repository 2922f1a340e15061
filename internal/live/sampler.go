package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

// Sampler builds live performance snapshots. One Sampler belongs to one
// live stream loop; it is not safe for concurrent use.
type Sampler struct {
	logger *slog.Logger
	rates  *rateTracker
}

func NewSampler(logger *slog.Logger) *Sampler {
	return &Sampler{
		logger: logger,
		rates:  newRateTracker(),
	}
}

// Prime takes a throwaway reading of the CPU usage counters so the first
// real Sample reports utilization since Prime rather than since boot.
func (s *Sampler) Prime(ctx context.Context) {
	if _, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		s.logger.Debug("live: cpu prime failed", "error", err)
	}
	_, _ = cpu.PercentWithContext(ctx, 0, true)
}

// Sample reads the host and returns one snapshot. Individual reads that
// fail leave their fields zero; Sample itself never fails.
func (s *Sampler) Sample(ctx context.Context) types.LiveSnapshot {
	now := time.Now().UTC()
	snap := types.LiveSnapshot{Timestamp: now}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = round1(pct[0])
	}
	if perCore, err := cpu.PercentWithContext(ctx, 0, true); err == nil {
		cores := make([]float64, len(perCore))
		for i, v := range perCore {
			cores[i] = round1(v)
		}
		snap.CPUPerCore = cores
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		snap.CPUFreqMHz = infos[0].Mhz
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemoryPercent = round1(vm.UsedPercent)
		snap.MemoryUsed = vm.Used
		snap.MemoryAvailable = vm.Available
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		snap.SwapPercent = round1(sw.UsedPercent)
		snap.SwapUsed = sw.Used
	}

	snap.NetworkRate = s.networkRate(ctx, now)
	snap.DiskIORate = s.diskRate(ctx, now)

	if pids, err := process.PidsWithContext(ctx); err == nil {
		snap.ProcessCount = len(pids)
		snap.ThreadCount = threadCount(ctx, pids)
	}
	return snap
}

func (s *Sampler) networkRate(ctx context.Context, now time.Time) types.NetworkRate {
	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil || len(counters) == 0 {
		return types.NetworkRate{}
	}
	c := counters[0]
	return types.NetworkRate{
		BytesSentPerSec:   s.rates.perSecond("net_bytes_sent", now, c.BytesSent),
		BytesRecvPerSec:   s.rates.perSecond("net_bytes_recv", now, c.BytesRecv),
		PacketsSentPerSec: s.rates.perSecond("net_packets_sent", now, c.PacketsSent),
		PacketsRecvPerSec: s.rates.perSecond("net_packets_recv", now, c.PacketsRecv),
	}
}

func (s *Sampler) diskRate(ctx context.Context, now time.Time) types.DiskIORate {
	perDisk, err := disk.IOCountersWithContext(ctx)
	if err != nil || len(perDisk) == 0 {
		return types.DiskIORate{}
	}
	var readBytes, writeBytes, readOps, writeOps uint64
	for _, d := range perDisk {
		readBytes += d.ReadBytes
		writeBytes += d.WriteBytes
		readOps += d.ReadCount
		writeOps += d.WriteCount
	}
	return types.DiskIORate{
		ReadBytesPerSec:  s.rates.perSecond("disk_read_bytes", now, readBytes),
		WriteBytesPerSec: s.rates.perSecond("disk_write_bytes", now, writeBytes),
		ReadOpsPerSec:    s.rates.perSecond("disk_read_count", now, readOps),
		WriteOpsPerSec:   s.rates.perSecond("disk_write_count", now, writeOps),
	}
}

// threadCount sums thread counts across all processes, tolerating the
// ones that exit mid-walk.
func threadCount(ctx context.Context, pids []int32) int {
	var total int
	for _, pid := range pids {
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}
		if n, err := p.NumThreadsWithContext(ctx); err == nil {
			total += int(n)
		}
	}
	return total
}
