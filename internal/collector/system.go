package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/serverdeck/serverdeck-agent/internal/config"
	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

// cpuSampleWindow is the blocking measurement window for the per-cycle
// CPU percentage. One second matches the dashboard's expectations.
const cpuSampleWindow = time.Second

// Snapshot gathers one system metrics snapshot honoring the collection
// toggles in cfg. Failing sub-collectors leave their section zeroed.
func Snapshot(ctx context.Context, cfg *config.Config) types.SystemMetrics {
	var m types.SystemMetrics

	if pct, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.MemoryTotal = vm.Total
		m.MemoryUsed = vm.Used
		m.MemoryFree = vm.Available
		m.MemoryPercent = vm.UsedPercent
	}

	if cfg.CollectDisks {
		m.Disks = diskUsage(ctx)
	}

	if cfg.CollectNetwork {
		if counters, err := psnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
			m.Network = &types.NetworkCounters{
				BytesSent:   counters[0].BytesSent,
				BytesRecv:   counters[0].BytesRecv,
				PacketsSent: counters[0].PacketsSent,
				PacketsRecv: counters[0].PacketsRecv,
			}
		}
	}

	if boot, err := host.BootTimeWithContext(ctx); err == nil {
		m.BootTime = time.Unix(int64(boot), 0).UTC()
		if now := uint64(time.Now().Unix()); now > boot {
			m.UptimeSeconds = now - boot
		}
	}

	return m
}

func diskUsage(ctx context.Context) []types.DiskUsage {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil
	}
	disks := make([]types.DiskUsage, 0, len(parts))
	for _, part := range parts {
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			// Unreadable mountpoint (permissions, stale mount). Skip it.
			continue
		}
		disks = append(disks, types.DiskUsage{
			Device:     part.Device,
			Mountpoint: part.Mountpoint,
			Total:      usage.Total,
			Used:       usage.Used,
			Free:       usage.Free,
			Percent:    usage.UsedPercent,
		})
	}
	return disks
}
