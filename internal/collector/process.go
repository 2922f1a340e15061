package collector

import (
	"context"
	"math"
	"sort"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

// TopProcesses returns the n processes using the most CPU, sorted
// descending. Processes that vanish mid-enumeration are skipped.
func TopProcesses(ctx context.Context, n int) []types.ProcessInfo {
	if n <= 0 {
		return nil
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil
	}

	out := make([]types.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if name == "" {
			name = "unknown"
		}

		cpuPct, _ := p.CPUPercentWithContext(ctx)
		memPct, _ := p.MemoryPercentWithContext(ctx)

		var rssMB float64
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			rssMB = math.Round(float64(mi.RSS)/1024/1024*10) / 10
		}

		status := "unknown"
		if st, err := p.StatusWithContext(ctx); err == nil && len(st) > 0 && st[0] != "" {
			status = st[0]
		}

		username, err := p.UsernameWithContext(ctx)
		if err != nil || username == "" {
			username = "SYSTEM"
		}

		out = append(out, types.ProcessInfo{
			PID:           p.Pid,
			Name:          name,
			CPUPercent:    cpuPct,
			MemoryPercent: float64(memPct),
			MemoryMB:      rssMB,
			Status:        status,
			Username:      username,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
