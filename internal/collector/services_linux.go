//go:build linux

package collector

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

const (
	serviceQueryTimeout    = 10 * time.Second
	serviceDiscoverTimeout = 30 * time.Second
)

// Services reports the status of the named systemd services. With an
// empty name list and autoDiscover set, every service unit on the system
// is enumerated instead.
func Services(ctx context.Context, names []string, autoDiscover bool) []types.ServiceStatus {
	if len(names) == 0 {
		if autoDiscover {
			return discoverServices(ctx)
		}
		return nil
	}
	out := make([]types.ServiceStatus, 0, len(names))
	for _, name := range names {
		out = append(out, queryService(ctx, name))
	}
	return out
}

// discoverServices enumerates all systemd service units.
func discoverServices(ctx context.Context) []types.ServiceStatus {
	cctx, cancel := context.WithTimeout(ctx, serviceDiscoverTimeout)
	defer cancel()

	raw, err := exec.CommandContext(cctx, "systemctl",
		"list-units", "--type=service", "--all", "--no-pager", "--no-legend").Output()
	if err != nil {
		return nil
	}

	var services []types.ServiceStatus
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		// Failed units are prefixed with a bullet marker.
		if len(fields) > 0 && fields[0] == "●" {
			fields = fields[1:]
		}
		if len(fields) < 4 {
			continue
		}
		unit := strings.TrimSuffix(fields[0], ".service")
		active, sub := fields[2], fields[3]

		status := "unknown"
		switch {
		case active == "active" && sub == "running":
			status = "running"
		case active == "active" && sub == "exited":
			status = "exited"
		case active == "inactive":
			status = "stopped"
		case active == "failed":
			status = "failed"
		}

		desc := unit
		if len(fields) > 4 {
			desc = strings.Join(fields[4:], " ")
		}
		services = append(services, types.ServiceStatus{
			ServiceName: unit,
			DisplayName: desc,
			Status:      status,
			StartType:   "unknown",
		})
	}
	return services
}

// queryService asks systemd about a single named service.
func queryService(ctx context.Context, name string) types.ServiceStatus {
	svc := types.ServiceStatus{
		ServiceName: name,
		DisplayName: name,
		Status:      "unknown",
		StartType:   "unknown",
	}

	cctx, cancel := context.WithTimeout(ctx, serviceQueryTimeout)
	defer cancel()

	// is-active exits non-zero for inactive units but still prints the
	// state, so parse stdout before consulting the error.
	raw, err := exec.CommandContext(cctx, "systemctl", "is-active", name).Output()
	switch state := strings.TrimSpace(string(raw)); state {
	case "active":
		svc.Status = "running"
	case "inactive":
		svc.Status = "stopped"
	case "":
		if err != nil {
			svc.Status = "error"
			return svc
		}
	default:
		svc.Status = state
	}

	raw, err = exec.CommandContext(cctx, "systemctl", "show", name,
		"--property=Description,UnitFileState,MainPID").Output()
	if err != nil {
		return svc
	}
	for _, line := range strings.Split(string(raw), "\n") {
		switch {
		case strings.HasPrefix(line, "Description="):
			if v := strings.TrimPrefix(line, "Description="); v != "" {
				svc.DisplayName = v
			}
		case strings.HasPrefix(line, "UnitFileState="):
			if v := strings.TrimPrefix(line, "UnitFileState="); v != "" {
				svc.StartType = v
			}
		case strings.HasPrefix(line, "MainPID="):
			if pid, perr := strconv.Atoi(strings.TrimPrefix(line, "MainPID=")); perr == nil {
				svc.PID = pid
			}
		}
	}
	return svc
}
