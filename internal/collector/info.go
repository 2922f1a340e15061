package collector

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/serverdeck/serverdeck-agent/internal/config"
	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

// SystemInfo collects the static host description sent at registration,
// including the optional identity metadata from the configuration.
func SystemInfo(ctx context.Context, cfg *config.Config) types.SystemInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return types.SystemInfo{
		Hostname:    hostname,
		IPAddress:   primaryIP(),
		OSInfo:      osDescription(ctx),
		DisplayName: cfg.DisplayName,
		GroupName:   cfg.GroupName,
		Tags:        cfg.Tags,
	}
}

// primaryIP returns the local address the OS would use for outbound
// traffic. The UDP "connection" is never actually sent anywhere.
func primaryIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func osDescription(ctx context.Context) string {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
	}
	return fmt.Sprintf("%s %s %s", hi.Platform, hi.PlatformVersion, hi.KernelArch)
}
