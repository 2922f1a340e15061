//go:build !linux

package collector

import (
	"context"

	"github.com/serverdeck/serverdeck-agent/pkg/types"
)

// Services reports no service state on platforms without systemd.
func Services(_ context.Context, _ []string, _ bool) []types.ServiceStatus {
	return nil
}
