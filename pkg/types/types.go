package types

import "time"

// SystemInfo is the static host description sent once at registration.
type SystemInfo struct {
	Hostname    string   `json:"hostname"`
	IPAddress   string   `json:"ip_address"`
	OSInfo      string   `json:"os_info"`
	DisplayName string   `json:"display_name,omitempty"`
	GroupName   string   `json:"group_name,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// RegisterResponse is the dashboard's answer to POST /api/register.
// The returned pair is the agent's permanent credential.
type RegisterResponse struct {
	ServerID string `json:"server_id"`
	APIKey   string `json:"api_key"`
}

// SystemMetrics is one point-in-time snapshot of host state.
type SystemMetrics struct {
	CPUPercent    float64          `json:"cpu_percent"`
	MemoryTotal   uint64           `json:"memory_total"`
	MemoryUsed    uint64           `json:"memory_used"`
	MemoryFree    uint64           `json:"memory_free"`
	MemoryPercent float64          `json:"memory_percent"`
	Disks         []DiskUsage      `json:"disks"`
	Network       *NetworkCounters `json:"network"`
	UptimeSeconds uint64           `json:"uptime_seconds"`
	BootTime      time.Time        `json:"boot_time"`
}

// DiskUsage describes one mounted partition.
type DiskUsage struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	Total      uint64  `json:"total"`
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
}

// NetworkCounters holds cumulative interface totals, not rates.
type NetworkCounters struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// ProcessInfo is one row of the top-N process table.
type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	Status        string  `json:"status"`
	Username      string  `json:"username"`
}

// ServiceStatus describes one monitored or discovered system service.
type ServiceStatus struct {
	ServiceName string `json:"service_name"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	StartType   string `json:"start_type"`
	PID         int    `json:"pid"`
}

// MetricsPayload is the bundle delivered once per primary cycle.
// It is immutable once built; the delivery client owns it after handoff.
type MetricsPayload struct {
	Metrics   SystemMetrics   `json:"metrics"`
	Processes []ProcessInfo   `json:"processes"`
	Services  []ServiceStatus `json:"services"`
}

// NetworkRate holds per-second deltas derived from NetworkCounters.
type NetworkRate struct {
	BytesSentPerSec   float64 `json:"bytes_sent_per_sec"`
	BytesRecvPerSec   float64 `json:"bytes_recv_per_sec"`
	PacketsSentPerSec float64 `json:"packets_sent_per_sec"`
	PacketsRecvPerSec float64 `json:"packets_recv_per_sec"`
}

// DiskIORate holds per-second deltas derived from disk I/O counters.
type DiskIORate struct {
	ReadBytesPerSec  float64 `json:"read_bytes_per_sec"`
	WriteBytesPerSec float64 `json:"write_bytes_per_sec"`
	ReadOpsPerSec    float64 `json:"read_count_per_sec"`
	WriteOpsPerSec   float64 `json:"write_count_per_sec"`
}

// LiveSnapshot is one lightweight sample from the live performance stream.
// Rate fields are zero on the first sample after the stream (re)starts.
type LiveSnapshot struct {
	Timestamp       time.Time   `json:"timestamp"`
	CPUPercent      float64     `json:"cpu_percent"`
	CPUPerCore      []float64   `json:"cpu_per_core"`
	CPUFreqMHz      float64     `json:"cpu_freq_mhz"`
	MemoryPercent   float64     `json:"memory_percent"`
	MemoryUsed      uint64      `json:"memory_used"`
	MemoryAvailable uint64      `json:"memory_available"`
	SwapPercent     float64     `json:"swap_percent"`
	SwapUsed        uint64      `json:"swap_used"`
	NetworkRate     NetworkRate `json:"network_rate"`
	DiskIORate      DiskIORate  `json:"disk_io_rate"`
	ProcessCount    int         `json:"process_count"`
	ThreadCount     int         `json:"thread_count"`
}

// PendingConfigResponse is the dashboard's answer to GET /api/config/{id}.
// Config is only meaningful when HasUpdate is true.
type PendingConfigResponse struct {
	HasUpdate bool           `json:"has_update"`
	Config    map[string]any `json:"config,omitempty"`
}
