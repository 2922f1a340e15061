// Package collector gathers the point-in-time host state that goes into a
// metrics payload: static system info for registration, the per-cycle
// system snapshot (CPU, memory, disks, network counters, uptime), the
// top-N process table and systemd service status.
//
// Collectors are deliberately forgiving: a failure while gathering one
// data type degrades that part of the payload (zero values or a missing
// section) and never surfaces as an error to the cycle. CPU, memory, disk
// and network reads go through gopsutil; service status shells out to
// systemctl on Linux and reports nothing elsewhere.
package collector
