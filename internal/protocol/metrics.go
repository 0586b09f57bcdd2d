package protocol

import "time"

// Snapshot is one point-in-time record of host telemetry.
// It is built fresh on every sample and must not be modified after it has
// been handed to the broadcaster; every subscriber shares the same value.
type Snapshot struct {
	Timestamp  time.Time     `json:"timestamp"`
	Hostname   string        `json:"hostname,omitempty"`
	CPUPerCore []float64     `json:"cpu_per_core"`
	CPUAverage *float64      `json:"cpu_average,omitempty"`
	Memory     MemoryStats   `json:"memory"`
	Processes  []ProcessInfo `json:"processes"`
	Disk       DiskStats     `json:"disk"`
}

type MemoryStats struct {
	Used      uint64  `json:"used"`
	Available uint64  `json:"available"`
	Percent   float64 `json:"percent"`
}

// ProcessInfo describes one entry of the process table.
// Fields the collector was not allowed to read are nil and encode as null.
type ProcessInfo struct {
	Pid           uint32   `json:"pid"`
	Name          string   `json:"name"`
	MemoryPercent *float64 `json:"memory_percent"`
	CPUPercent    *float64 `json:"cpu_percent"`
}

// DiskStats holds usage of the monitored volume and I/O counters summed
// over all block devices. ReadCount and WriteCount are cumulative since boot.
type DiskStats struct {
	Used       uint64  `json:"used"`
	Free       uint64  `json:"free"`
	Percent    float64 `json:"percent"`
	ReadCount  uint64  `json:"read_count"`
	WriteCount uint64  `json:"write_count"`
}

// StaticTotals is the payload of GET /api/static.
type StaticTotals struct {
	TotalDisk   uint64 `json:"total_disk"`
	TotalMemory uint64 `json:"total_memory"`
}
