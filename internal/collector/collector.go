package collector

import (
	"context"
	"fmt"
)

// Host is the OS metrics provider sampled by the snapshot builder.
// Every call reflects live OS state; implementations do not cache results.
type Host interface {
	// CPUPerCore returns utilization per logical core since the previous call.
	CPUPerCore(ctx context.Context) ([]float64, error)
	VirtualMemory(ctx context.Context) (Memory, error)
	// Processes enumerates the process table. Processes that exit during
	// enumeration are skipped rather than failing the call.
	Processes(ctx context.Context) ([]Process, error)
	DiskUsage(ctx context.Context, path string) (DiskUsage, error)
	// DiskIO returns read/write operation counters summed over whole disks.
	DiskIO(ctx context.Context) (IOCounters, error)
}

type Memory struct {
	Total       uint64
	Used        uint64
	Available   uint64
	UsedPercent float64
}

// Process is one process table entry. A nil percent means the value could
// not be read (usually permission denied).
type Process struct {
	PID           uint32
	Name          string
	MemoryPercent *float64
	CPUPercent    *float64
}

type DiskUsage struct {
	Total       uint64
	Used        uint64
	Free        uint64
	UsedPercent float64
}

type IOCounters struct {
	ReadCount  uint64
	WriteCount uint64
}

const (
	KindGopsutil = "gopsutil"
	KindProcFS   = "procfs"
)

// New returns the Host implementation registered under kind.
// An empty kind selects gopsutil.
func New(kind string) (Host, error) {
	switch kind {
	case "", KindGopsutil:
		return NewPSUtil(), nil
	case KindProcFS:
		return newProcFS()
	default:
		return nil, fmt.Errorf("unknown collector %q", kind)
	}
}
