package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// PSUtil is the cross-platform Host backed by gopsutil.
//
// Process CPU percent is measured between two enumerations, so the
// *process.Process handles are kept across calls keyed by PID.
type PSUtil struct {
	mu    sync.Mutex
	procs map[int32]*process.Process
}

func NewPSUtil() *PSUtil {
	return &PSUtil{
		procs: make(map[int32]*process.Process),
	}
}

func (p *PSUtil) CPUPerCore(ctx context.Context) ([]float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	return pct, nil
}

func (p *PSUtil) VirtualMemory(ctx context.Context) (Memory, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Memory{}, fmt.Errorf("virtual memory: %w", err)
	}
	return Memory{
		Total:       v.Total,
		Used:        v.Used,
		Available:   v.Available,
		UsedPercent: v.UsedPercent,
	}, nil
}

func (p *PSUtil) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[int32]*process.Process, len(procs))
	results := make([]Process, 0, len(procs))

	for _, proc := range procs {
		handle := p.reuse(ctx, proc)

		info, ok := readProcess(ctx, handle)
		if !ok {
			continue
		}

		current[proc.Pid] = handle
		results = append(results, info)
	}

	p.procs = current

	return results, nil
}

// reuse returns the cached handle for proc's PID unless the PID has been
// recycled by a different process since the last enumeration.
func (p *PSUtil) reuse(ctx context.Context, proc *process.Process) *process.Process {
	cached, ok := p.procs[proc.Pid]
	if !ok {
		return proc
	}

	created, err := proc.CreateTimeWithContext(ctx)
	if err != nil {
		return proc
	}
	cachedCreated, err := cached.CreateTimeWithContext(ctx)
	if err != nil || cachedCreated != created {
		return proc
	}
	return cached
}

// readProcess reports false when the process is gone.
func readProcess(ctx context.Context, proc *process.Process) (Process, bool) {
	info := Process{PID: uint32(proc.Pid)}

	name, err := proc.NameWithContext(ctx)
	switch {
	case err == nil:
		info.Name = name
	case vanished(err):
		return Process{}, false
	}

	memPct, err := proc.MemoryPercentWithContext(ctx)
	switch {
	case err == nil:
		info.MemoryPercent = floatPtr(float64(memPct))
	case vanished(err):
		return Process{}, false
	}

	cpuPct, err := proc.PercentWithContext(ctx, 0)
	switch {
	case err == nil:
		info.CPUPercent = floatPtr(cpuPct)
	case vanished(err):
		return Process{}, false
	}

	return info, true
}

func vanished(err error) bool {
	return errors.Is(err, process.ErrorProcessNotRunning) || errors.Is(err, fs.ErrNotExist)
}

func (p *PSUtil) DiskUsage(ctx context.Context, path string) (DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return DiskUsage{
		Total:       u.Total,
		Used:        u.Used,
		Free:        u.Free,
		UsedPercent: u.UsedPercent,
	}, nil
}

func (p *PSUtil) DiskIO(ctx context.Context) (IOCounters, error) {
	stats, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return IOCounters{}, fmt.Errorf("disk io counters: %w", err)
	}

	var total IOCounters
	for name, s := range stats {
		if !isWholeDisk(name) {
			continue
		}
		total.ReadCount += s.ReadCount
		total.WriteCount += s.WriteCount
	}
	return total, nil
}
