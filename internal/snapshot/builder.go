package snapshot

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhdewitt/telemon/internal/collector"
	"github.com/nhdewitt/telemon/internal/protocol"
)

const (
	DefaultDiskPath = "/"
	DefaultTimeout  = 3 * time.Second
)

// Options controls what a Builder samples.
type Options struct {
	// DiskPath is the volume reported in Snapshot.Disk and StaticTotals.
	DiskPath          string
	IncludeCPUAverage bool
	// Timeout bounds a single Build or Totals call.
	Timeout  time.Duration
	Hostname string
}

// Builder assembles snapshots from a collector.Host.
type Builder struct {
	host collector.Host
	opts Options
	now  func() time.Time
}

func New(host collector.Host, opts Options) *Builder {
	if opts.DiskPath == "" {
		opts.DiskPath = DefaultDiskPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Builder{
		host: host,
		opts: opts,
		now:  time.Now,
	}
}

// Build samples CPU, memory, processes and disk concurrently and returns a
// fresh Snapshot. Any failing sub-query fails the build with a
// *CollectionError naming it.
func (b *Builder) Build(ctx context.Context) (protocol.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	var (
		cores []float64
		mem   collector.Memory
		procs []collector.Process
		usage collector.DiskUsage
		io    collector.IOCounters
	)

	var pending stageTracker
	g, gctx := errgroup.WithContext(ctx)

	g.Go(pending.run(StageCPU, func() (err error) {
		cores, err = b.host.CPUPerCore(gctx)
		return err
	}))
	g.Go(pending.run(StageMemory, func() (err error) {
		mem, err = b.host.VirtualMemory(gctx)
		return err
	}))
	g.Go(pending.run(StageProcesses, func() (err error) {
		procs, err = b.host.Processes(gctx)
		return err
	}))
	g.Go(pending.run(StageDisk, func() (err error) {
		if usage, err = b.host.DiskUsage(gctx, b.opts.DiskPath); err != nil {
			return err
		}
		io, err = b.host.DiskIO(gctx)
		return err
	}))

	if err := wait(ctx, g, &pending); err != nil {
		return protocol.Snapshot{}, err
	}

	snap := protocol.Snapshot{
		Timestamp:  b.now(),
		Hostname:   b.opts.Hostname,
		CPUPerCore: cores,
		Memory: protocol.MemoryStats{
			Used:      mem.Used,
			Available: mem.Available,
			Percent:   mem.UsedPercent,
		},
		Processes: convertProcesses(procs),
		Disk: protocol.DiskStats{
			Used:       usage.Used,
			Free:       usage.Free,
			Percent:    usage.UsedPercent,
			ReadCount:  io.ReadCount,
			WriteCount: io.WriteCount,
		},
	}
	if snap.CPUPerCore == nil {
		snap.CPUPerCore = []float64{}
	}
	if b.opts.IncludeCPUAverage {
		avg := mean(snap.CPUPerCore)
		snap.CPUAverage = &avg
	}

	return snap, nil
}

// Totals reads the configured volume's size and total physical memory.
// Nothing is cached between calls.
func (b *Builder) Totals(ctx context.Context) (protocol.StaticTotals, error) {
	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	usage, err := b.host.DiskUsage(ctx, b.opts.DiskPath)
	if err != nil {
		return protocol.StaticTotals{}, &CollectionError{Stage: StageDisk, Err: err}
	}
	mem, err := b.host.VirtualMemory(ctx)
	if err != nil {
		return protocol.StaticTotals{}, &CollectionError{Stage: StageMemory, Err: err}
	}

	return protocol.StaticTotals{
		TotalDisk:   usage.Total,
		TotalMemory: mem.Total,
	}, nil
}

// wait returns when every stage has finished or ctx expires, whichever is
// first. On expiry the first stage still running is blamed. If every stage
// returned as the deadline fired, the group's own error names the stage.
func wait(ctx context.Context, g *errgroup.Group, pending *stageTracker) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if stage, ok := pending.first(); ok {
			return &CollectionError{Stage: stage, Err: ctx.Err()}
		}
		return <-done
	}
}

func convertProcesses(procs []collector.Process) []protocol.ProcessInfo {
	out := make([]protocol.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		out = append(out, protocol.ProcessInfo{
			Pid:           p.PID,
			Name:          p.Name,
			MemoryPercent: p.MemoryPercent,
			CPUPercent:    p.CPUPercent,
		})
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stageTracker records which stages have started and completed.
type stageTracker struct {
	started [4]atomic.Bool
	done    [4]atomic.Bool
}

func (t *stageTracker) run(stage Stage, fn func() error) func() error {
	return func() error {
		i := stageIndex(stage)
		t.started[i].Store(true)
		defer t.done[i].Store(true)
		if err := fn(); err != nil {
			return &CollectionError{Stage: stage, Err: err}
		}
		return nil
	}
}

// first reports the first stage that is running. A stage the scheduler has
// not started yet is only blamed when none is running. ok is false once
// every stage has returned.
func (t *stageTracker) first() (stage Stage, ok bool) {
	for i, s := range stages {
		if t.started[i].Load() && !t.done[i].Load() {
			return s, true
		}
	}
	for i, s := range stages {
		if !t.done[i].Load() {
			return s, true
		}
	}
	return "", false
}

func stageIndex(stage Stage) int {
	for i, s := range stages {
		if s == stage {
			return i
		}
	}
	return 0
}
