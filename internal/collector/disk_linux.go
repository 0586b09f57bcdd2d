//go:build linux

package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

func (p *ProcFS) DiskUsage(ctx context.Context, path string) (DiskUsage, error) {
	stat, err := statfs(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	return buildDiskUsage(stat), nil
}

func statfs(path string) (unix.Statfs_t, error) {
	var stat unix.Statfs_t
	err := unix.Statfs(path, &stat)
	return stat, err
}

// buildDiskUsage reports the percentage the way df does: blocks reserved
// for root count neither as used nor as free.
func buildDiskUsage(stat unix.Statfs_t) DiskUsage {
	bsize := uint64(stat.Bsize)

	total := stat.Blocks * bsize
	free := stat.Bavail * bsize
	used := (stat.Blocks - stat.Bfree) * bsize

	return DiskUsage{
		Total:       total,
		Used:        used,
		Free:        free,
		UsedPercent: percent(used, used+free),
	}
}

func (p *ProcFS) DiskIO(ctx context.Context) (IOCounters, error) {
	f, err := os.Open(filepath.Join(p.root, "diskstats"))
	if err != nil {
		return IOCounters{}, fmt.Errorf("opening /proc/diskstats: %w", err)
	}
	defer f.Close()

	counters, err := parseDiskstatsFrom(f, func(device string) bool {
		return isWholeDiskIn(p.sysBlock, device)
	})
	if err != nil {
		return IOCounters{}, fmt.Errorf("parsing /proc/diskstats: %w", err)
	}
	return counters, nil
}

// parseDiskstatsFrom sums completed reads (field 4) and writes (field 8)
// over the devices accepted by include.
func parseDiskstatsFrom(r io.Reader, include func(string) bool) (IOCounters, error) {
	var total IOCounters
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 12 {
			continue
		}

		device := fields[2]
		if !include(device) {
			continue
		}

		parse := makeUintParser(fields, "/proc/diskstats")
		total.ReadCount += parse(3)
		total.WriteCount += parse(7)
	}

	return total, scanner.Err()
}
