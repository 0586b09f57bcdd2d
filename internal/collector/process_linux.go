//go:build linux

package collector

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// pidStatRaw holds the raw values parsed from /proc/[pid]/stat
type pidStatRaw struct {
	Name       string
	State      string
	UTime      uint64
	STime      uint64
	RSSPages   uint64
	TotalTicks uint64
}

// processState stores the last CPU ticks for a PID.
type processState struct {
	lastTicks uint64
	lastTime  time.Time
}

// Processes enumerates /proc. Entries that disappear or cannot be read
// between the directory listing and the stat read are skipped.
func (p *ProcFS) Processes(ctx context.Context) ([]Process, error) {
	memFile, err := os.Open(filepath.Join(p.root, "meminfo"))
	if err != nil {
		return nil, fmt.Errorf("opening /proc/meminfo: %w", err)
	}
	totalMem, err := parseProcessMemInfoFrom(memFile)
	memFile.Close()
	if err != nil {
		return nil, fmt.Errorf("parsing /proc/meminfo: %w", err)
	}

	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, fmt.Errorf("listing /proc: %w", err)
	}

	p.procMu.Lock()
	defer p.procMu.Unlock()

	now := p.now()
	currentStates := make(map[int]processState, len(entries))
	results := make([]Process, 0, len(entries))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid < 0 {
			continue
		}

		stat, err := p.readPidStat(entry.Name())
		if err != nil {
			continue
		}

		memPercent := percent(stat.RSSPages*p.pageSize, totalMem)

		cpuPercent := 0.0
		if prev, ok := p.lastProcs[pid]; ok && stat.TotalTicks >= prev.lastTicks {
			deltaTicks := float64(stat.TotalTicks - prev.lastTicks)
			deltaTime := now.Sub(prev.lastTime).Seconds()
			if deltaTime > 0 {
				cpuPercent = ((deltaTicks / clkTck) / deltaTime) * 100.0
			}
		}

		currentStates[pid] = processState{
			lastTicks: stat.TotalTicks,
			lastTime:  now,
		}

		results = append(results, Process{
			PID:           uint32(pid),
			Name:          stat.Name,
			MemoryPercent: floatPtr(memPercent),
			CPUPercent:    floatPtr(cpuPercent),
		})
	}

	p.lastProcs = currentStates

	return results, nil
}

func (p *ProcFS) readPidStat(pid string) (*pidStatRaw, error) {
	f, err := os.Open(filepath.Join(p.root, pid, "stat"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parsePidStatFrom(f)
}

// parseProcessMemInfoFrom parses /proc/meminfo to find MemTotal in bytes.
func parseProcessMemInfoFrom(r io.Reader) (uint64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	lines := strings.SplitSeq(string(data), "\n")
	for line := range lines {
		if strings.HasPrefix(line, "MemTotal:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				kb, err := strconv.ParseUint(fields[1], 10, 64)
				if err != nil {
					return 0, err
				}
				return kb * 1024, nil
			}
		}
	}

	return 0, fmt.Errorf("MemTotal not found")
}

// parsePidStatFrom parses a single line from /proc/[pid]/stat
func parsePidStatFrom(r io.Reader) (*pidStatRaw, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	str := string(data)

	// comm may itself contain parentheses and spaces
	firstParen := strings.Index(str, "(")
	lastParen := strings.LastIndex(str, ")")
	if firstParen == -1 || lastParen == -1 || lastParen <= firstParen || lastParen+2 > len(str) {
		return nil, fmt.Errorf("invalid format")
	}

	name := str[firstParen+1 : lastParen]

	rest := str[lastParen+2:]
	fields := strings.Fields(rest)
	if len(fields) < 22 {
		return nil, fmt.Errorf("insufficient fields")
	}

	parse := makeUintParser(fields, "process")

	// Indices shifted:
	// State (2) -> 0
	// utime (14) -> 11
	// stime (15) -> 12
	// rss (24) -> 21
	utime := parse(11)
	stime := parse(12)
	rss := parse(21)

	return &pidStatRaw{
		Name:       name,
		State:      fields[0],
		UTime:      utime,
		STime:      stime,
		RSSPages:   rss,
		TotalTicks: utime + stime,
	}, nil
}
