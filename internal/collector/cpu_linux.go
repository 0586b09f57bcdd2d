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
)

// CPUPerCore returns per-core utilization since the previous call.
// The first call, and any call after a counter reset, only records a
// baseline and reports 0 for every core.
func (p *ProcFS) CPUPerCore(ctx context.Context) ([]float64, error) {
	f, err := os.Open(filepath.Join(p.root, "stat"))
	if err != nil {
		return nil, fmt.Errorf("opening /proc/stat: %w", err)
	}
	defer f.Close()

	cur, err := parseProcStatFrom(f)
	if err != nil {
		return nil, fmt.Errorf("parsing /proc/stat: %w", err)
	}

	p.cpuMu.Lock()
	defer p.cpuMu.Unlock()

	prev := p.lastCPU
	p.lastCPU = cur

	if len(prev) == 0 {
		return make([]float64, coreCount(cur)), nil
	}

	deltaMap, ok := calculateCPUDeltas(cur, prev)
	if !ok {
		return make([]float64, coreCount(cur)), nil
	}

	return calcCoreUsage(deltaMap), nil
}

// calculateCPUDeltas takes the current and previous raw maps and returns a map containing
// the delta for each key (cpu, cpu0, ...)
func calculateCPUDeltas(current, previous map[string]CPURaw) (map[string]CPUDelta, bool) {
	deltaMap := make(map[string]CPUDelta)

	for key, cur := range current {
		prev, ok := previous[key]
		if !ok {
			return nil, false
		}

		if cur.User < prev.User || cur.Nice < prev.Nice || cur.System < prev.System || cur.Idle < prev.Idle || cur.IOWait < prev.IOWait ||
			cur.IRQ < prev.IRQ || cur.SoftIRQ < prev.SoftIRQ || cur.Steal < prev.Steal {
			return nil, false
		}

		delta := CPUDelta{}

		delta.User = cur.User - prev.User
		delta.Nice = cur.Nice - prev.Nice
		delta.System = cur.System - prev.System
		delta.Idle = cur.Idle - prev.Idle
		delta.IOWait = cur.IOWait - prev.IOWait
		delta.IRQ = cur.IRQ - prev.IRQ
		delta.SoftIRQ = cur.SoftIRQ - prev.SoftIRQ
		delta.Steal = cur.Steal - prev.Steal
		delta.Guest = cur.Guest - prev.Guest
		delta.GuestNice = cur.GuestNice - prev.GuestNice
		// Guest and GuestNice are already included in User and Nice by the kernel.
		delta.Total = delta.User + delta.Nice + delta.System + delta.Idle + delta.IOWait + delta.IRQ + delta.SoftIRQ + delta.Steal
		delta.Used = delta.Total - (delta.Idle + delta.IOWait)

		deltaMap[key] = delta
	}

	return deltaMap, true
}

func parseProcStatFrom(r io.Reader) (map[string]CPURaw, error) {
	result := make(map[string]CPURaw)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu") {
			break
		}

		raw, err := parseCPULine(line)
		if err != nil {
			continue
		}

		fields := strings.Fields(line)
		result[fields[0]] = raw
	}

	return result, scanner.Err()
}

func parseCPULine(line string) (CPURaw, error) {
	fields := strings.Fields(line)
	if len(fields) < 11 {
		return CPURaw{}, fmt.Errorf("insufficient fields: %d", len(fields))
	}

	parse := makeUintParser(fields, "/proc/stat")

	return CPURaw{
		User:      parse(1),
		Nice:      parse(2),
		System:    parse(3),
		Idle:      parse(4),
		IOWait:    parse(5),
		IRQ:       parse(6),
		SoftIRQ:   parse(7),
		Steal:     parse(8),
		Guest:     parse(9),
		GuestNice: parse(10),
	}, nil
}

// coreCount counts the cpuN keys, excluding the aggregate "cpu" line.
func coreCount[V any](m map[string]V) int {
	n := len(m)
	if _, ok := m["cpu"]; ok {
		n--
	}
	return n
}

// calcCoreUsage returns per-core CPU usage percentages.
// Assumes contiguous core numbering (cpu0, cpu1, ..., cpuN-1).
// Missing cores will show 0% usage.
func calcCoreUsage(deltaMap map[string]CPUDelta) []float64 {
	numCores := coreCount(deltaMap)
	usage := make([]float64, numCores)

	for i := range numCores {
		coreKey := fmt.Sprintf("cpu%d", i)
		if delta, ok := deltaMap[coreKey]; ok && delta.Total > 0 {
			usage[i] = percent(delta.Used, delta.Total)
		}
	}

	return usage
}
