//go:build linux

package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type memRaw struct {
	Total     uint64
	Available uint64
}

func (p *ProcFS) VirtualMemory(ctx context.Context) (Memory, error) {
	f, err := os.Open(filepath.Join(p.root, "meminfo"))
	if err != nil {
		return Memory{}, fmt.Errorf("opening /proc/meminfo: %w", err)
	}
	defer f.Close()

	raw, err := parseMemInfoFrom(f)
	if err != nil {
		return Memory{}, err
	}

	var used uint64
	if raw.Available < raw.Total {
		used = raw.Total - raw.Available
	}

	return Memory{
		Total:       raw.Total,
		Used:        used,
		Available:   raw.Available,
		UsedPercent: percent(used, raw.Total),
	}, nil
}

// parseMemInfoFrom reads MemTotal and MemAvailable, converted to bytes.
func parseMemInfoFrom(r io.Reader) (memRaw, error) {
	var raw memRaw

	targets := map[string]*uint64{
		"MemTotal":     &raw.Total,
		"MemAvailable": &raw.Available,
	}

	want := len(targets)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() && len(targets) > 0 {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		key := strings.TrimSuffix(fields[0], ":")
		target, ok := targets[key]
		if !ok {
			continue
		}

		value, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return memRaw{}, fmt.Errorf("parsing %s: %w", key, err)
		}

		*target = value * 1024
		delete(targets, key)
	}

	if err := scanner.Err(); err != nil {
		return memRaw{}, fmt.Errorf("reading /proc/meminfo: %w", err)
	}
	if len(targets) > 0 {
		return memRaw{}, fmt.Errorf("missing fields in /proc/meminfo: found %d of %d", want-len(targets), want)
	}

	return raw, nil
}
