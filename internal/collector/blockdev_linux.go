//go:build linux

package collector

import (
	"os"
	"path/filepath"
	"strings"
)

const sysBlockDir = "/sys/block"

// isWholeDisk reports whether a /proc/diskstats device is a disk rather than
// a partition. Only whole disks are listed under /sys/block.
func isWholeDisk(name string) bool {
	return isWholeDiskIn(sysBlockDir, name)
}

func isWholeDiskIn(dir, name string) bool {
	// cciss/c0d0 appears as cciss!c0d0 in sysfs
	name = strings.ReplaceAll(name, "/", "!")
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
