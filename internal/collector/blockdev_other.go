//go:build !linux

package collector

// Outside Linux, gopsutil already reports one entry per physical disk.
func isWholeDisk(string) bool {
	return true
}
