//go:build !linux

package collector

import (
	"fmt"
	"runtime"
)

func newProcFS() (Host, error) {
	return nil, fmt.Errorf("procfs collector is not supported on %s", runtime.GOOS)
}
