//go:build linux

package collector

import (
	"os"
	"sync"
	"time"

	"github.com/tklauser/go-sysconf"
)

var (
	clkTck = 100.0
)

func init() {
	if sc, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && sc > 0 {
		clkTck = float64(sc)
	}
}

// ProcFS is a Linux Host that reads procfs and sysfs directly.
type ProcFS struct {
	root     string
	sysBlock string
	pageSize uint64
	now      func() time.Time

	cpuMu   sync.Mutex
	lastCPU map[string]CPURaw

	procMu    sync.Mutex
	lastProcs map[int]processState
}

func NewProcFS() *ProcFS {
	return newProcFSAt("/proc", sysBlockDir)
}

func newProcFSAt(root, sysBlock string) *ProcFS {
	return &ProcFS{
		root:      root,
		sysBlock:  sysBlock,
		pageSize:  uint64(os.Getpagesize()),
		now:       time.Now,
		lastProcs: make(map[int]processState),
	}
}

func newProcFS() (Host, error) {
	return NewProcFS(), nil
}
