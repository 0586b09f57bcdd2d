//go:build linux

package collector

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// procFixture is a fake /proc and /sys/block tree under t.TempDir().
type procFixture struct {
	t        *testing.T
	root     string
	sysBlock string
}

func newProcFixture(t *testing.T) *procFixture {
	t.Helper()

	dir := t.TempDir()
	fx := &procFixture{
		t:        t,
		root:     filepath.Join(dir, "proc"),
		sysBlock: filepath.Join(dir, "block"),
	}
	for _, d := range []string{fx.root, fx.sysBlock} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return fx
}

func (fx *procFixture) write(rel, content string) {
	fx.t.Helper()

	path := filepath.Join(fx.root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fx.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fx.t.Fatal(err)
	}
}

func (fx *procFixture) remove(rel string) {
	fx.t.Helper()
	if err := os.RemoveAll(filepath.Join(fx.root, rel)); err != nil {
		fx.t.Fatal(err)
	}
}

func (fx *procFixture) addBlockDevice(name string) {
	fx.t.Helper()
	if err := os.MkdirAll(filepath.Join(fx.sysBlock, name), 0o755); err != nil {
		fx.t.Fatal(err)
	}
}

func (fx *procFixture) procFS() *ProcFS {
	p := newProcFSAt(fx.root, fx.sysBlock)
	p.pageSize = 4096
	return p
}

// fakeClock returns a now func that advances only when told to.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
