package collector

import (
	"runtime"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"", false},
		{KindGopsutil, false},
		{KindProcFS, runtime.GOOS != "linux"},
		{"wmi", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			host, err := New(tt.kind)
			if tt.wantErr {
				if err == nil {
					t.Errorf("New(%q) expected error", tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%q) unexpected error: %v", tt.kind, err)
			}
			if host == nil {
				t.Fatalf("New(%q) returned nil host", tt.kind)
			}
		})
	}
}

func TestNew_DefaultIsGopsutil(t *testing.T) {
	host, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := host.(*PSUtil); !ok {
		t.Errorf("New(\"\") = %T, want *PSUtil", host)
	}
}
