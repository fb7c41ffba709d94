package process

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestCPUPercent(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		prev cpuSample
		cur  cpuSample
		want float64
	}{
		{"Full core", cpuSample{10, base}, cpuSample{12, base.Add(2 * time.Second)}, 100},
		{"Half core", cpuSample{10, base}, cpuSample{11, base.Add(2 * time.Second)}, 50},
		{"Two cores", cpuSample{0, base}, cpuSample{4, base.Add(2 * time.Second)}, 200},
		{"No elapsed time", cpuSample{10, base}, cpuSample{11, base}, 0},
		{"Counter reset", cpuSample{10, base}, cpuSample{1, base.Add(time.Second)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cpuPercent(tt.prev, tt.cur); got != tt.want {
				t.Errorf("cpuPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGopsutilListerFindsSelf(t *testing.T) {
	l := NewGopsutilLister()
	if !l.IsAvailable() {
		t.Skip("gopsutil cannot enumerate processes here")
	}

	procs, err := l.ListProcesses(context.Background())
	if err != nil {
		t.Fatalf("ListProcesses() error: %v", err)
	}

	self := os.Getpid()
	found := false
	for _, p := range procs {
		if p.PID == self {
			found = true
			if p.CPUPercent < 0 {
				t.Errorf("CPUPercent = %v, want >= 0", p.CPUPercent)
			}
		}
	}
	if !found {
		t.Errorf("own PID %d not in %d listed processes", self, len(procs))
	}

	if _, err := l.ListProcesses(context.Background()); err != nil {
		t.Fatalf("second ListProcesses() error: %v", err)
	}
	if _, ok := l.prev[int32(self)]; !ok {
		t.Error("own PID has no CPU sample after two captures")
	}
}
