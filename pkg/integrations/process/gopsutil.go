package process

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	gops "github.com/shirou/gopsutil/v3/process"

	"github.com/limitwatch/limitwatch/pkg/integrations/common"
)

// cpuSample is the cumulative CPU time of a process at a point in time
type cpuSample struct {
	total float64 // user+system seconds
	at    time.Time
}

// GopsutilLister enumerates processes through gopsutil. CPU utilisation is the
// delta of CPU time since the previous call, so the first call for a PID
// falls back to the lifetime average reported by gopsutil.
type GopsutilLister struct {
	mu   sync.Mutex
	prev map[int32]cpuSample
	now  func() time.Time
}

func NewGopsutilLister() *GopsutilLister {
	return &GopsutilLister{
		prev: make(map[int32]cpuSample),
		now:  time.Now,
	}
}

func (l *GopsutilLister) Name() string {
	return "gopsutil"
}

func (l *GopsutilLister) IsAvailable() bool {
	pids, err := gops.Pids()
	return err == nil && len(pids) > 0
}

func (l *GopsutilLister) ListProcesses(ctx context.Context) ([]common.ProcessInfo, error) {
	procs, err := gops.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate processes")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(map[int32]cpuSample, len(procs))
	result := make([]common.ProcessInfo, 0, len(procs))

	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "process enumeration interrupted")
		}

		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}

		info := common.ProcessInfo{PID: int(p.Pid), CommandName: name}

		times, err := p.TimesWithContext(ctx)
		if err == nil {
			cur := cpuSample{total: times.User + times.System, at: l.now()}
			if prev, ok := l.prev[p.Pid]; ok {
				info.CPUPercent = cpuPercent(prev, cur)
			} else if pct, err := p.CPUPercentWithContext(ctx); err == nil {
				info.CPUPercent = pct
			}
			next[p.Pid] = cur
		}

		result = append(result, info)
	}

	l.prev = next
	return result, nil
}

// cpuPercent converts the CPU time spent between two samples into a percentage
func cpuPercent(prev, cur cpuSample) float64 {
	elapsed := cur.at.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	used := cur.total - prev.total
	if used < 0 {
		return 0
	}
	return used / elapsed * 100
}

var (
	_ common.ProcessLister = (*GopsutilLister)(nil)
	_ common.ProcessLister = (*PSLister)(nil)
)
