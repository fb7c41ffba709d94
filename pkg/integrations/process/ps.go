package process

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/limitwatch/limitwatch/pkg/integrations/common"
)

const psWaitDelay = 500 * time.Millisecond

// PSLister enumerates processes by running the ps utility and parsing its text
// output. ps reports %CPU as a lifetime average, so CPU utilisation is derived
// from the cumulative CPU time between successive calls instead; a PID seen
// for the first time reports the lifetime figure.
type PSLister struct {
	command string
	args    []string

	mu   sync.Mutex
	prev map[int]cpuSample
	now  func() time.Time
}

// NewPSLister creates a lister that runs `ps -ax -o pid=,pcpu=,time=,comm=`
func NewPSLister() *PSLister {
	return &PSLister{
		command: "ps",
		args:    []string{"-ax", "-o", "pid=,pcpu=,time=,comm="},
		prev:    make(map[int]cpuSample),
		now:     time.Now,
	}
}

// Name returns "ps"
func (l *PSLister) Name() string {
	return "ps"
}

// IsAvailable checks if the ps binary is in PATH
func (l *PSLister) IsAvailable() bool {
	_, err := exec.LookPath(l.command)
	return err == nil
}

// ListProcesses spawns ps under ctx; a deadline on ctx bounds the call
func (l *PSLister) ListProcesses(ctx context.Context) ([]common.ProcessInfo, error) {
	cmd := exec.CommandContext(ctx, l.command, l.args...)
	cmd.WaitDelay = psWaitDelay

	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrapf(ctxErr, "%s did not finish", l.command)
		}
		return nil, errors.Wrapf(err, "failed to run %s", l.command)
	}

	rows, err := parsePSOutput(strings.NewReader(string(output)))
	if err != nil {
		return nil, err
	}

	now := time.Now
	if l.now != nil {
		now = l.now
	}
	return l.rate(rows, now()), nil
}

// rate replaces each row's lifetime %CPU with the utilisation since the
// previous call, when there was one for that PID
func (l *PSLister) rate(rows []psRow, at time.Time) []common.ProcessInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make(map[int]cpuSample, len(rows))
	result := make([]common.ProcessInfo, 0, len(rows))

	for _, row := range rows {
		info := row.info
		cur := cpuSample{total: row.cpuTime, at: at}
		if prev, ok := l.prev[info.PID]; ok {
			info.CPUPercent = cpuPercent(prev, cur)
		}
		next[info.PID] = cur
		result = append(result, info)
	}

	l.prev = next
	return result
}

type psRow struct {
	info    common.ProcessInfo
	cpuTime float64 // cumulative seconds
}

// parsePSOutput reads "pid pcpu time comm" lines; comm may contain spaces
func parsePSOutput(r io.Reader) ([]psRow, error) {
	var rows []psRow

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}

		cpu, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}

		cpuTime, err := parseCPUTime(fields[2])
		if err != nil {
			continue
		}

		rows = append(rows, psRow{
			info: common.ProcessInfo{
				PID:         pid,
				CommandName: strings.Join(fields[3:], " "),
				CPUPercent:  cpu,
			},
			cpuTime: cpuTime,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read ps output")
	}

	return rows, nil
}

// parseCPUTime parses the ps TIME column: [DD-]HH:MM:SS on procps,
// MM:SS.cc on BSD
func parseCPUTime(s string) (float64, error) {
	var days float64
	if d, rest, ok := strings.Cut(s, "-"); ok {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			return 0, errors.Errorf("invalid cpu time %q", s)
		}
		days = float64(n)
		s = rest
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, errors.Errorf("invalid cpu time %q", s)
	}

	var total float64
	for i, p := range parts {
		var (
			v   float64
			err error
		)
		if i == len(parts)-1 {
			v, err = strconv.ParseFloat(p, 64)
		} else {
			var n int
			n, err = strconv.Atoi(p)
			v = float64(n)
		}
		if err != nil || v < 0 {
			return 0, errors.Errorf("invalid cpu time %q", s)
		}
		total = total*60 + v
	}

	return days*86400 + total, nil
}
