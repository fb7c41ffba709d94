// Package rules decides from a snapshot whether a screen-time limit is
// being enforced.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/limitwatch/limitwatch/internal/config"
	"github.com/limitwatch/limitwatch/internal/snapshot"
)

// Signal is the outcome of evaluating one snapshot
type Signal struct {
	Triggered bool            `json:"triggered"`
	Reason    string          `json:"reason,omitempty"`
	Source    snapshot.Source `json:"source"`
	Marker    string          `json:"marker,omitempty"` // marker or process pattern that matched
	At        time.Time       `json:"at"`
}

// Manual builds the signal used to simulate a limit
func Manual(reason string, at time.Time) Signal {
	if reason == "" {
		reason = "simulated limit"
	}
	return Signal{Triggered: true, Reason: reason, Source: snapshot.SourceManual, At: at}
}

type processPattern struct {
	raw string
	g   glob.Glob
}

// Detector evaluates snapshots against window markers and enforcement
// process patterns. A Detector is immutable and safe for concurrent use.
type Detector struct {
	markers   []string
	processes []processPattern
	threshold float64
}

// New compiles a detector from rule configuration
func New(cfg config.RulesConfig) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Detector{
		markers:   append([]string(nil), cfg.Markers...),
		threshold: cfg.CPUTriggerThreshold,
	}
	for _, p := range cfg.EnforcementProcesses {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid enforcement process pattern %q: %w", p, err)
		}
		d.processes = append(d.processes, processPattern{raw: p, g: g})
	}
	return d, nil
}

// Threshold returns the CPU percentage at which enforcement processes trigger
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Evaluate dispatches on the snapshot type
func (d *Detector) Evaluate(s snapshot.Snapshot) Signal {
	switch snap := s.(type) {
	case snapshot.WindowSnapshot:
		return d.EvaluateWindows(snap)
	case snapshot.ProcessSnapshot:
		return d.EvaluateProcesses(snap)
	case *snapshot.WindowSnapshot:
		return d.EvaluateWindows(*snap)
	case *snapshot.ProcessSnapshot:
		return d.EvaluateProcesses(*snap)
	}
	return Signal{}
}

// EvaluateWindows reports the first window, in snapshot order, whose owner
// or title contains a marker.
func (d *Detector) EvaluateWindows(s snapshot.WindowSnapshot) Signal {
	for _, w := range s.Records {
		for _, m := range d.markers {
			var field string
			switch {
			case strings.Contains(w.OwnerName, m):
				field = "owner"
			case strings.Contains(w.Title, m):
				field = "title"
			default:
				continue
			}
			return Signal{
				Triggered: true,
				Reason:    fmt.Sprintf("window %q of %s: %s matches marker %q", w.Title, w.OwnerName, field, m),
				Source:    snapshot.SourceWindow,
				Marker:    m,
				At:        s.CapturedAt,
			}
		}
	}
	return Signal{Source: snapshot.SourceWindow, At: s.CapturedAt}
}

// EvaluateProcesses reports the first process, in snapshot order, whose
// name matches an enforcement pattern while its CPU usage is at or above
// the threshold. A matching name alone never triggers.
func (d *Detector) EvaluateProcesses(s snapshot.ProcessSnapshot) Signal {
	for _, p := range s.Records {
		if p.CPUPercent < d.threshold {
			continue
		}
		for _, pat := range d.processes {
			if !pat.g.Match(p.CommandName) {
				continue
			}
			return Signal{
				Triggered: true,
				Reason: fmt.Sprintf("process %s (pid %d) at %.1f%% CPU, threshold %.1f%%",
					p.CommandName, p.PID, p.CPUPercent, d.threshold),
				Source: snapshot.SourceProcess,
				Marker: pat.raw,
				At:     s.CapturedAt,
			}
		}
	}
	return Signal{Source: snapshot.SourceProcess, At: s.CapturedAt}
}
