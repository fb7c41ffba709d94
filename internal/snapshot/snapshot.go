// Package snapshot captures point-in-time views of on-screen windows and
// running processes for the limit detector.
package snapshot

import (
	"fmt"
	"time"
)

// Source identifies where a snapshot or detection signal came from
type Source int

const (
	SourceUnknown Source = iota
	SourceWindow
	SourceProcess
	SourceManual // injected by simulate, never captured
)

func (s Source) String() string {
	switch s {
	case SourceWindow:
		return "window"
	case SourceProcess:
		return "process"
	case SourceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// MarshalText renders the source by name in JSON and YAML output
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a source name
func (s *Source) UnmarshalText(text []byte) error {
	switch string(text) {
	case "window":
		*s = SourceWindow
	case "process":
		*s = SourceProcess
	case "manual":
		*s = SourceManual
	case "unknown", "":
		*s = SourceUnknown
	default:
		return fmt.Errorf("unknown snapshot source %q", text)
	}
	return nil
}

// WindowRecord is one visible window
type WindowRecord struct {
	OwnerName string
	Title     string
	PID       int
}

// ProcessRecord is one running process
type ProcessRecord struct {
	CommandName string
	CPUPercent  float64
	PID         int
}

// Snapshot is a captured view the detector can evaluate
type Snapshot interface {
	Source() Source
}

// WindowSnapshot holds the windows visible at CapturedAt, top-most first
type WindowSnapshot struct {
	Records    []WindowRecord
	CapturedAt time.Time
}

func (WindowSnapshot) Source() Source { return SourceWindow }

// Empty reports whether no windows were captured
func (s WindowSnapshot) Empty() bool { return len(s.Records) == 0 }

// ProcessSnapshot holds the processes running at CapturedAt
type ProcessSnapshot struct {
	Records    []ProcessRecord
	CapturedAt time.Time
}

func (ProcessSnapshot) Source() Source { return SourceProcess }

// Empty reports whether no processes were captured
func (s ProcessSnapshot) Empty() bool { return len(s.Records) == 0 }

// ReadError describes a failed capture. Captures never return it; it is
// logged and handed to the provider's error hook.
type ReadError struct {
	Source Source
	Lister string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s snapshot via %s: %v", e.Source, e.Lister, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
