package common

import "context"

// ProcessInfo represents one running process as seen by a process lister
type ProcessInfo struct {
	// PID is the process ID
	PID int

	// CommandName is the executable name without arguments (e.g., "screentimed")
	CommandName string

	// CPUPercent is the recent CPU utilisation, 100 meaning one full core
	CPUPercent float64
}

// ProcessLister is the universal interface for enumerating running processes
type ProcessLister interface {
	// ListProcesses returns every process visible to the current user
	ListProcesses(ctx context.Context) ([]ProcessInfo, error)

	// IsAvailable checks if this lister can run on the current system
	IsAvailable() bool

	// Name identifies the enumeration mechanism ("ps", "gopsutil")
	Name() string
}
