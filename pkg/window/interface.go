package window

import "context"

// WindowInfo represents one on-screen window as seen by a window lister
type WindowInfo struct {
	OwnerName     string // owning application or process name
	Title         string
	PID           int
	DisplayServer string // "x11" or "wayland"
}

// Lister is the interface that all window enumeration implementations must satisfy
type Lister interface {
	// ListWindows returns the visible, non-desktop windows in stacking order
	ListWindows(ctx context.Context) ([]WindowInfo, error)

	// IsAvailable checks if this lister can run on the current system
	IsAvailable() bool

	// GetDisplayServer returns the display server type ("x11" or "wayland")
	GetDisplayServer() string

	// Close cleans up any resources used by the lister
	Close() error
}
