package detector

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/limitwatch/limitwatch/pkg/integrations/common"
	"github.com/limitwatch/limitwatch/pkg/integrations/hybrid"
	"github.com/limitwatch/limitwatch/pkg/integrations/process"
	"github.com/limitwatch/limitwatch/pkg/integrations/wayland"
	"github.com/limitwatch/limitwatch/pkg/integrations/x11"
	"github.com/limitwatch/limitwatch/pkg/window"
)

// Process lister kinds accepted by NewProcessLister
const (
	ProcessSourcePS       = "ps"
	ProcessSourceGopsutil = "gopsutil"
)

// NewWindowLister builds a window lister for the current session: the native
// Wayland lister first when running under Wayland, then X11 (or XWayland)
func NewWindowLister(logger *slog.Logger) (window.Lister, error) {
	var candidates []window.Lister

	if DetectDisplayServer() == "wayland" {
		candidates = append(candidates, wayland.NewLister())
	}
	if os.Getenv("DISPLAY") != "" {
		candidates = append(candidates, x11.NewLister())
	}

	return hybrid.NewLister(logger, candidates...)
}

// NewProcessLister returns the process lister named by kind
func NewProcessLister(kind string) (common.ProcessLister, error) {
	switch kind {
	case "", ProcessSourcePS:
		return process.NewPSLister(), nil
	case ProcessSourceGopsutil:
		return process.NewGopsutilLister(), nil
	default:
		return nil, fmt.Errorf("unknown process source %q (valid: ps, gopsutil)", kind)
	}
}

func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}
