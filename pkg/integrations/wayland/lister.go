package wayland

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/limitwatch/limitwatch/pkg/window"
)

// Lister implements window.Lister for wlroots compositors that expose an IPC
// tree (sway, Hyprland)
type Lister struct {
	compositor  string
	hasSwaymsg  bool
	hasHyprctl  bool
	run         func(ctx context.Context, name string, args ...string) ([]byte, error)
	processName func(pid int) string
}

// NewLister creates a new Wayland lister
func NewLister() *Lister {
	l := &Lister{
		hasSwaymsg:  commandExists("swaymsg"),
		hasHyprctl:  commandExists("hyprctl"),
		run:         runCommand,
		processName: processName,
	}
	l.compositor = detectCompositor()
	return l
}

func commandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// detectCompositor attempts to detect the Wayland compositor
func detectCompositor() string {
	if os.Getenv("SWAYSOCK") != "" {
		return "sway"
	}
	if os.Getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return "hyprland"
	}

	compositors := map[string]string{
		"sway":     "sway",
		"Hyprland": "hyprland",
	}
	for process, name := range compositors {
		if err := exec.Command("pgrep", "-x", process).Run(); err == nil {
			return name
		}
	}

	return "unknown"
}

// IsAvailable checks if Wayland enumeration is available
func (l *Lister) IsAvailable() bool {
	switch l.compositor {
	case "sway":
		return l.hasSwaymsg
	case "hyprland":
		return l.hasHyprctl
	default:
		return false
	}
}

// GetDisplayServer returns "wayland"
func (l *Lister) GetDisplayServer() string {
	return "wayland"
}

// ListWindows returns the visible windows reported by the compositor
func (l *Lister) ListWindows(ctx context.Context) ([]window.WindowInfo, error) {
	switch l.compositor {
	case "sway":
		output, err := l.run(ctx, "swaymsg", "-t", "get_tree", "-r")
		if err != nil {
			return nil, errors.Wrap(err, "failed to execute swaymsg")
		}
		return parseSwayTree(output, l.processName)
	case "hyprland":
		output, err := l.run(ctx, "hyprctl", "clients", "-j")
		if err != nil {
			return nil, errors.Wrap(err, "failed to execute hyprctl")
		}
		return parseHyprlandClients(output, l.processName)
	default:
		return nil, fmt.Errorf("unsupported wayland compositor: %s", l.compositor)
	}
}

// Close cleans up resources
func (l *Lister) Close() error {
	return nil
}

type swayNode struct {
	Type             string `json:"type"`
	Name             string `json:"name"`
	AppID            string `json:"app_id"`
	PID              int    `json:"pid"`
	Visible          *bool  `json:"visible"`
	WindowProperties *struct {
		Class string `json:"class"`
	} `json:"window_properties"`
	Nodes         []swayNode `json:"nodes"`
	FloatingNodes []swayNode `json:"floating_nodes"`
}

// parseSwayTree walks the sway layout tree and collects visible view containers
func parseSwayTree(data []byte, procName func(int) string) ([]window.WindowInfo, error) {
	var root swayNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, errors.Wrap(err, "failed to decode sway tree")
	}

	var windows []window.WindowInfo
	var walk func(n swayNode)
	walk = func(n swayNode) {
		if (n.Type == "con" || n.Type == "floating_con") && n.PID > 0 {
			if n.Visible == nil || *n.Visible {
				owner := n.AppID
				if owner == "" && n.WindowProperties != nil {
					owner = n.WindowProperties.Class
				}
				if owner == "" {
					owner = procName(n.PID)
				}
				windows = append(windows, window.WindowInfo{
					OwnerName:     owner,
					Title:         n.Name,
					PID:           n.PID,
					DisplayServer: "wayland",
				})
			}
		}
		for _, c := range n.FloatingNodes {
			walk(c)
		}
		for _, c := range n.Nodes {
			walk(c)
		}
	}
	walk(root)

	return windows, nil
}

type hyprClient struct {
	Class  string `json:"class"`
	Title  string `json:"title"`
	PID    int    `json:"pid"`
	Hidden bool   `json:"hidden"`
	Mapped bool   `json:"mapped"`
}

// parseHyprlandClients decodes `hyprctl clients -j`, skipping unmapped or hidden clients
func parseHyprlandClients(data []byte, procName func(int) string) ([]window.WindowInfo, error) {
	var clients []hyprClient
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, errors.Wrap(err, "failed to decode hyprland clients")
	}

	windows := make([]window.WindowInfo, 0, len(clients))
	for _, c := range clients {
		if c.Hidden || !c.Mapped {
			continue
		}
		owner := c.Class
		if owner == "" && c.PID > 0 {
			owner = procName(c.PID)
		}
		windows = append(windows, window.WindowInfo{
			OwnerName:     owner,
			Title:         c.Title,
			PID:           c.PID,
			DisplayServer: "wayland",
		})
	}
	return windows, nil
}

func processName(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
