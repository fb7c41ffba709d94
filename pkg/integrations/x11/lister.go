package x11

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"

	"github.com/limitwatch/limitwatch/pkg/window"
)

var atomNames = []string{
	"_NET_CLIENT_LIST_STACKING",
	"_NET_CLIENT_LIST",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"_NET_WM_DESKTOP",
	"_NET_WM_WINDOW_TYPE",
	"_NET_WM_WINDOW_TYPE_DESKTOP",
	"_NET_WM_WINDOW_TYPE_DOCK",
	"_NET_WM_STATE",
	"_NET_WM_STATE_HIDDEN",
	"UTF8_STRING",
}

// Lister implements window.Lister for X11. It talks the X protocol directly
// through xgb and falls back to wmctrl when no connection can be opened.
type Lister struct {
	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom

	display   string
	hasWmctrl bool
	procName  func(pid int) string
}

// NewLister creates a new X11 window lister
func NewLister() *Lister {
	l := &Lister{
		display:  os.Getenv("DISPLAY"),
		procName: processName,
	}
	l.hasWmctrl = commandExists("wmctrl")
	return l
}

// commandExists checks if a command is available in PATH
func commandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// IsAvailable checks if X11 enumeration is available
func (l *Lister) IsAvailable() bool {
	if l.display == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.connectLocked(); err == nil {
		return true
	}
	return l.hasWmctrl
}

// GetDisplayServer returns "x11"
func (l *Lister) GetDisplayServer() string {
	return "x11"
}

// ListWindows returns the managed top-level windows, top-most first
func (l *Lister) ListWindows(ctx context.Context) ([]window.WindowInfo, error) {
	l.mu.Lock()
	err := l.connectLocked()
	sess := &xSession{conn: l.conn, root: l.root, atoms: l.atoms, procName: l.procName}
	l.mu.Unlock()

	if err != nil {
		if l.hasWmctrl {
			return l.listWmctrl(ctx)
		}
		return nil, err
	}

	type result struct {
		windows []window.WindowInfo
		err     error
	}
	done := make(chan result, 1)

	go func() {
		windows, err := sess.list()
		done <- result{windows, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			l.reset()
		}
		return res.windows, res.err
	case <-ctx.Done():
		// closing the connection unblocks any pending reply
		l.reset()
		return nil, errors.Wrap(ctx.Err(), "x11 window enumeration did not finish")
	}
}

// Close cleans up resources
func (l *Lister) Close() error {
	l.reset()
	return nil
}

func (l *Lister) reset() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (l *Lister) connectLocked() error {
	if l.conn != nil {
		return nil
	}
	if l.display == "" {
		return fmt.Errorf("DISPLAY is not set")
	}

	conn, err := xgb.NewConnDisplay(l.display)
	if err != nil {
		return errors.Wrap(err, "failed to connect to X server")
	}

	atoms := make(map[string]xproto.Atom, len(atomNames))
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return errors.Wrapf(err, "failed to intern atom %s", name)
		}
		atoms[name] = reply.Atom
	}

	l.conn = conn
	l.atoms = atoms
	l.root = xproto.Setup(conn).DefaultScreen(conn).Root
	return nil
}

// xSession is one enumeration pass over an open connection
type xSession struct {
	conn     *xgb.Conn
	root     xproto.Window
	atoms    map[string]xproto.Atom
	procName func(pid int) string
}

func (s *xSession) getProperty(win xproto.Window, atom, atomType xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(s.conn, false, win, atom, atomType, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (s *xSession) getUint32List(win xproto.Window, atom, atomType xproto.Atom) []uint32 {
	data, err := s.getProperty(win, atom, atomType, 4096)
	if err != nil {
		return nil
	}
	values := make([]uint32, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		values = append(values, xgb.Get32(data[i:]))
	}
	return values
}

func (s *xSession) list() ([]window.WindowInfo, error) {
	if _, err := xproto.GetInputFocus(s.conn).Reply(); err != nil {
		return nil, errors.Wrap(err, "x11 connection is not usable")
	}

	ids := s.getUint32List(s.root, s.atoms["_NET_CLIENT_LIST_STACKING"], xproto.AtomWindow)
	if len(ids) == 0 {
		ids = s.getUint32List(s.root, s.atoms["_NET_CLIENT_LIST"], xproto.AtomWindow)
	}

	windows := make([]window.WindowInfo, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		win := xproto.Window(ids[i])
		if s.isDesktopChrome(win) || s.isHidden(win) {
			continue
		}

		pid := 0
		if v := s.getUint32List(win, s.atoms["_NET_WM_PID"], xproto.AtomCardinal); len(v) > 0 {
			pid = int(v[0])
		}

		windows = append(windows, window.WindowInfo{
			OwnerName:     s.ownerName(win, pid),
			Title:         s.windowName(win),
			PID:           pid,
			DisplayServer: "x11",
		})
	}

	return windows, nil
}

func (s *xSession) isDesktopChrome(win xproto.Window) bool {
	types := s.getUint32List(win, s.atoms["_NET_WM_WINDOW_TYPE"], xproto.AtomAtom)
	desktop := s.getUint32List(win, s.atoms["_NET_WM_DESKTOP"], xproto.AtomCardinal)
	return isChrome(types, desktop, s.atoms["_NET_WM_WINDOW_TYPE_DESKTOP"], s.atoms["_NET_WM_WINDOW_TYPE_DOCK"])
}

// allDesktops is the _NET_WM_DESKTOP value of sticky windows (wmctrl's -1)
const allDesktops = 0xFFFFFFFF

// isChrome reports panels, docks and the desktop itself: windows of one of
// chromeTypes, or shown on every desktop
func isChrome(types, desktop []uint32, chromeTypes ...xproto.Atom) bool {
	if len(desktop) > 0 && desktop[0] == allDesktops {
		return true
	}
	for _, t := range types {
		for _, c := range chromeTypes {
			if xproto.Atom(t) == c {
				return true
			}
		}
	}
	return false
}

func (s *xSession) isHidden(win xproto.Window) bool {
	states := s.getUint32List(win, s.atoms["_NET_WM_STATE"], xproto.AtomAtom)
	for _, st := range states {
		if xproto.Atom(st) == s.atoms["_NET_WM_STATE_HIDDEN"] {
			return true
		}
	}
	return false
}

func (s *xSession) windowName(win xproto.Window) string {
	data, err := s.getProperty(win, s.atoms["_NET_WM_NAME"], s.atoms["UTF8_STRING"], 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	data, err = s.getProperty(win, xproto.AtomWmName, xproto.GetPropertyTypeAny, 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	return ""
}

// ownerName prefers the WM_CLASS class, then the process name
func (s *xSession) ownerName(win xproto.Window, pid int) string {
	data, err := s.getProperty(win, xproto.AtomWmClass, xproto.AtomString, 256)
	if err == nil && len(data) > 0 {
		if class := parseWMClass(data); class != "" {
			return class
		}
	}
	if pid > 0 {
		return s.procName(pid)
	}
	return ""
}

// parseWMClass extracts the class from the raw "instance\x00class\x00" property
func parseWMClass(data []byte) string {
	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	if len(parts) >= 2 && parts[1] != "" {
		return parts[1]
	}
	if len(parts) >= 1 {
		return parts[0]
	}
	return ""
}

// listWmctrl uses wmctrl to enumerate windows
func (l *Lister) listWmctrl(ctx context.Context) ([]window.WindowInfo, error) {
	output, err := exec.CommandContext(ctx, "wmctrl", "-l", "-p").Output()
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute wmctrl")
	}

	entries := parseWmctrlList(string(output))
	windows := make([]window.WindowInfo, 0, len(entries))
	for _, e := range entries {
		windows = append(windows, window.WindowInfo{
			OwnerName:     l.procName(e.pid),
			Title:         e.title,
			PID:           e.pid,
			DisplayServer: "x11",
		})
	}
	return windows, nil
}

type wmctrlEntry struct {
	pid   int
	title string
}

// parseWmctrlList parses `wmctrl -l -p` output, skipping sticky desktop chrome
// (desktop index -1: panels, docks, the desktop itself)
func parseWmctrlList(output string) []wmctrlEntry {
	var entries []wmctrlEntry

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		if fields[1] == "-1" {
			continue
		}

		pid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}

		title := ""
		if len(fields) > 4 {
			title = strings.Join(fields[4:], " ")
		}

		entries = append(entries, wmctrlEntry{pid: pid, title: title})
	}

	return entries
}

// processName reads the short command name of pid from /proc
func processName(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
