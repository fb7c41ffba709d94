package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ChildEnv marks the re-executed background process
const ChildEnv = "LIMITWATCH_DAEMON_CHILD"

// ErrNotRunning is returned when no live process owns the PID file
var ErrNotRunning = errors.New("daemon is not running or PID file is stale")

type Daemon struct {
	pidFile string
}

func New(pidFile string) *Daemon {
	return &Daemon{pidFile: pidFile}
}

func (d *Daemon) PIDFile() string {
	return d.pidFile
}

func (d *Daemon) WritePID() error {
	pid := os.Getpid()
	return os.WriteFile(d.pidFile, fmt.Appendf([]byte{}, "%d\n", pid), 0644)
}

// ReadPID returns 0 when there is no PID file
func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}

	return pid, nil
}

func (d *Daemon) RemovePID() error {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks the recorded PID with signal 0 and removes a stale file
func (d *Daemon) IsRunning() (bool, int, error) {
	pid, err := d.ReadPID()
	if err != nil {
		return false, 0, err
	}

	if pid <= 0 {
		return false, 0, nil
	}

	switch err := unix.Kill(pid, 0); {
	case err == nil, errors.Is(err, unix.EPERM):
		return true, pid, nil
	default:
		_ = d.RemovePID()
		return false, 0, nil
	}
}

// Signal delivers sig to the running daemon
func (d *Daemon) Signal(sig syscall.Signal) error {
	running, pid, err := d.IsRunning()
	if err != nil {
		return fmt.Errorf("error checking daemon status: %w", err)
	}
	if !running {
		return ErrNotRunning
	}

	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			_ = d.RemovePID()
			return ErrNotRunning
		}
		return fmt.Errorf("failed to send %s: %w", unix.SignalName(sig), err)
	}
	return nil
}

// Simulate asks the running daemon to raise a manual limit
func (d *Daemon) Simulate() error {
	return d.Signal(unix.SIGUSR1)
}

func (d *Daemon) Stop() error {
	if err := d.Signal(unix.SIGTERM); err != nil {
		return err
	}

	if err := d.RemovePID(); err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	return nil
}

// IsChild reports whether this process was started by Spawn
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

// Spawn re-executes the current binary with args in a new session, its
// output appended to logPath. It returns the child's PID.
func Spawn(args []string, logPath string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to locate executable: %w", err)
	}

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	out := devNull
	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return 0, fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		out = logFile
	}

	procAttr := &os.ProcAttr{
		Env:   append(os.Environ(), ChildEnv+"=1"),
		Files: []*os.File{devNull, out, out},
		Sys: &syscall.SysProcAttr{
			Setsid: true, // Create new session
		},
	}

	process, err := os.StartProcess(exe, append([]string{exe}, args...), procAttr)
	if err != nil {
		return 0, fmt.Errorf("failed to start daemon process: %w", err)
	}
	pid := process.Pid
	_ = process.Release()

	return pid, nil
}
