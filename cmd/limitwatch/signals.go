package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/limitwatch/limitwatch/internal/config"
	"github.com/limitwatch/limitwatch/internal/daemon"
)

// shutdownContext is cancelled on SIGINT or SIGTERM
func shutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// catchSimulate starts catching SIGUSR1. It has to run before the PID file
// is written: `limitwatch simulate` signals the recorded PID, and an
// uncaught SIGUSR1 terminates the process. A signal arriving before the
// monitor runs stays queued on the channel.
func catchSimulate() (<-chan os.Signal, func()) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, unix.SIGUSR1)
	return sigc, func() { signal.Stop(sigc) }
}

type simulator interface {
	Simulate(reason string) error
}

// simulateOnSignal raises a manual limit on mon for every signal on sigc
func simulateOnSignal(sigc <-chan os.Signal, mon simulator, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigc:
				logger.Info("received SIGUSR1")
				if err := mon.Simulate("simulated via SIGUSR1"); err != nil {
					logger.Warn("simulate ignored", "err", err)
				}
			}
		}
	}
}

// claimPIDFile refuses to run beside another instance and records this
// process as the running one. The returned func releases the file.
func claimPIDFile(cfg *config.Config) (func(), error) {
	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return nil, fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running && pid != os.Getpid() {
		return nil, fmt.Errorf("%s is already running (PID: %d)", appName, pid)
	}
	if err := dm.WritePID(); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}
	return func() { _ = dm.RemovePID() }, nil
}
