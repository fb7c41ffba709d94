package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/daemon"
	"github.com/limitwatch/limitwatch/internal/monitor"
)

var (
	runInterval time.Duration
	runNotify   string
)

func init() {
	cmdRun.Flags().DurationVarP(&runInterval, "interval", "i", 0, "override the poll interval (e.g. 5s)")
	cmdRun.Flags().StringVarP(&runNotify, "notify", "n", "", "notification mode: log, terminal, zenity or prompt")
	rootCmd.AddCommand(cmdRun)
}

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Monitor in the foreground",
	Long:  `Run the monitor in the foreground until interrupted. Send SIGUSR1 to simulate a limit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(appOptions{notifyMode: runNotify, interval: runInterval})
		if err != nil {
			return err
		}
		defer a.Close()

		usr1, stopUSR1 := catchSimulate()
		defer stopUSR1()

		release, err := claimPIDFile(a.cfg)
		if err != nil {
			return err
		}
		defer release()

		ctx, stop := shutdownContext(cmd.Context())
		defer stop()

		services := []func(context.Context) error{simulateOnSignal(usr1, a.monitor, a.logger)}
		if !daemon.IsChild() && a.cfg.Notify.Mode != "terminal" {
			services = append(services, spinnerStatus(a.monitor))
		}

		return a.Run(ctx, services...)
	},
}

// spinnerStatus keeps a spinner on stdout whose suffix tracks the monitor state
func spinnerStatus(mon *monitor.Monitor) func(context.Context) error {
	return func(ctx context.Context) error {
		transitions, unsubscribe := mon.Subscribe()
		defer unsubscribe()

		spin := spinner.New(spinner.CharSets[21], 120*time.Millisecond, spinner.WithWriter(os.Stdout))
		spin.Suffix = " " + monitor.StateMonitoring.String()
		spin.Start()
		defer spin.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case t, ok := <-transitions:
				if !ok {
					return nil
				}
				suffix := " " + t.To.String()
				if t.Signal != nil {
					suffix += ": " + t.Signal.Reason
				}
				if t.Response != nil {
					suffix += fmt.Sprintf(" (%s)", t.Response)
				}
				spin.Lock()
				spin.Suffix = suffix
				spin.Unlock()
			}
		}
	}
}
