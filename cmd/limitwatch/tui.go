package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/tui"
)

func init() {
	rootCmd.AddCommand(cmdTUI)
}

var cmdTUI = &cobra.Command{
	Use:   "tui",
	Short: "Monitor with an interactive terminal UI",
	Long:  `Run the monitor in-process and answer limit prompts from the terminal UI.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel = firstNonEmpty(logLevel, "ERROR")
		a, err := newApp(appOptions{notifyMode: "prompt"})
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

		ui := func(ctx context.Context) error {
			if err := tui.Run(ctx, a.monitor, a.cfg.Monitor.ExtendMinutes); err != nil {
				return fmt.Errorf("tui exited with error: %w", err)
			}
			// Quitting the UI ends the session
			return errQuit
		}

		if err := a.Run(ctx, simulateOnSignal(usr1, a.monitor, a.logger), ui); err != nil && !errors.Is(err, errQuit) {
			return err
		}
		return nil
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
