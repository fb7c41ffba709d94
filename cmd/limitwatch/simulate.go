package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/daemon"
)

func init() {
	rootCmd.AddCommand(cmdSimulate)
}

var cmdSimulate = &cobra.Command{
	Use:   "simulate",
	Short: "Make the running daemon behave as if a limit was detected",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := daemon.New(cfg.Daemon.PIDFile).Simulate(); err != nil {
			if errors.Is(err, daemon.ErrNotRunning) {
				return fmt.Errorf("%s is not running; start it with '%s start' or '%s run'", appName, appName, appName)
			}
			return err
		}

		fmt.Println("Simulated limit sent")
		return nil
	},
}
