package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/daemon"
)

func init() {
	rootCmd.AddCommand(cmdStop)
}

var cmdStop = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		dm := daemon.New(cfg.Daemon.PIDFile)
		_, pid, _ := dm.IsRunning()
		if err := dm.Stop(); err != nil {
			if errors.Is(err, daemon.ErrNotRunning) {
				fmt.Println("Daemon is not running")
				return nil
			}
			return fmt.Errorf("failed to stop daemon: %w", err)
		}

		fmt.Printf("Daemon stopped successfully (PID: %d)\n", pid)
		return nil
	},
}
