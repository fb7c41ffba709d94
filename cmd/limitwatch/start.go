package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/daemon"
)

var (
	startWeb     bool
	startLogFile string
)

func init() {
	cmdStart.Flags().BoolVarP(&startWeb, "web", "w", false, "also serve the web API")
	cmdStart.Flags().StringVar(&startLogFile, "log", "/tmp/limitwatch.log", "file receiving the daemon's output")
	rootCmd.AddCommand(cmdStart)
}

var cmdStart = &cobra.Command{
	Use:   "start",
	Short: "Start the monitor as a background daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		dm := daemon.New(cfg.Daemon.PIDFile)
		running, pid, err := dm.IsRunning()
		if err != nil {
			return fmt.Errorf("failed to check daemon status: %w", err)
		}
		if running {
			return fmt.Errorf("daemon is already running (PID: %d)", pid)
		}

		childArgs := []string{"run"}
		if startWeb {
			childArgs = []string{"serve"}
		}
		if configPath != "" {
			childArgs = append(childArgs, "--config", configPath)
		}
		if logLevel != "" {
			childArgs = append(childArgs, "--log-level", logLevel)
		}

		pid, err = daemon.Spawn(childArgs, startLogFile)
		if err != nil {
			return err
		}

		fmt.Printf("Daemon started successfully (PID: %d)\n", pid)
		if startWeb {
			fmt.Printf("Web API available at: http://%s\n", net.JoinHostPort(cfg.Web.Host, strconv.Itoa(cfg.Web.Port)))
		}
		fmt.Printf("Logs: %s\n", startLogFile)
		return nil
	},
}
