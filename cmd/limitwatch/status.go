package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/config"
	"github.com/limitwatch/limitwatch/internal/daemon"
	"github.com/limitwatch/limitwatch/internal/web"
	"github.com/limitwatch/limitwatch/pkg/detector"
)

var statusConfigDump bool

func init() {
	cmdStatus.Flags().BoolVar(&statusConfigDump, "config-dump", false, "print the effective configuration as YAML")
	rootCmd.AddCommand(cmdStatus)
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and the monitor state",
	RunE: func(cmd *cobra.Command, args []string) error {
		loader, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if statusConfigDump {
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			if used := loader.ConfigFileUsed(); used != "" {
				fmt.Printf("# %s\n", used)
			}
			fmt.Print(out)
			return nil
		}

		running, pid, err := daemon.New(cfg.Daemon.PIDFile).IsRunning()
		if err != nil {
			return fmt.Errorf("failed to check daemon status: %w", err)
		}

		if !running {
			fmt.Println("Status: Not running")
		} else {
			fmt.Printf("Status: Running (PID: %d)\n", pid)
		}
		fmt.Printf("Poll Interval: %v\n", cfg.Monitor.PollInterval)
		fmt.Printf("Extension: %v\n", cfg.ExtendDuration())
		fmt.Printf("Display Server: %s\n", detector.DetectDisplayServer())
		fmt.Printf("Process Source: %s\n", cfg.Snapshot.ProcessSource)

		if !running {
			return nil
		}

		st, err := fetchStatus(cfg)
		if err != nil {
			// Daemons started without --web have no API
			return nil
		}

		fmt.Printf("\nMonitor:\n")
		fmt.Printf("  State: %s\n", st.State)
		if st.SessionID != "" {
			fmt.Printf("  Session: %s\n", st.SessionID)
			fmt.Printf("  Started: %s\n", st.StartedAt.Format(time.DateTime))
			fmt.Printf("  Triggers: %d\n", st.Triggers)
		}
		if st.LastSignal != nil {
			fmt.Printf("  Last Limit: %s\n", st.LastSignal.Reason)
		}
		if st.Remaining != "" {
			fmt.Printf("  Detection Resumes In: %s\n", st.Remaining)
		}
		return nil
	},
}

func fetchStatus(cfg *config.Config) (*web.StatusResponse, error) {
	client := &http.Client{Timeout: 2 * time.Second}
	url := "http://" + net.JoinHostPort(cfg.Web.Host, strconv.Itoa(cfg.Web.Port)) + "/api/status"

	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}

	var st web.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}
