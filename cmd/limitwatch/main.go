package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

const appName = "limitwatch"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   appName + " [command]",
	Short: "limitwatch: screen time limit monitor",
	Long: `limitwatch polls the visible windows and running processes for signs that an
operating system screen time limit has fired, then asks how to proceed: OK
resumes monitoring, Extend pauses detection for a grace period.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+defaultConfigHint()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (DEBUG, INFO, WARN, ERROR)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
