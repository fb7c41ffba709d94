package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	clearYes       bool
	clearOlderThan time.Duration
)

func init() {
	cmdClear.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
	cmdClear.Flags().DurationVar(&clearOlderThan, "older-than", 0, "only delete events older than this age (e.g. 720h)")
	rootCmd.AddCommand(cmdClear)
}

var cmdClear = &cobra.Command{
	Use:   "clear",
	Short: "Delete recorded limit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if !clearYes {
			if clearOlderThan > 0 {
				fmt.Printf("This will delete limit events older than %s. Are you sure? (yes/no): ", clearOlderThan)
			} else {
				fmt.Print("This will delete all limit history. Are you sure? (yes/no): ")
			}
			var response string
			fmt.Scanln(&response)
			if response != "yes" && response != "y" {
				fmt.Println("Operation cancelled")
				return nil
			}
		}

		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if clearOlderThan > 0 {
			n, err := repo.DeleteOldEvents(time.Now().Add(-clearOlderThan))
			if err != nil {
				return fmt.Errorf("failed to delete events: %w", err)
			}
			fmt.Printf("Deleted %d events\n", n)
			return nil
		}

		if err := repo.Clear(); err != nil {
			return fmt.Errorf("failed to clear database: %w", err)
		}
		fmt.Println("Database cleared successfully")
		return nil
	},
}
