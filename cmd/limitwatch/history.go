package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/models"
)

var historyLimit int

func init() {
	cmdHistory.Flags().IntVarP(&historyLimit, "limit", "l", 20, "number of events to show")
	rootCmd.AddCommand(cmdHistory)
}

var cmdHistory = &cobra.Command{
	Use:   "history",
	Short: "List the most recent limit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		events, err := repo.GetRecent(historyLimit)
		if err != nil {
			return fmt.Errorf("failed to fetch events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No limit events recorded")
			return nil
		}

		fmt.Printf("%-19s  %-8s  %-12s  %s\n", "TRIGGERED", "SOURCE", "RESPONSE", "REASON")
		for _, e := range events {
			fmt.Printf("%-19s  %-8s  %-12s  %s\n",
				e.TriggeredAt.Format(time.DateTime), e.Source, describeResponse(e), e.Reason)
		}
		return nil
	},
}

func describeResponse(e *models.LimitEvent) string {
	switch e.Response {
	case models.ResponseNone:
		return "-"
	case models.ResponseExtend:
		return fmt.Sprintf("extend %dm", e.ExtendMinutes)
	default:
		return e.Response
	}
}
