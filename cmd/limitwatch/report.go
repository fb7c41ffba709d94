package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/reporter"
)

var reportFormat string

func init() {
	cmdReport.Flags().StringVarP(&reportFormat, "format", "f", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(cmdReport)
}

var cmdReport = &cobra.Command{
	Use:       "report [day|week|month]",
	Short:     "Summarise detected limits and how they were answered",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: reporter.Periods,
	RunE: func(cmd *cobra.Command, args []string) error {
		periodType := "day"
		if len(args) > 0 {
			periodType = args[0]
		}

		_, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, repo, err := openRepository(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		rep := reporter.New(repo)
		report, err := rep.GenerateReport(periodType)
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}

		out, err := rep.Format(report, reportFormat)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}
