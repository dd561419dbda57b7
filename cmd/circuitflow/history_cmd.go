package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/impromptu-ai/circuitflow/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.New(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		fmt.Printf("%-20s %-8s %8s %10s %9s  %s\n", "WHEN", "STATUS", "TOKENS", "COST", "DURATION", "PROMPT")
		for _, rec := range records {
			prompt := rec.UserInput
			if len(prompt) > 40 {
				prompt = prompt[:37] + "..."
			}
			fmt.Printf("%-20s %-8s %8d %9.4f$ %7dms  %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				rec.Status, rec.TotalTokens, rec.TotalCost, rec.DurationMS, prompt)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to list")
}
