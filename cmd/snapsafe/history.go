// cmd/snapsafe/history.go
package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent plan executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")

		store, err := a.openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.RecentExecutions(limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No executions recorded")
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s  %-15s  %2d/%2d steps  %-8s  %s\n",
				rec.ExecutedAt.Format("2006-01-02 15:04:05"), rec.Outcome,
				rec.StepsCompleted, rec.StepCount, rec.RiskLevel, rec.Request)
			for _, e := range rec.Errors {
				fmt.Printf("    %s\n", e)
			}
		}
		return nil
	},
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Summarize execution outcomes over a time window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		since, _ := cmd.Flags().GetDuration("since")

		store, err := a.openHistory()
		if err != nil {
			return err
		}
		defer store.Close()

		analytics, err := store.GenerateAnalytics(since)
		if err != nil {
			return err
		}

		fmt.Printf("Plans executed:  %d\n", analytics.TotalPlans)
		fmt.Printf("Successful:      %d\n", analytics.SuccessfulPlans)
		fmt.Printf("Failed:          %d\n", analytics.FailedPlans)
		fmt.Printf("Success rate:    %.1f%%\n", analytics.SuccessRate)
		fmt.Printf("Avg duration:    %s\n", analytics.AvgDuration.Round(time.Millisecond))

		if len(analytics.OperationCounts) > 0 {
			fmt.Println("\nOperations:")
			for _, op := range sortedCountKeys(analytics.OperationCounts) {
				fmt.Printf("  %-20s %d\n", op, analytics.OperationCounts[op])
			}
		}
		if len(analytics.SuccessRateByRisk) > 0 {
			fmt.Println("\nSuccess rate by risk:")
			for _, level := range sortedRateKeys(analytics.SuccessRateByRisk) {
				fmt.Printf("  %-10s %.1f%%\n", level, analytics.SuccessRateByRisk[level])
			}
		}
		for _, rec := range analytics.Recommendations {
			fmt.Printf("\nNote: %s\n", rec)
		}
		return nil
	},
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRateKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Maximum executions to show")
	analyticsCmd.Flags().Duration("since", 30*24*time.Hour, "Time window to analyze")
	rootCmd.AddCommand(historyCmd, analyticsCmd)
}
