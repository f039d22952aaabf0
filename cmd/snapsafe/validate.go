// cmd/snapsafe/validate.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [checkpoint-id]",
	Short: "Verify checkpoint integrity (all checkpoints unless one is named)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			report, err := a.store.Validate(args[0])
			if err != nil {
				return err
			}
			printValidation(report.CheckpointID, report.Valid, report.Issues, report.Warnings)
			return nil
		}

		store, err := a.store.ValidateAll()
		if err != nil {
			return err
		}
		for _, report := range store.Reports {
			printValidation(report.CheckpointID, report.Valid, report.Issues, report.Warnings)
		}
		fmt.Printf("\n%d checkpoints: %d valid, %d invalid\n", store.Total, store.Valid, store.Invalid)
		if store.Invalid > 0 {
			return fmt.Errorf("%d checkpoints failed validation", store.Invalid)
		}
		return nil
	},
}

func printValidation(id string, valid bool, issues, warnings []string) {
	status := "OK"
	if !valid {
		status = "INVALID"
	}
	fmt.Printf("%s  %s\n", id, status)
	for _, issue := range issues {
		fmt.Printf("  issue:   %s\n", issue)
	}
	for _, warning := range warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}

var repairCmd = &cobra.Command{
	Use:   "repair [checkpoint-id]",
	Short: "Drop unrecoverable snapshots and orphaned blobs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		keepCorrupted, _ := cmd.Flags().GetBool("keep-corrupted")

		if len(args) == 1 {
			report, err := a.store.Repair(args[0], !keepCorrupted)
			if err != nil {
				return err
			}
			printRepair(report.CheckpointID, report.Repaired, report.ActionsTaken, report.RemainingIssues)
			return nil
		}

		reports, err := a.store.AutoRepairAll()
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Println("Nothing to repair")
			return nil
		}
		for _, report := range reports {
			printRepair(report.CheckpointID, report.Repaired, report.ActionsTaken, report.RemainingIssues)
		}
		return nil
	},
}

func printRepair(id string, repaired bool, actions, remaining []string) {
	status := "repaired"
	if !repaired {
		status = "still has issues"
	}
	fmt.Printf("%s  %s\n", id, status)
	for _, action := range actions {
		fmt.Printf("  %s\n", action)
	}
	for _, issue := range remaining {
		fmt.Printf("  remaining: %s\n", issue)
	}
}

func init() {
	repairCmd.Flags().Bool("keep-corrupted", false, "Keep corrupted snapshot records instead of dropping them")
	rootCmd.AddCommand(validateCmd, repairCmd)
}
