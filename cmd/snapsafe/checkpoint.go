// cmd/snapsafe/checkpoint.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"snapsafe/internal/checkpoint"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Create, list, restore, and delete file checkpoints",
}

var checkpointCreateCmd = &cobra.Command{
	Use:   "create <file>...",
	Short: "Snapshot the given files into a new checkpoint",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		description, _ := cmd.Flags().GetString("description")
		tags, _ := cmd.Flags().GetStringSlice("tag")

		files := a.inspector.FilterExisting(args)
		if len(files) == 0 {
			return fmt.Errorf("none of the given files exist")
		}

		cp, err := a.store.CreateCheckpoint(cmd.Context(), files, description, "manual", tags)
		if err != nil {
			return err
		}

		fmt.Printf("Created checkpoint %s (%d files, %d bytes)\n", cp.ID, cp.FileCount(), cp.TotalSize())
		return nil
	},
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoints, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		opType, _ := cmd.Flags().GetString("type")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		limit, _ := cmd.Flags().GetInt("limit")

		checkpoints := a.store.ListCheckpoints(checkpoint.Filter{
			OperationType: opType,
			Tags:          tags,
			Limit:         limit,
		})
		if len(checkpoints) == 0 {
			fmt.Println("No checkpoints")
			return nil
		}

		for _, cp := range checkpoints {
			desc := cp.Description
			if desc == "" {
				desc = "(no description)"
			}
			fmt.Printf("%s  %s  %-12s  %3d files  %s\n",
				cp.ID, cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.OperationType, cp.FileCount(), desc)
		}
		return nil
	},
}

var checkpointRestoreCmd = &cobra.Command{
	Use:   "restore <checkpoint-id> [file...]",
	Short: "Restore files from a checkpoint (all files unless narrowed)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		restored, err := a.store.RestoreCheckpoint(cmd.Context(), args[0], args[1:]...)
		if err != nil {
			return err
		}

		fmt.Printf("Restored %d files from %s\n", restored, args[0])
		return nil
	},
}

var checkpointDeleteCmd = &cobra.Command{
	Use:   "delete <checkpoint-id>",
	Short: "Delete a checkpoint and its snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		if err := a.store.DeleteCheckpoint(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted checkpoint %s\n", args[0])
		return nil
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show <checkpoint-id>",
	Short: "Show a checkpoint's snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		cp, err := a.store.GetCheckpoint(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Checkpoint %s\n", cp.ID)
		fmt.Printf("  Created:     %s\n", cp.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Type:        %s\n", cp.OperationType)
		if cp.Description != "" {
			fmt.Printf("  Description: %s\n", cp.Description)
		}
		if len(cp.Tags) > 0 {
			fmt.Printf("  Tags:        %v\n", cp.Tags)
		}
		fmt.Printf("  Files:       %d (%d bytes)\n", cp.FileCount(), cp.TotalSize())
		for _, snap := range cp.Snapshots {
			marker := " "
			if snap.Compressed {
				marker = "z"
			}
			fmt.Printf("    %s %s  %s  %d bytes\n", marker, snap.ContentHash, snap.FilePath, snap.SizeBytes)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Evict checkpoints beyond the retention bound",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		removed, err := a.store.CleanupOld()
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d checkpoints\n", removed)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show checkpoint storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		checkpoints := a.store.ListCheckpoints(checkpoint.Filter{})
		size, err := a.store.StorageSize()
		if err != nil {
			return err
		}

		var files int
		var logical int64
		for _, cp := range checkpoints {
			files += cp.FileCount()
			logical += cp.TotalSize()
		}

		fmt.Printf("Checkpoints:  %d\n", len(checkpoints))
		fmt.Printf("Snapshots:    %d\n", files)
		fmt.Printf("Logical size: %d bytes\n", logical)
		fmt.Printf("On disk:      %d bytes\n", size)
		if latest := a.store.Latest(); latest != nil {
			fmt.Printf("Latest:       %s (%s)\n", latest.ID, latest.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	checkpointCreateCmd.Flags().StringP("description", "d", "", "Checkpoint description")
	checkpointCreateCmd.Flags().StringSlice("tag", nil, "Tag to attach (repeatable)")

	checkpointListCmd.Flags().String("type", "", "Filter by operation type")
	checkpointListCmd.Flags().StringSlice("tag", nil, "Filter by tag (repeatable)")
	checkpointListCmd.Flags().Int("limit", 0, "Maximum results (0 = all)")

	checkpointCmd.AddCommand(checkpointCreateCmd, checkpointListCmd, checkpointRestoreCmd,
		checkpointDeleteCmd, checkpointShowCmd)
	rootCmd.AddCommand(checkpointCmd, statsCmd, cleanupCmd)
}
