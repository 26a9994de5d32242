package main

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"maverick/internal/checkpoint"
)

var checkpointsWorkflowFlag string

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and manage saved checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpoint ids for a workflow",
	RunE:  runCheckpointsList,
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete [checkpoint-id]",
	Short: "Delete a checkpoint, or every checkpoint for a workflow if no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheckpointsDelete,
}

func init() {
	checkpointsCmd.PersistentFlags().StringVar(&checkpointsWorkflowFlag, "workflow", "", "workflow name (required)")
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsDeleteCmd)
}

func openStore() *checkpoint.FileStore {
	return checkpoint.NewFileStore(afero.NewOsFs(), runtimeCfg.CheckpointDir)
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	if checkpointsWorkflowFlag == "" {
		return fmt.Errorf("--workflow is required")
	}
	ids, err := openStore().ListCheckpoints(context.Background(), checkpointsWorkflowFlag)
	if err != nil {
		return fmt.Errorf("list checkpoints: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println("no checkpoints")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runCheckpointsDelete(cmd *cobra.Command, args []string) error {
	if checkpointsWorkflowFlag == "" {
		return fmt.Errorf("--workflow is required")
	}
	checkpointID := ""
	if len(args) == 1 {
		checkpointID = args[0]
	}
	if err := openStore().Delete(context.Background(), checkpointsWorkflowFlag, checkpointID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if checkpointID == "" {
		fmt.Printf("deleted all checkpoints for %s\n", checkpointsWorkflowFlag)
	} else {
		fmt.Printf("deleted %s/%s\n", checkpointsWorkflowFlag, checkpointID)
	}
	return nil
}
