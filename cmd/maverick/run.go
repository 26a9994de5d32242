package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"maverick/internal/checkpoint"
	"maverick/internal/logging"
	"maverick/internal/workflows"
	"maverick/internal/workflows/prereq"
	"maverick/internal/workflows/registry"
	"maverick/internal/workflows/runtime"
)

var (
	runInputsFlag    string
	runResumeFlag    string
	runCheckpointDir string
	runSkipSemantic  bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Execute a workflow definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runInputsFlag, "inputs", "", "JSON object of workflow inputs")
	runCmd.Flags().StringVar(&runResumeFlag, "resume", "", "checkpoint id to resume from")
	runCmd.Flags().StringVar(&runCheckpointDir, "checkpoint-dir", "", "directory for file-backed checkpoints (overrides config)")
	runCmd.Flags().BoolVar(&runSkipSemantic, "skip-semantic-validation", false, "skip the registry-reference pass before executing")
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]

	loader := workflows.NewLoader(afero.NewOsFs(), ".")
	wfFile, err := loader.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}

	inputs := map[string]any{}
	if runInputsFlag != "" {
		if err := json.Unmarshal([]byte(runInputsFlag), &inputs); err != nil {
			return fmt.Errorf("parse --inputs: %w", err)
		}
	}

	checkpointDir := runtimeCfg.CheckpointDir
	if runCheckpointDir != "" {
		checkpointDir = runCheckpointDir
	}
	store := checkpoint.NewFileStore(afero.NewOsFs(), checkpointDir)

	exec := runtime.NewExecutor(runtime.Options{
		Comps:                  registry.New(),
		PrereqReg:              prereq.NewRegistry(),
		Store:                  store,
		Config:                 runtimeCfg,
		Logger:                 logging.ForRun(logger, wfFile.Definition.Name, wfFile.Checksum),
		SkipSemanticValidation: runSkipSemantic,
	})

	ctx := context.Background()
	opts := runtime.ExecuteOptions{}
	if runResumeFlag != "" {
		opts.ResumeFromCheckpoint = true
		opts.CheckpointID = runResumeFlag
	}

	bus, done := exec.Execute(ctx, wfFile.Definition, inputs, opts)
	for ev := range bus.Events() {
		fmt.Printf("[%s] %s %v\n", ev.Type, ev.StepPath, ev.Payload)
	}

	outcome := <-done
	if outcome.Err != nil {
		return fmt.Errorf("workflow failed: %w", outcome.Err)
	}

	encoded, err := json.MarshalIndent(outcome.Result.FinalOutput, "", "  ")
	if err != nil {
		return fmt.Errorf("encode final output: %w", err)
	}
	fmt.Println(string(encoded))
	return nil
}
