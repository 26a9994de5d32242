package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"maverick/internal/workflows"
	"maverick/internal/workflows/registry"
	"maverick/internal/workflows/runtime"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow.yaml>",
	Short: "Check a workflow's shape and component references without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]

	loader := workflows.NewLoader(afero.NewOsFs(), ".")
	wfFile, err := loader.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load workflow: %w", err)
	}

	wf := wfFile.Definition
	if err := wf.ValidateShape(); err != nil {
		return fmt.Errorf("shape: %w", err)
	}

	comps := registry.New()
	exec := runtime.NewExecutor(runtime.Options{Comps: comps})
	if err := exec.ValidateSemantics(wf); err != nil {
		fmt.Printf("warning: %v (no components were registered for this check)\n", err)
	}

	fmt.Printf("%s: shape ok, %d top-level step(s)\n", path, len(wf.Steps))
	return nil
}
