// Package cli provides workflow file commands.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmsolberg/conductor/internal/workflows"
)

func init() {
	rootCmd.AddCommand(workflowCmd)

	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowValidateCmd)
}

var workflowCmd = &cobra.Command{
	Use:     "workflow",
	Aliases: []string{"wf"},
	Short:   "Inspect and validate workflow files",
}

var workflowShowCmd = &cobra.Command{
	Use:   "show <workflow.toml>",
	Short: "Show a workflow after normalization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := workflows.Load(args[0])
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, wf)
		}

		printWorkflow(wf)
		return nil
	},
}

var workflowValidateCmd = &cobra.Command{
	Use:   "validate <workflow.toml>",
	Short: "Validate a workflow file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, loadErr := workflows.Load(args[0])

		result := workflowValidationResult{Valid: loadErr == nil}
		if wf != nil {
			result.Name = wf.Name
			result.Path = wf.Source
		} else {
			result.Path = args[0]
		}

		var list *workflows.ErrorList
		if loadErr != nil && errors.As(loadErr, &list) {
			result.Errors = list.Errors
		}

		if IsJSONOutput() || IsJSONLOutput() {
			if err := WriteOutput(os.Stdout, result); err != nil {
				return err
			}
		} else if loadErr == nil {
			fmt.Printf("%s: valid (%d steps)\n", result.Path, len(wf.Steps))
		}

		if loadErr != nil {
			if IsJSONOutput() || IsJSONLOutput() {
				return &ExitError{Code: 1, Err: loadErr, Printed: true}
			}
			return loadErr
		}
		return nil
	},
}

type workflowValidationResult struct {
	Name   string                    `json:"name,omitempty"`
	Path   string                    `json:"path,omitempty"`
	Valid  bool                      `json:"valid"`
	Errors []workflows.WorkflowError `json:"errors,omitempty"`
}

func printWorkflow(wf *workflows.Workflow) {
	fmt.Printf("Name:        %s\n", wf.Name)
	if wf.Description != "" {
		fmt.Printf("Description: %s\n", wf.Description)
	}
	if wf.Runtime != "" {
		fmt.Printf("Runtime:     %s\n", wf.Runtime)
	}
	fmt.Printf("Steps:       %d\n", len(wf.Steps))
	fmt.Println()

	for i, step := range wf.Steps {
		fmt.Printf("%d. %s\n", i+1, step.Title)
		if step.UseInnerLoop {
			fmt.Printf("   loop until %q, max %d iterations\n", step.CompletionPromise, step.MaxIterations)
		}
		if step.VerifyPrompt != "" {
			fmt.Printf("   verify expects %q\n", step.VerifyPromise)
		}
		if step.Model != "" {
			fmt.Printf("   model %s\n", step.Model)
		}
	}
}
