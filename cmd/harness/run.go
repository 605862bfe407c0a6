package main

import (
	"github.com/spf13/cobra"

	"goa.design/harness/harness"
)

func newRunCmd() *cobra.Command {
	var inputJSON, runID string

	cmd := &cobra.Command{
		Use:   "run <flow-file>",
		Short: "Execute a flow live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := executeFlow(cmd.Context(), cfg, args[0], inputJSON, runID, harness.RecordingOptions{Mode: harness.ModeLive})
			if result != nil {
				printResult(result)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&inputJSON, "input", "", "JSON object passed to the flow as flow.input")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (defaults to a generated id)")
	return cmd
}
