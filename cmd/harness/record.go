package main

import (
	"github.com/spf13/cobra"

	"goa.design/harness/harness"
)

func newRecordCmd() *cobra.Command {
	var inputJSON, runID, name string
	var tags []string

	cmd := &cobra.Command{
		Use:   "record <flow-file>",
		Short: "Execute a flow and persist its signal log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := buildRecordingStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			rec := harness.RecordingOptions{
				Mode:        harness.ModeRecord,
				Store:       store,
				HarnessType: name,
				Tags:        tags,
			}
			result, err := executeFlow(cmd.Context(), cfg, args[0], inputJSON, runID, rec)
			if result != nil {
				printResult(result)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&inputJSON, "input", "", "JSON object passed to the flow as flow.input")
	cmd.Flags().StringVar(&runID, "run-id", "", "run id (defaults to a generated id)")
	cmd.Flags().StringVar(&name, "name", "", "harness type annotation stored with the recording")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags stored with the recording")
	return cmd
}
