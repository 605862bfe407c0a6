package main

import (
	"github.com/spf13/cobra"

	"goa.design/harness/harness"
)

func newReplayCmd() *cobra.Command {
	var recordingID string
	var recordedPacing bool

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded run; provider calls are suppressed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if recordingID == "" {
				return usageErrorf("--recording is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := buildRecordingStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			pacing := harness.PacingFast
			if recordedPacing {
				pacing = harness.PacingRecorded
			}
			result, err := executeReplay(cmd.Context(), store, recordingID, pacing)
			if result != nil {
				printResult(result)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&recordingID, "recording", "", "id of the recording to replay")
	cmd.Flags().BoolVar(&recordedPacing, "recorded-pacing", false, "honor the recording's original inter-signal timing instead of replaying as fast as possible")
	return cmd
}
