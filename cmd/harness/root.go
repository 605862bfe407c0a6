package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"goa.design/harness/internal/config"
)

// cfgFile and verbose are bound to persistent flags, the way
// vanducng-goclaw/cmd/root.go's rootCmd wires --config/--verbose onto every
// sub-command.
var (
	cfgFile  string
	verbose  bool
	database string
)

var rootCmd = &cobra.Command{
	Use:           "harness",
	Short:         "Run, record and replay multi-agent flows",
	Long:          "harness drives a flow definition through the executor live, records its signal log, or replays a previously recorded run.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&database, "database", "", "override the configured store location (mongo URI, file dir or redis address, depending on backend)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRecordCmd())
	rootCmd.AddCommand(newReplayCmd())
}

// Execute runs the root command against a context cancelled on SIGINT/SIGTERM
// (so a flow mid-flight can abort cleanly instead of being killed outright),
// and returns the process exit code §6 reserves.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "harness:", err)
	}
	return exitCode(err)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithPath(cfgFile)
	if err != nil {
		return nil, usageErrorf("load config: %w", err)
	}
	return cfg, nil
}
