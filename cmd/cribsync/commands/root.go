package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"cribsync/lib/telemetry"

	"github.com/spf13/cobra"
)

var logLevel *string

var rootCmd = &cobra.Command{
	Use:   "cribsync",
	Short: "cribsync migrates childcare activity records from Brightwheel to Nara Baby Tracker.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := telemetry.InitSlogLevel(*logLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --log-level %q: %s\n", *logLevel, err)
			os.Exit(1)
		}
	},
}

func init() {
	logLevel = rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}
