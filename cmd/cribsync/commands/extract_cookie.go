package commands

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(extractCookieCmd)
}

var extractCookieCmd = &cobra.Command{
	Use:   "extract-cookie",
	Short: "Scans installed browsers for the Brightwheel session cookie.",
	Run: func(cmd *cobra.Command, args []string) {
		printSessionCookie()
	},
}
