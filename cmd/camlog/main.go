// camlog - Dark Age of Camelot combat log analyzer with a live HTTP/SSE API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "camlog",
	Short: "Combat log analyzer for Dark Age of Camelot",
	Long: `camlog tails a Dark Age of Camelot chat log, parses combat events,
groups them into sessions and serves the results over an HTTP API with a
live Server-Sent-Events stream.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
}

func main() {
	rootCmd.AddCommand(serveCmd, parseCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
