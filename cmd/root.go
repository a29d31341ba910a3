package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gauge",
	Short: "Gauge is a transport performance benchmark",
	Long: `Gauge coordinates two or more cooperating peers that jointly run a
transport performance benchmark: the peers exchange the test configuration,
synchronize phase transitions, and report latency, bandwidth, and message
rate results.`,
	SilenceUsage: true,
}

// Execute runs the root command and maps any failure to a non-zero exit.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
