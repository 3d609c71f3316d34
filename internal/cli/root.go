// Package cli wires the commands of the expjudge binary.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "expjudge",
	Short: "Decide A/B experiment winners from raw interaction events",
	Long: `expjudge attributes purchases to experiment exposures, runs validity
checks on the assignment, and picks a winning variant with the
statistical evidence to back it up.

Data can come from a CSV file, a GCS object, or a local SQLite
database; see the config file and the XPJ_* environment variables.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", getEnvOrDefault("XPJ_CONFIG", ""), "config file path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
