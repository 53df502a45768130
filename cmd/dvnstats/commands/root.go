// Package commands implements the dvnstats CLI as a cobra command tree.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information, injected at build time by main.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// cfgFile is the global --config flag.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dvnstats",
	Short: "dvnstats - cross-chain messaging configuration indexer",
	Long: `dvnstats consumes a cross-chain messaging protocol's security-config
event stream, merges per-route defaults with per-application overrides,
and serves the resolved configuration over a read-only HTTP API.

Use "dvnstats [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and executes it.
// Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dvnstats/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path from the global --config flag.
func GetConfigFile() string {
	return cfgFile
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("dvnstats %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}
