// Command autopilot runs the self-funding treasury agent.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-autopilot/config"
)

var version = "dev"

// v holds configuration for every command; flags are bound onto it.
var v = config.NewViper()

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Autonomous agent that pays for its own compute",
	Long: `autopilot runs an agent that checks its wallet every cycle, keeps its
compute credit and idle USDC above safe levels, and deploys spare capital.
Every phase it runs is summarized and published to an activity log.

Settings come from .env, .env.local and .env.prod, then AUTOPILOT_* environment
variables, then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFiles(".")
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "autopilot %s\n", version)
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().String("journal-path", "", "SQLite activity journal path")
	_ = v.BindPFlag("journal_path", rootCmd.PersistentFlags().Lookup("journal-path"))

	rootCmd.AddCommand(runCmd, journalCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
