// Package commands implements the AutoClaw CLI commands using cobra.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "autoclaw",
		Short: "AutoClaw - desktop automation agent",
		Long: `AutoClaw is a personal automation agent: system monitoring,
scheduled tasks, messaging channels (email, Telegram, WhatsApp,
Discord), and a safety-gated command runner.

Examples:
  autoclaw serve
  autoclaw serve --interactive
  autoclaw tasks list
  autoclaw send telegram 123456 "backup finished"`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Does not overwrite variables already set.
			_ = godotenv.Load()
		},
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newStatusCmd(),
		newTasksCmd(),
		newConfigCmd(),
		newSetupCmd(),
		newSendCmd(),
		newVoiceCmd(),
		newVersionCmd(version),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "config.json", "path to the configuration file")
	return rootCmd
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = "config.json"
	}
	return path
}
