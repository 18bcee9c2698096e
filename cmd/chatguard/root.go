package main

import (
	"github.com/spf13/cobra"

	"github.com/creastat/chatguard/internal/config"
)

const version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "chatguard",
	Short:   "Guard rails and session store for a subject-scoped assistant",
	Version: version,
	Long: `chatguard screens user questions against the selected subjects and keeps
the conversation history of each session, in memory and in a durable store.`,
	Example: `  # Run the session reaper and the metrics endpoint
  $ chatguard serve

  # Check a question against one or more subjects
  $ chatguard check -s codigo "como faço merge de uma branch no git?"

  # Sweep inactive sessions once
  $ chatguard sweep --timeout 30m

  # Inspect stored sessions
  $ chatguard sessions list`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file (default: configs/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
