package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "feishubot",
	Short: "feishubot is a demo bot built on the Feishu SDK",
	Long: `feishubot runs a minimal Feishu (Lark) bot: it serves the event
webhook, answers URL verification challenges, and echoes incoming text
messages back to the sender through the Feishu messaging API.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
