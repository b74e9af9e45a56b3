// Package cmd implements the nutrichat command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nutrichat",
	Short: "nutrichat - personal nutrition assistant",
	Long: `nutrichat is a conversational nutrition assistant grounded in your
health profile and lab test history. It classifies each message, exposes
profile and test-result tools to the model only when the message calls for
them, and analyzes submitted test results in a durable background pipeline.

Running nutrichat without arguments starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
