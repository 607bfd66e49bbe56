package cmd

import (
	"fmt"
	"os"

	"stemdesk/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stemdesk",
	Short: "StemDesk is a web front-end for the audio-pack processing pipeline.",
	Long: `StemDesk accepts stem uploads, drives the scan/analyze/export pipeline
through the external analyzer CLI, manages the 8-slot stemmap document and
packages downloadable bundles.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
