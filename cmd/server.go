package cmd

import (
	"stemdesk/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the StemDesk HTTP server",
	Long:  `Start the HTTP server serving the REST API and the dashboard UI.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
