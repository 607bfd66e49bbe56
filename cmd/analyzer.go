package cmd

import (
	"fmt"
	"log"
	"os/exec"

	"stemdesk/config"

	"github.com/spf13/cobra"
)

var analyzerCmd = &cobra.Command{
	Use:   "analyzer",
	Short: "External analyzer CLI availability check",
	Long:  `Verifies the configured analyzer binary can be found and executed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Analyzer binary: %s\n", cfg.AnalyzerPath)

		path, err := exec.LookPath(cfg.AnalyzerPath)
		if err != nil {
			log.Fatalf("Analyzer binary not found: %v", err)
		}
		fmt.Printf("Resolved to: %s\n", path)

		out, err := exec.Command(path, "--version").CombinedOutput()
		if err != nil {
			log.Fatalf("Analyzer did not run: %v\n%s", err, out)
		}
		fmt.Printf("Analyzer reports: %s", out)
	},
}

func init() {
	rootCmd.AddCommand(analyzerCmd)
}
