package cmd

import (
	"fmt"
	"log"

	"stemdesk/config"
	"stemdesk/db"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database connectivity check and migration",
	Long:  `Connects to the configured MySQL database and runs the schema migration.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Database: %s@%s:%s/%s\n", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName)

		gdb, err := db.Connect(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close(gdb)
		fmt.Println("Database connection successful.")

		if err := db.Migrate(gdb); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Println("Schema migration completed.")
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
}
