package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"stemdesk/config"
	"stemdesk/core/pipeline"
	"stemdesk/db"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis lease backend check",
	Long:  `Connects to the configured redis and exercises the stage lease (acquire, reject, release).`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Redis: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := db.ConnectRedis(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		fmt.Println("Redis connection successful.")

		ctx := context.Background()
		lock := pipeline.NewRedisLock(client, 30*time.Second)
		const probe = "lease-check"

		ok, err := lock.TryAcquire(ctx, probe)
		if err != nil || !ok {
			log.Fatalf("Lease acquire failed: ok=%v err=%v", ok, err)
		}
		if ok, _ = lock.TryAcquire(ctx, probe); ok {
			log.Fatal("Lease was acquired twice; single-flight is broken")
		}
		if err := lock.Release(ctx, probe); err != nil {
			log.Fatalf("Lease release failed: %v", err)
		}
		fmt.Println("Stage lease check passed.")
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
