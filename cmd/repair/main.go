// Command repair sweeps relationship rows left pointing at deleted posts or
// users and flushes cached profiles when it removed any.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"pixelgram/internal/cache"
	"pixelgram/internal/config"
	"pixelgram/internal/database"
	"pixelgram/internal/repository"
	"pixelgram/internal/service"
)

func main() {
	every := flag.Duration("every", 0, "Repeat the sweep at this interval instead of running once")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	rdb := cache.Connect(context.Background(), cfg.RedisURL)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	repair := service.NewRepairService(
		repository.NewMaintenanceRepository(db),
		cache.New(rdb),
		service.StoreOptions{
			Timeout:        cfg.StoreTimeout(),
			RetryAttempts:  cfg.StoreRetryAttempts,
			InitialBackoff: 200 * time.Millisecond,
		},
	)

	ctx := context.Background()
	for {
		report, err := repair.Sweep(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		log.Printf("removed %d orphaned rows", report.Total())

		if *every <= 0 {
			return
		}
		time.Sleep(*every)
	}
}
