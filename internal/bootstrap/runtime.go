// Package bootstrap wires the process-wide store and Redis connections.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"pixelgram/internal/cache"
	"pixelgram/internal/config"
	"pixelgram/internal/database"
	"pixelgram/internal/middleware"
	"pixelgram/internal/models"
	"pixelgram/internal/observability"
	"pixelgram/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo fills an empty development store with demo data.
	SeedDemo bool
}

// InitRuntime connects to the store (applying the schema policy) and to
// Redis. A nil Redis client means Redis was unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := observability.RegisterGormMetrics(db); err != nil {
		middleware.Logger.Warn("gorm metrics not registered", slog.String("error", err.Error()))
	}

	r := cache.Connect(ctx, cfg.RedisURL)

	if opts.SeedDemo {
		if err := ensureDemoData(ctx, cfg, db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, r, nil
}

// ensureDemoData seeds only a development store that has no users yet.
func ensureDemoData(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if !strings.EqualFold(cfg.Env, "development") {
		return nil
	}

	var users int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return nil
	}

	opts := seed.DefaultOptions()
	opts.ShouldClean = false
	seeder, err := seed.NewSeeder(db, opts)
	if err != nil {
		return err
	}
	if _, err := seeder.Run(ctx); err != nil {
		return err
	}
	middleware.Logger.Info("development demo data seeded", slog.String("password", seed.SeedPassword))
	return nil
}
