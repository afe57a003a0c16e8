package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"pixelgram/internal/config"
	"pixelgram/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes selected by DB_SCHEMA_MODE.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaPlan says how the store's schema is brought up to date: the embedded
// SQL migrations, GORM AutoMigrate over PersistentModels, or both in that
// order.
type SchemaPlan struct {
	Mode string
	Env  string
	SQL  bool
	Auto bool
}

// PlanSchema derives the plan for cfg. The SQL migrations are postgres
// dialect, so sqlite always auto-migrates. AutoMigrate never runs against a
// production-like store unless DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE opts in.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))
	if mode == "" {
		mode = SchemaModeHybrid
	}
	plan := SchemaPlan{Mode: mode, Env: cfg.Env}
	if driverName(cfg) == "sqlite" {
		plan.Auto = true
		return plan, nil
	}

	env := strings.ToLower(strings.TrimSpace(cfg.Env))
	prodLike := env == "production" || env == "prod" || env == "staging"

	switch mode {
	case SchemaModeSQL:
		plan.SQL = true
	case SchemaModeAuto:
		if prodLike && !cfg.DBAutoMigrateAllowDestructive {
			return SchemaPlan{}, fmt.Errorf("refusing DB_SCHEMA_MODE=auto in %q without DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.Auto = true
	case SchemaModeHybrid:
		plan.SQL = true
		plan.Auto = !prodLike
	default:
		return SchemaPlan{}, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	}
	return plan, nil
}

// Apply runs the plan, then warns about any table whose post references are
// unprotected or point at deleted posts.
func (p SchemaPlan) Apply(ctx context.Context, db *gorm.DB) error {
	if p.SQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if p.Auto {
		middleware.Logger.Info("running gorm automigrate", slog.String("mode", p.Mode), slog.String("env", p.Env))
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	refs, err := CheckPostReferences(ctx, db)
	if err != nil {
		return err
	}
	for _, r := range refs {
		if !r.Healthy() {
			middleware.Logger.Warn("post references need repair",
				slog.String("table", r.Table),
				slog.Bool("constraint", r.HasConstraint),
				slog.Int64("orphans", r.Orphans))
		}
	}
	return nil
}

// SchemaStatus is a plan together with what the store already holds.
type SchemaStatus struct {
	SchemaPlan
	Applied    []int
	Pending    []Migration
	References []ReferenceStatus
}

// Status reports applied and pending SQL migrations and, once posts exist,
// the state of every post reference.
func (p SchemaPlan) Status(ctx context.Context, db *gorm.DB) (*SchemaStatus, error) {
	status := &SchemaStatus{SchemaPlan: p}
	if p.SQL {
		applied, err := appliedVersions(ctx, db)
		if err != nil {
			return nil, err
		}
		status.Applied = applied
		for _, m := range registered {
			if !slices.Contains(applied, m.Version) {
				status.Pending = append(status.Pending, m)
			}
		}
	}
	if db.WithContext(ctx).Migrator().HasTable("posts") {
		refs, err := CheckPostReferences(ctx, db)
		if err != nil {
			return nil, err
		}
		status.References = refs
	}
	return status, nil
}
