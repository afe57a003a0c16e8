// Command migrate applies, inspects and rolls back the pixelgram schema, and
// verifies that comments, likes and bookmarks only reference live posts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"pixelgram/internal/config"
	"pixelgram/internal/database"
	"pixelgram/internal/middleware"

	"gorm.io/gorm"
)

type command struct {
	args string
	run  func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error
}

var commands = map[string]command{
	"up":     {run: runUp},
	"auto":   {run: runAuto},
	"status": {run: runStatus},
	"down":   {args: "<version>", run: runDown},
	"check":  {run: runCheck},
}

var errReferences = errors.New("post references need repair")

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	middleware.Logger = middleware.NewLogger(cfg.Env, os.Getenv("LOG_LEVEL"))

	if err := run(cfg, flag.Args()); err != nil {
		middleware.Logger.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	names := make([]string, 0, len(commands))
	for name, cmd := range commands {
		names = append(names, strings.TrimSpace(name+" "+cmd.args))
	}
	sort.Strings(names)
	fmt.Fprintf(os.Stderr, "usage: migrate <command>\n\ncommands:\n  %s\n", strings.Join(names, "\n  "))
}

func run(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command given")
	}
	name := strings.ToLower(strings.TrimSpace(args[0]))
	cmd, ok := commands[name]
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() { _ = database.Close(db) }()

	return cmd.run(context.Background(), db, cfg, args[1:])
}

// runUp applies pending SQL migrations, then reports post references so a
// deploy notices rows the new constraints could not cover.
func runUp(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("sql migrations: %w", err)
	}
	middleware.Logger.Info("sql migrations applied", slog.Int("known", len(database.Migrations())))
	if err := runCheck(ctx, db, cfg, nil); err != nil && !errors.Is(err, errReferences) {
		return err
	}
	return nil
}

func runAuto(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	plan := database.SchemaPlan{Mode: database.SchemaModeAuto, Env: cfg.Env, Auto: true}
	if err := plan.Apply(ctx, db); err != nil {
		return fmt.Errorf("auto schema: %w", err)
	}
	middleware.Logger.Info("models migrated", slog.Int("models", len(database.PersistentModels())))
	return nil
}

func runStatus(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	plan, err := database.PlanSchema(cfg)
	if err != nil {
		return err
	}
	status, err := plan.Status(ctx, db)
	if err != nil {
		return fmt.Errorf("schema status: %w", err)
	}
	middleware.Logger.Info("schema status",
		slog.String("mode", status.Mode),
		slog.String("env", status.Env),
		slog.Bool("run_sql", status.SQL),
		slog.Bool("run_auto", status.Auto),
		slog.Any("applied", status.Applied),
		slog.Int("pending", len(status.Pending)))
	for _, m := range status.Pending {
		middleware.Logger.Info("pending migration", slog.String("migration", m.String()))
	}
	logReferences(ctx, status.References)
	return nil
}

func runDown(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("down needs a version")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	if err := database.RollbackMigration(ctx, db, version); err != nil {
		return fmt.Errorf("rollback %d: %w", version, err)
	}
	middleware.Logger.Info("migration rolled back", slog.Int("version", version))
	return nil
}

// runCheck fails when a table lacks its cascading post constraint or holds
// rows pointing at deleted posts. cmd/repair clears the latter.
func runCheck(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	refs, err := database.CheckPostReferences(ctx, db)
	if err != nil {
		return err
	}
	if !logReferences(ctx, refs) {
		return errReferences
	}
	return nil
}

// logReferences logs one line per table, at warn when it is unhealthy, and
// reports whether every table is healthy.
func logReferences(ctx context.Context, refs []database.ReferenceStatus) bool {
	healthy := true
	for _, r := range refs {
		level := slog.LevelInfo
		if !r.Healthy() {
			level = slog.LevelWarn
			healthy = false
		}
		middleware.Logger.Log(ctx, level, "post references",
			slog.String("table", r.Table),
			slog.Bool("constraint", r.HasConstraint),
			slog.Int64("orphans", r.Orphans))
	}
	return healthy
}
