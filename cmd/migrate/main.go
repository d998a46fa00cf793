package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/angelmondragon/notifystore/pkg/config"
	"github.com/angelmondragon/notifystore/pkg/db"
	"github.com/angelmondragon/notifystore/pkg/logger"
	"github.com/angelmondragon/notifystore/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	ctx := context.Background()
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations root holding one directory per dialect")
	dialect := flag.String("dialect", "", "postgres|sqlite (defaults to the configured driver)")

	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")

	flag.Parse()

	// Commands that do NOT require config or DB
	switch *cmd {
	case "create":
		if *name == "" {
			fmt.Fprintln(os.Stderr, "missing -name for create")
			os.Exit(1)
		}
		paths, err := createMigration(*dir, *dialect, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create migration: %v\n", err)
			os.Exit(1)
		}
		for _, p := range paths {
			fmt.Println("created migration:", p)
		}
		return

	case "validate":
		if err := validateMigrations(*dir, *dialect); err != nil {
			fmt.Fprintf(os.Stderr, "migration validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if *dialect == "" {
		*dialect = dbClient.Dialect()
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"cmd":     *cmd,
		"dialect": *dialect,
	})

	sqlDB, err := dbClient.SQL()
	requireResource(ctx, logg, "sql database", err)

	manager, err := migrate.NewManager(sqlDB, *dialect)
	requireResource(ctx, logg, "migration manager", err)

	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up":
		applied, err := manager.ApplyPending(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "goose up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s), now at %d\n", len(applied), manager.LatestVersion())

	case "down":
		reverted, err := manager.Rollback(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "goose down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("rolled back migration:", reverted)

	case "status":
		if err := manager.WriteStatus(ctx, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "goose status failed: %v\n", err)
			os.Exit(1)
		}

	case "version":
		if *version == "" {
			fmt.Fprintln(os.Stderr, "missing -version for version command")
			os.Exit(1)
		}
		target, err := migrate.ParseVersion(*version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -version: %v\n", err)
			os.Exit(1)
		}
		if err := manager.MigrateTo(ctx, target); err != nil {
			fmt.Fprintf(os.Stderr, "goose version migrate failed: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *cmd)
		os.Exit(1)
	}
}

func createMigration(root, dialect, name string) ([]string, error) {
	if dialect == "" {
		return migrate.CreateDialectMigrations(root, name)
	}
	p, err := migrate.CreateSQLMigration(dialectDir(root, dialect), name)
	if err != nil {
		return nil, err
	}
	return []string{p}, nil
}

func validateMigrations(root, dialect string) error {
	if dialect == "" {
		return migrate.ValidateDialects(root)
	}
	return migrate.ValidateDir(dialectDir(root, dialect))
}

func dialectDir(root, dialect string) string {
	return filepath.Join(root, dialect)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
