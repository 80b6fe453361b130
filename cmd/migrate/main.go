package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/craftconnect/marketplace-backend/pkg/config"
	"github.com/craftconnect/marketplace-backend/pkg/db"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
	"github.com/craftconnect/marketplace-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty applies the embedded set (create/validate default to "+migrate.SourceDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// create and validate only touch the migrations directory.
	fileDir := opts.dir
	if fileDir == "" {
		fileDir = migrate.SourceDir
	}
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fail(context.Background(), logg, errors.New("missing -name for create"))
		}
		path, err := migrate.CreateSQLMigration(fileDir, opts.name)
		if err != nil {
			fail(context.Background(), logg, fmt.Errorf("create migration: %w", err))
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(fileDir); err != nil {
			fail(context.Background(), logg, fmt.Errorf("migration validation failed: %w", err))
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fail(context.Background(), logg, err)
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if err := run(ctx, cfg, logg, opts); err != nil {
		fail(ctx, logg, err)
	}
	logg.Info(ctx, "migrate.complete")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return err
	}
	source, err := migrate.Source(opts.dir)
	if err != nil {
		return err
	}
	migrator, err := migrate.NewMigrator(sqlDB, source)
	if err != nil {
		return err
	}

	var steps []migrate.Step
	switch opts.cmd {
	case "up":
		steps, err = migrator.Up(ctx)
	case "down":
		steps, err = migrator.Down(ctx)
	case "status":
		steps, err = migrator.Status(ctx)
	case "version":
		if opts.version == "" {
			return errors.New("missing -version for version command")
		}
		steps, err = migrator.MigrateTo(ctx, opts.version)
	default:
		return fmt.Errorf("unknown -cmd value: %s", opts.cmd)
	}
	for _, step := range steps {
		fmt.Printf("%-8s %d %s\n", step.Direction, step.Version, step.Path)
	}
	if err != nil {
		return fmt.Errorf("goose %s: %w", opts.cmd, err)
	}
	return nil
}

func fail(ctx context.Context, logg *logger.Logger, err error) {
	logg.Error(ctx, "migrate.failed", err)
	os.Exit(1)
}
