package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/angelmondragon/gatepass-backend/internal/eventdata"
	"github.com/angelmondragon/gatepass-backend/pkg/config"
	"github.com/angelmondragon/gatepass-backend/pkg/db"
	"github.com/angelmondragon/gatepass-backend/pkg/logger"
	"github.com/angelmondragon/gatepass-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

var errUsage = errors.New("usage")

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate|reset-shadow")
	fs.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	switch {
	case opts.cmd == "create" && opts.name == "":
		return opts, fmt.Errorf("%w: -name is required for create", errUsage)
	case opts.cmd == "version" && opts.version == "":
		return opts, fmt.Errorf("%w: -version is required for version", errUsage)
	}
	return opts, nil
}

// offline commands work on the migrations directory alone.
func runOffline(opts options, stdout io.Writer) (bool, error) {
	switch opts.cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return true, fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(stdout, "created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return true, fmt.Errorf("validate migrations: %w", err)
		}
		fmt.Fprintln(stdout, "migration validation passed")
		return true, nil
	}
	return false, nil
}

func runOnline(ctx context.Context, opts options, client *db.Client, stdout io.Writer) error {
	if opts.cmd == "reset-shadow" {
		return resetShadow(ctx, client, stdout)
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
	case "version":
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	default:
		return fmt.Errorf("%w: unknown -cmd value %q", errUsage, opts.cmd)
	}
}

// resetShadow empties the test-mode tables so organizers can rehearse an
// event from a clean slate. Live tables are never touched.
func resetShadow(ctx context.Context, client *db.Client, stdout io.Writer) error {
	return client.WithTx(ctx, func(tx *gorm.DB) error {
		for _, table := range eventdata.ShadowTables() {
			res := tx.Exec("DELETE FROM " + table)
			if res.Error != nil {
				return fmt.Errorf("reset %s: %w", table, res.Error)
			}
			fmt.Fprintf(stdout, "%s: %d rows removed\n", table, res.RowsAffected)
		}
		return nil
	})
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

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

	handled, err := runOffline(opts, os.Stdout)
	if handled {
		requireResource(ctx, logg, opts.cmd, err)
		return
	}

	client, err := db.New(ctx, cfg.DB, db.Options{UseSQLite: cfg.FeatureFlags.UseSQLite}, logg)
	requireResource(ctx, logg, "database", err)
	defer client.Close()

	logg.Info(ctx, "migrate ready")
	if err := runOnline(ctx, opts, client, os.Stdout); err != nil {
		logg.Error(ctx, "migrate command failed", err)
		client.Close()
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
