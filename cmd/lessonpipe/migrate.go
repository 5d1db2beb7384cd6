package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BaSui01/lessonpipe/config"
	"github.com/BaSui01/lessonpipe/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		printMigrateUsage(stderr)
		return newUsageError("migrate subcommand is required")
	}

	subcommand, subargs := args[0], args[1:]
	switch subcommand {
	case "up", "down", "status", "version", "info", "steps", "force":
	case "help", "-h", "--help":
		printMigrateUsage(stdout)
		return nil
	default:
		printMigrateUsage(stderr)
		return newUsageError("unknown migrate subcommand: %s", subcommand)
	}

	// steps/force 的位置参数可能是负数，先于 flag 取出
	var positional []string
	if (subcommand == "steps" || subcommand == "force") && len(subargs) > 0 && !strings.HasPrefix(subargs[0], "--") {
		positional, subargs = []string{subargs[0]}, subargs[1:]
	}

	fs := flag.NewFlagSet("migrate "+subcommand, flag.ContinueOnError)
	fs.SetOutput(stderr)
	migrator, rest, err := createMigrator(fs, subargs)
	if err != nil {
		return err
	}
	rest = append(positional, rest...)
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)

	switch subcommand {
	case "up":
		return cli.RunUp(ctx)
	case "down":
		return cli.RunDown(ctx)
	case "status":
		return cli.RunStatus(ctx)
	case "version":
		return cli.RunVersion(ctx)
	case "info":
		return cli.RunInfo(ctx)
	case "steps":
		n, err := intArg(rest, "steps")
		if err != nil {
			return err
		}
		return cli.RunSteps(ctx, n)
	default: // force
		v, err := intArg(rest, "version")
		if err != nil {
			return err
		}
		return cli.RunForce(ctx, v)
	}
}

// createMigrator creates a migrator from command line flags. --db-type with
// --db-url skips the config file; --db-type alone overrides the configured driver.
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, []string, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, err
		}
		return nil, nil, newUsageError("%v", err)
	}

	cfg := config.DefaultConfig()
	explicit := *dbType != "" && *dbURL != ""
	if !explicit {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			return nil, nil, err
		}
		if *dbType != "" {
			cfg.Database.Driver = *dbType
		}
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}

	var m *migration.DefaultMigrator
	if explicit {
		m, err = migration.NewMigratorFromURL(*dbType, *dbURL, logger)
	} else {
		m, err = migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
	}
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, fs.Args(), nil
}

func intArg(args []string, name string) (int, error) {
	if len(args) != 1 {
		return 0, newUsageError("expected exactly one <%s> argument", name)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, newUsageError("invalid %s %q: %v", name, args[0], err)
	}
	return n, nil
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  lessonpipe migrate <subcommand> [options] [argument]

Subcommands:
  up            Apply all pending migrations
  down          Rollback the last migration
  steps <n>     Apply (n > 0) or roll back (n < 0) n migrations
  status        Show migration status
  version       Show current migration version
  info          Show current, latest and pending counts
  force <v>     Force set migration version (use with caution)
  help          Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  lessonpipe migrate up
  lessonpipe migrate up --db-type sqlite --db-url "file:lessonpipe.db?mode=rwc"
  lessonpipe migrate steps -1
  lessonpipe migrate force 1`)
}
