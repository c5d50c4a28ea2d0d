// Command migrator applies, rolls back, and inspects PromptForge's database schema.
//
// It is a thin CLI wrapper around the migrations package, which embeds the
// actual SQL migration files via go:embed for zero-config deployment.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/promptforge/promptforge/migrations"
)

// Build-time information variables (set via -ldflags during compilation).
//
//nolint:gochecknoglobals // required for build-time version injection via -ldflags -X
var (
	version   = "1.0.0-dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

var (
	// ErrUnknownCommand is returned when the CLI is invoked with an unrecognized subcommand.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrDropRequiresForce guards the destructive drop command behind an explicit flag.
	ErrDropRequiresForce = errors.New(
		"drop command requires --force flag for safety (this will destroy all data)",
	)
)

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help information")
		showVersion = flag.Bool("version", false, "Show version information")
		force       = flag.Bool("force", false, "Force dangerous operations without confirmation")
	)
	flag.Parse()

	if *showVersion {
		log.Printf("migrator v%s (commit %s, built %s)", version, gitCommit, buildTime)
		os.Exit(0)
	}

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	config, err := migrations.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	runner, err := migrations.NewMigrationRunner(config)
	if err != nil {
		log.Fatalf("failed to create migration runner: %v", err)
	}

	defer func() {
		_ = runner.Close()
	}()

	if err := executeCommand(args[0], runner, *force); err != nil {
		log.Printf("migration command failed: %v\n", err)
		os.Exit(1)
	}
}

func executeCommand(command string, runner migrations.MigrationRunner, force bool) error {
	switch command {
	case "up":
		return runner.Up()
	case "down":
		return runner.Down()
	case "status":
		return runner.Status()
	case "version":
		return runner.Version()
	case "drop":
		if !force {
			return ErrDropRequiresForce
		}

		return runner.Drop()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func printUsage() {
	log.Printf(`migrator - PromptForge database migration tool

USAGE:
    migrator [OPTIONS] COMMAND

COMMANDS:
    up      Apply all pending migrations
    down    Rollback the last migration
    status  Show migration status
    version Show current migration version
    drop    Drop all tables (DESTRUCTIVE - requires --force flag)

OPTIONS:
    --help     Show this help message
    --version  Show version information
    --force    Force dangerous operations without confirmation

ENVIRONMENT VARIABLES:
    DATABASE_URL     PostgreSQL connection string (REQUIRED)
    MIGRATION_TABLE  Name of migration tracking table (default: schema_migrations)
`)
}
