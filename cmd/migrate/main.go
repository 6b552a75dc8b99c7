package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/config"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/env"
	"github.com/ManuelReschke/BudgetFox/internal/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load environment variables from .env
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Log)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	db := cfg.Database
	dbURL := fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		db.User, db.Password, db.Host, db.Port, db.Name,
	)
	log.Info().Msgf("Connecting to database: %s@%s:%s/%s", db.User, db.Host, db.Port, db.Name)

	m, err := migrate.New(
		env.GetEnv("MIGRATIONS_SOURCE", "file://migrations"),
		dbURL,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize migrations")
	}

	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Error().Msgf("failed to close migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	switch command {
	case "up":
		// Run all pending migrations
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("failed to run migrations")
		} else if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("No changes: database is up to date")
		} else {
			log.Info().Msg("Migrations applied")
		}

	case "down":
		// Roll back the last migration
		if err := m.Steps(-1); err != nil {
			log.Fatal().Err(err).Msg("failed to roll back the last migration")
		}
		log.Info().Msg("Last migration rolled back")

	case "goto":
		version := versionArg()
		// Migrate to a specific version
		if err := m.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msgf("failed to migrate to version %d", version)
		} else if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msgf("No changes: database is already at version %d", version)
		} else {
			log.Info().Msgf("Migrated to version %d", version)
		}

	case "force":
		version := versionArg()
		// Clear a dirty state after a failed migration was fixed by hand
		if err := m.Force(int(version)); err != nil {
			log.Fatal().Err(err).Msgf("failed to force version %d", version)
		}
		log.Info().Msgf("Forced version %d", version)

	case "status", "version":
		// Show the current migration version
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Info().Msg("No migrations have been applied yet")
			} else {
				log.Fatal().Err(err).Msg("failed to read migration version")
			}
		} else {
			dirtyStatus := ""
			if dirty {
				dirtyStatus = " (dirty)"
			}
			log.Info().Msgf("Current migration version: %d%s", version, dirtyStatus)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func versionArg() uint {
	if len(os.Args) < 3 {
		log.Fatal().Msg("please provide a version number")
	}
	version, err := strconv.ParseUint(os.Args[2], 10, 64)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid version number")
	}
	return uint(version)
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up      - apply all pending migrations")
	fmt.Println("  down    - roll back the last migration")
	fmt.Println("  goto N  - migrate to version N")
	fmt.Println("  force N - set version N and clear the dirty flag")
	fmt.Println("  status  - show the current migration version")
}
