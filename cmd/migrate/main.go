// Command migrate applies (or rolls back) the embedded SQL migration set
// against DATABASE_URL using golang-migrate, the same library the rest of
// the example pack's Postgres-backed services reach for instead of a
// hand-rolled schema runner.
package main

import (
	"errors"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	dbmigrations "github.com/spencerjireh/portfoliobridge/internal/db/migrations"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	src, err := iofs.New(dbmigrations.FS, ".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load embedded migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize migrator")
	}

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	default:
		log.Fatal().Str("direction", direction).Msg("usage: migrate [up|down]")
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal().Err(err).Msg("migration failed")
	}

	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Error().Err(srcErr).Msg("failed to close migration source")
	}
	if dbErr != nil {
		log.Error().Err(dbErr).Msg("failed to close migration database connection")
	}

	log.Info().Str("direction", direction).Msg("migration complete")
}
