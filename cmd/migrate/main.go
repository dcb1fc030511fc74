package main

import (
	"errors"
	"flag"
	"os"

	"github.com/cassiomorais/marketplace/internal/infrastructure/config"
	"github.com/cassiomorais/marketplace/internal/infrastructure/observability"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
)

// migrateLogger adapts zerolog to migrate.Logger.
type migrateLogger struct {
	log     zerolog.Logger
	verbose bool
}

func (l migrateLogger) Printf(format string, v ...any) { l.log.Info().Msgf(format, v...) }
func (l migrateLogger) Verbose() bool                  { return l.verbose }

func main() {
	var (
		command string
		dbURL   string
		path    string
		steps   int
		version int
		verbose bool
	)

	flag.StringVar(&command, "cmd", "up", "up, down, steps, force or version")
	flag.StringVar(&dbURL, "db", "", "Database URL (defaults to the configured database)")
	flag.StringVar(&path, "path", "internal/repository/postgres/migrations", "Path to migration files")
	flag.IntVar(&steps, "n", 1, "Number of migrations for -cmd=steps, negative to roll back")
	flag.IntVar(&version, "version", -1, "Version for -cmd=force")
	flag.BoolVar(&verbose, "v", false, "Log every applied migration")
	flag.Parse()

	log := observability.InitLogger("info", "console", os.Stderr)

	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		dbURL = cfg.Database.MigrationURL()
	}

	m, err := migrate.New("file://"+path, dbURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to create migrate instance")
	}
	defer m.Close()
	m.Log = migrateLogger{log: log, verbose: verbose}

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(steps)
	case "force":
		if version < 0 {
			log.Fatal().Msg("-cmd=force needs -version")
		}
		err = m.Force(version)
	case "version":
	default:
		log.Fatal().Str("cmd", command).Msg("Unknown command")
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Msg("No change")
		err = nil
	}
	if err != nil {
		log.Fatal().Err(err).Str("cmd", command).Msg("Migration failed")
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info().Msg("No migrations applied")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to read version")
	default:
		log.Info().Uint("version", v).Bool("dirty", dirty).Str("cmd", command).Msg("Done")
	}
}
