package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	command := flag.String("command", "up", "Migration command: up, down, version, or status")
	dir := flag.String("dir", "db/migrations", "Directory containing migration files")
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().
		Timestamp().
		Str("app", "gamecore-migrator").
		Logger()

	dsn, err := dsnFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("incomplete database configuration")
	}

	migrationDir, err := filepath.Abs(*dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *dir).Msg("failed to resolve migration directory")
	}
	if _, err := os.Stat(migrationDir); os.IsNotExist(err) {
		log.Fatal().Str("dir", migrationDir).Msg("migration directory does not exist")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database connection")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	log.Info().Str("migration_dir", migrationDir).Msg("connected to database")

	switch *command {
	case "up":
		if err := goose.Up(db, migrationDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations up")
		}
		log.Info().Msg("migrations applied")
	case "down":
		if err := goose.Down(db, migrationDir); err != nil {
			log.Fatal().Err(err).Msg("failed to roll back migration")
		}
		log.Info().Msg("migration rolled back")
	case "version":
		v, err := goose.GetDBVersion(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read schema version")
		}
		log.Info().Int64("version", v).Msg("schema version")
	case "status":
		if err := goose.Status(db, migrationDir); err != nil {
			log.Fatal().Err(err).Msg("failed to get migration status")
		}
	default:
		log.Fatal().Str("command", *command).Msg("unknown command. Use: up, down, version, or status")
	}
}

// dsnFromEnv builds the connection string from the same PG_* variables the
// API service reads.
func dsnFromEnv() (string, error) {
	host := envOr("PG_HOST", "localhost")
	port := envOr("PG_PORT", "5432")
	sslMode := envOr("PG_SSL_MODE", "disable")

	user := os.Getenv("PG_USER")
	password := os.Getenv("PG_PASSWORD")
	database := os.Getenv("PG_DATABASE")
	for name, v := range map[string]string{
		"PG_USER": user, "PG_PASSWORD": password, "PG_DATABASE": database,
	} {
		if v == "" {
			return "", fmt.Errorf("%s environment variable is required", name)
		}
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, database, sslMode), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
