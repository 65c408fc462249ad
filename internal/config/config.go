package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"gamecore"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres    Postgres
	Redis       Redis
	Game        Game
	Leaderboard Leaderboard
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST,notEmpty"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER,notEmpty"`
	Password string `env:"PG_PASSWORD,notEmpty"`
	Database string `env:"PG_DATABASE,notEmpty"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Redis holds connection settings for the shared key-value store.
type Redis struct {
	Addr     string `env:"REDIS_ADDR,notEmpty"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Game groups gameplay defaults.
type Game struct {
	// DefaultQuestionDuration is used when a question carries no time limit
	// and no override is supplied.
	DefaultQuestionDuration time.Duration `env:"DEFAULT_QUESTION_DURATION" envDefault:"30s"`
	// SubmissionLockTTL bounds the per-(user,question) answer lock held while
	// a submission is scored.
	SubmissionLockTTL time.Duration `env:"SUBMISSION_LOCK_TTL" envDefault:"5s"`
}

// Leaderboard governs snapshot broadcast behavior.
type Leaderboard struct {
	PubSubChannel string `env:"LEADERBOARD_PUBSUB_CHANNEL" envDefault:"leaderboard:updates"`
	BroadcastTopN int    `env:"LEADERBOARD_BROADCAST_TOP" envDefault:"20"`
	// SyncInterval drives the background snapshot resync; zero disables it.
	SyncInterval time.Duration `env:"LEADERBOARD_SYNC_INTERVAL" envDefault:"1m"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
