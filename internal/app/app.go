package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizforge/gamecore/internal/clock"
	"github.com/quizforge/gamecore/internal/config"
	"github.com/quizforge/gamecore/internal/db/repository"
	"github.com/quizforge/gamecore/internal/gameplay"
	"github.com/quizforge/gamecore/internal/leaderboard"
	"github.com/quizforge/gamecore/internal/logging"
	"github.com/quizforge/gamecore/internal/participant"
	"github.com/quizforge/gamecore/internal/scoring"
	"github.com/quizforge/gamecore/internal/server"
	"github.com/quizforge/gamecore/internal/timer"
	"github.com/quizforge/gamecore/pkg/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	lbBroadcaster *leaderboard.Broadcaster
	syncWorker    *leaderboard.SyncWorker
	bgCancels     []context.CancelFunc
}

// New bootstraps configs, logger, Postgres, Redis and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=10",
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	gameRepo := repository.NewGameRepository(pool)
	participantRepo := repository.NewParticipantRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)

	clk := clock.System{}

	timerSvc := timer.NewService(redisClient, clk, timer.Options{
		FallbackDuration: cfg.Game.DefaultQuestionDuration,
	}, logger)

	scoringSvc := scoring.NewService(
		participantRepo,
		gameRepo,
		questionRepo,
		timerSvc,
		redisClient,
		clk,
		scoring.Options{SubmissionLockTTL: cfg.Game.SubmissionLockTTL},
		logger,
	)

	emitter := leaderboard.NewPubSubEmitter(redisClient, cfg.Leaderboard.PubSubChannel)
	snapshotSvc := leaderboard.NewSnapshotService(redisClient, participantRepo, emitter, leaderboard.Options{
		BroadcastTopN: cfg.Leaderboard.BroadcastTopN,
	}, logger)
	bonusGranter := leaderboard.NewBonusGranter(redisClient, logger)

	joinSvc := participant.NewJoinService(
		participantRepo,
		gameRepo,
		snapshotSvc,
		bonusGranter,
		redisClient,
		clk,
		logger,
	)

	wsHub := ws.NewHub(logger)
	gameWSHandler := gameplay.NewHandler(
		joinSvc,
		scoringSvc,
		timerSvc,
		snapshotSvc,
		gameRepo,
		questionRepo,
		participantRepo,
		wsHub,
		logger,
	)

	lbBroadcaster := leaderboard.NewBroadcaster(redisClient, wsHub, cfg.Leaderboard.PubSubChannel, logger)
	lbHTTPHandler := leaderboard.NewHTTPHandler(snapshotSvc, logger)

	var syncWorker *leaderboard.SyncWorker
	if interval := cfg.Leaderboard.SyncInterval; interval > 0 {
		syncWorker = leaderboard.NewSyncWorker(snapshotSvc, gameRepo, interval, logger)
	}

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, gameWSHandler.HandleWebSocket, lbHTTPHandler.HandleGet)

	return &Application{
		cfg:           cfg,
		logger:        logger,
		pool:          pool,
		redis:         redisClient,
		http:          apiServer,
		lbBroadcaster: lbBroadcaster,
		syncWorker:    syncWorker,
		bgCancels:     make([]context.CancelFunc, 0, 2),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	if a.lbBroadcaster != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.lbBroadcaster.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Msg("leaderboard broadcaster stopped")
			}
		}()
	}

	if a.syncWorker != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.syncWorker.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Msg("leaderboard sync worker stopped")
			}
		}()
	}
}
