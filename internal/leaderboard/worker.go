package leaderboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizforge/gamecore/internal/game"
	"github.com/quizforge/gamecore/pkg/ws"
)

// ActiveGameSource lists the game instances whose snapshots the worker keeps
// fresh.
type ActiveGameSource interface {
	ListActive(ctx context.Context) ([]game.Instance, error)
}

// SyncWorker periodically resynchronizes leaderboard snapshots with live
// scoring data and rebroadcasts them. It papers over any snapshot drift left
// behind by racing answer submissions.
type SyncWorker struct {
	svc      *SnapshotService
	games    ActiveGameSource
	logger   zerolog.Logger
	interval time.Duration
}

func NewSyncWorker(svc *SnapshotService, games ActiveGameSource, interval time.Duration, logger zerolog.Logger) *SyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SyncWorker{
		svc:      svc,
		games:    games,
		logger:   logger.With().Str("component", "leaderboard_sync_worker").Logger(),
		interval: interval,
	}
}

// Run blocks until context cancellation.
func (w *SyncWorker) Run(ctx context.Context) error {
	if w.svc == nil || w.games == nil {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SyncWorker) tick(ctx context.Context) {
	instances, err := w.games.ListActive(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("active game listing failed")
		return
	}
	for i := range instances {
		instance := &instances[i]
		if _, err := w.svc.SyncSnapshotWithLiveData(ctx, instance); err != nil {
			w.logger.Warn().Err(err).Str("access_code", instance.AccessCode).Msg("snapshot sync failed")
			continue
		}
		if err := w.svc.EmitFromSnapshot(ctx, instance.AccessCode,
			[]string{instance.AccessCode}, ws.TypeLeaderboardUpdate); err != nil {
			w.logger.Warn().Err(err).Str("access_code", instance.AccessCode).Msg("snapshot emit failed")
		}
	}
}
