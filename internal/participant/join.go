package participant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizforge/gamecore/internal/clock"
	"github.com/quizforge/gamecore/internal/game"
	"github.com/quizforge/gamecore/pkg/ws"
)

var (
	ErrGameNotFound        = errors.New("participant: game not found")
	ErrGameCompleted       = errors.New("participant: game already completed")
	ErrDeferredUnavailable = errors.New("participant: deferred play window closed")
)

// ParticipantStore is the slice of the relational contract the join service
// consumes.
type ParticipantStore interface {
	FindByType(ctx context.Context, gameID uuid.UUID, userID string, pt game.ParticipationType) (*game.Participant, error)
	Create(ctx context.Context, p *game.Participant) error
	StartNewAttempt(ctx context.Context, participantID uuid.UUID, joinedAt time.Time) (*game.Participant, error)
}

// GameStore resolves game instances by access code.
type GameStore interface {
	FindByAccessCode(ctx context.Context, accessCode string) (*game.Instance, error)
}

// SnapshotWriter is the leaderboard surface joins touch.
type SnapshotWriter interface {
	AddUserToSnapshot(ctx context.Context, accessCode string, p *game.Participant, bonusScore float64) error
	EmitFromSnapshot(ctx context.Context, accessCode string, rooms []string, event string) error
}

// BonusSource grants the one-shot join-order bonus.
type BonusSource interface {
	GrantJoinBonus(ctx context.Context, accessCode, userID string) (float64, error)
}

// JoinResult reports how a join resolved.
type JoinResult struct {
	Instance    *game.Instance
	Participant *game.Participant
	// IsNew is true when this join created the participation record.
	IsNew bool
	// ResumedAttempt is true for a deferred rejoin that continues an
	// in-flight attempt instead of starting a fresh one.
	ResumedAttempt bool
}

// JoinService routes a user into a game on the correct competitive track:
// LIVE while the game runs, DEFERRED replay after completion.
type JoinService struct {
	participants ParticipantStore
	games        GameStore
	snapshots    SnapshotWriter
	bonuses      BonusSource
	kv           *redis.Client
	clock        clock.Clock
	logger       zerolog.Logger
}

// NewJoinService constructs the join service.
func NewJoinService(
	participants ParticipantStore,
	games GameStore,
	snapshots SnapshotWriter,
	bonuses BonusSource,
	kv *redis.Client,
	clk clock.Clock,
	logger zerolog.Logger,
) *JoinService {
	if clk == nil {
		clk = clock.System{}
	}
	return &JoinService{
		participants: participants,
		games:        games,
		snapshots:    snapshots,
		bonuses:      bonuses,
		kv:           kv,
		clock:        clk,
		logger:       logger.With().Str("component", "participant_join").Logger(),
	}
}

// Join registers or resumes a user's participation in the game behind the
// access code.
func (s *JoinService) Join(ctx context.Context, accessCode, userID, username, avatarEmoji string) (*JoinResult, error) {
	instance, err := s.games.FindByAccessCode(ctx, accessCode)
	if err != nil {
		return nil, fmt.Errorf("join game: %w", err)
	}
	if instance == nil {
		return nil, ErrGameNotFound
	}

	if instance.Status == game.StatusCompleted {
		if !instance.IsDeferred {
			return nil, ErrGameCompleted
		}
		if err := s.checkDeferredWindow(instance); err != nil {
			return nil, err
		}
		return s.joinDeferred(ctx, instance, userID, username, avatarEmoji)
	}
	return s.joinLive(ctx, instance, userID, username, avatarEmoji)
}

func (s *JoinService) checkDeferredWindow(instance *game.Instance) error {
	now := s.clock.Now()
	if from := instance.DeferredAvailableFrom; from != nil && now.Before(*from) {
		return ErrDeferredUnavailable
	}
	if to := instance.DeferredAvailableTo; to != nil && now.After(*to) {
		return ErrDeferredUnavailable
	}
	return nil
}

func (s *JoinService) joinLive(ctx context.Context, instance *game.Instance, userID, username, avatarEmoji string) (*JoinResult, error) {
	existing, err := s.participants.FindByType(ctx, instance.ID, userID, game.ParticipationLive)
	if err != nil {
		return nil, fmt.Errorf("join live: %w", err)
	}
	if existing != nil {
		// Reconnect: the participation record survives disconnects.
		return &JoinResult{Instance: instance, Participant: existing}, nil
	}

	p := &game.Participant{
		GameInstanceID:    instance.ID,
		UserID:            userID,
		Username:          username,
		AvatarEmoji:       avatarEmoji,
		ParticipationType: game.ParticipationLive,
		JoinedAt:          s.clock.Now(),
	}
	if err := s.participants.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("join live: %w", err)
	}

	bonus, err := s.bonuses.GrantJoinBonus(ctx, instance.AccessCode, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("join bonus grant failed")
		bonus = 0
	}
	if err := s.snapshots.AddUserToSnapshot(ctx, instance.AccessCode, p, bonus); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("snapshot add failed")
	} else if err := s.snapshots.EmitFromSnapshot(ctx, instance.AccessCode,
		[]string{instance.AccessCode}, ws.TypeLeaderboardUpdate); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("snapshot emit failed")
	}

	s.logger.Info().
		Str("access_code", instance.AccessCode).
		Str("user_id", userID).
		Msg("live participant joined")
	return &JoinResult{Instance: instance, Participant: p, IsNew: true}, nil
}

func (s *JoinService) joinDeferred(ctx context.Context, instance *game.Instance, userID, username, avatarEmoji string) (*JoinResult, error) {
	existing, err := s.participants.FindByType(ctx, instance.ID, userID, game.ParticipationDeferred)
	if err != nil {
		return nil, fmt.Errorf("join deferred: %w", err)
	}

	sessionKey := game.DeferredSessionKey(instance.AccessCode, userID)
	if existing == nil {
		p := &game.Participant{
			GameInstanceID:    instance.ID,
			UserID:            userID,
			Username:          username,
			AvatarEmoji:       avatarEmoji,
			ParticipationType: game.ParticipationDeferred,
			AttemptCount:      1,
			NbAttempts:        1,
			JoinedAt:          s.clock.Now(),
		}
		if err := s.participants.Create(ctx, p); err != nil {
			return nil, fmt.Errorf("join deferred: %w", err)
		}
		if err := s.markSession(ctx, sessionKey, p.AttemptCount); err != nil {
			return nil, err
		}
		s.logger.Info().
			Str("access_code", instance.AccessCode).
			Str("user_id", userID).
			Msg("deferred participant joined")
		return &JoinResult{Instance: instance, Participant: p, IsNew: true}, nil
	}

	// A live session marker means the user dropped mid-attempt and is
	// reconnecting; without it, this join starts a fresh replay.
	ongoing, err := s.kv.Exists(ctx, sessionKey).Result()
	if err != nil {
		return nil, fmt.Errorf("join deferred: %w", err)
	}
	if ongoing > 0 {
		s.logger.Info().
			Str("access_code", instance.AccessCode).
			Str("user_id", userID).
			Int("attempt", existing.AttemptCount).
			Msg("deferred attempt resumed")
		return &JoinResult{Instance: instance, Participant: existing, ResumedAttempt: true}, nil
	}

	advanced, err := s.participants.StartNewAttempt(ctx, existing.ID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("join deferred: %w", err)
	}
	if err := s.markSession(ctx, sessionKey, advanced.AttemptCount); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("access_code", instance.AccessCode).
		Str("user_id", userID).
		Int("attempt", advanced.AttemptCount).
		Msg("deferred attempt started")
	return &JoinResult{Instance: instance, Participant: advanced}, nil
}

func (s *JoinService) markSession(ctx context.Context, sessionKey string, attempt int) error {
	if err := s.kv.Set(ctx, sessionKey, strconv.Itoa(attempt), 0).Err(); err != nil {
		return fmt.Errorf("mark deferred session: %w", err)
	}
	return nil
}

// EndDeferredSession clears the in-progress marker once an attempt is
// finalized. The next join starts a fresh attempt.
func (s *JoinService) EndDeferredSession(ctx context.Context, accessCode, userID string) error {
	key := game.DeferredSessionKey(accessCode, userID)
	if err := s.kv.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("end deferred session: %w", err)
	}
	return nil
}
