package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quizforge/gamecore/internal/game"
)

const participantColumns = `id, game_instance_id, user_id, username, avatar_emoji,
	score, live_score, deferred_score, participation_type, attempt_count, nb_attempts, joined_at`

// ParticipantRepository contains DB helpers for game participation records.
type ParticipantRepository struct {
	db DBTX
}

// NewParticipantRepository constructs a participant repository.
func NewParticipantRepository(db DBTX) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

func scanParticipant(row pgx.Row) (*game.Participant, error) {
	var p game.Participant
	err := row.Scan(
		&p.ID, &p.GameInstanceID, &p.UserID, &p.Username, &p.AvatarEmoji,
		&p.Score, &p.LiveScore, &p.DeferredScore, &p.ParticipationType,
		&p.AttemptCount, &p.NbAttempts, &p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Find returns the most recently joined participation record for the user in
// the game, or nil when the user never joined.
func (r *ParticipantRepository) Find(ctx context.Context, gameID uuid.UUID, userID string) (*game.Participant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+participantColumns+`
		FROM game_participants
		WHERE game_instance_id = $1 AND user_id = $2
		ORDER BY joined_at DESC
		LIMIT 1`, gameID, userID)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return p, nil
}

// FindByType returns the participation record of the given type, or nil.
func (r *ParticipantRepository) FindByType(ctx context.Context, gameID uuid.UUID, userID string, pt game.ParticipationType) (*game.Participant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+participantColumns+`
		FROM game_participants
		WHERE game_instance_id = $1 AND user_id = $2 AND participation_type = $3
		ORDER BY joined_at DESC
		LIMIT 1`, gameID, userID, pt)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find participant by type: %w", err)
	}
	return p, nil
}

// ListByGame returns every participation record for a game instance.
func (r *ParticipantRepository) ListByGame(ctx context.Context, gameID uuid.UUID) ([]game.Participant, error) {
	rows, err := r.db.Query(ctx, `SELECT `+participantColumns+`
		FROM game_participants
		WHERE game_instance_id = $1
		ORDER BY joined_at ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []game.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Create inserts a new participation record.
func (r *ParticipantRepository) Create(ctx context.Context, p *game.Participant) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	_, err := r.db.Exec(ctx, `INSERT INTO game_participants
		(id, game_instance_id, user_id, username, avatar_emoji, score, live_score,
		 deferred_score, participation_type, attempt_count, nb_attempts, joined_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.GameInstanceID, p.UserID, p.Username, p.AvatarEmoji, p.Score,
		p.LiveScore, p.DeferredScore, p.ParticipationType, p.AttemptCount,
		p.NbAttempts, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

// IncrementScore adds delta to the participant's working score and returns the
// new total.
func (r *ParticipantRepository) IncrementScore(ctx context.Context, participantID uuid.UUID, delta float64) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `UPDATE game_participants
		SET score = score + $2
		WHERE id = $1
		RETURNING score`, participantID, delta).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("increment score: %w", err)
	}
	return total, nil
}

// ReplaceScore overwrites the participant's working score outright and returns
// the stored value.
func (r *ParticipantRepository) ReplaceScore(ctx context.Context, participantID uuid.UUID, score float64) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `UPDATE game_participants
		SET score = $2
		WHERE id = $1
		RETURNING score`, participantID, score).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("replace score: %w", err)
	}
	return total, nil
}

// SetDeferredBest persists the best-ever deferred score for the participant.
// GREATEST guards against regression even if a caller computes a stale best.
func (r *ParticipantRepository) SetDeferredBest(ctx context.Context, participantID uuid.UUID, best float64) error {
	_, err := r.db.Exec(ctx, `UPDATE game_participants
		SET deferred_score = GREATEST(deferred_score, $2),
		    score = GREATEST(score, $2),
		    nb_attempts = GREATEST(nb_attempts, attempt_count)
		WHERE id = $1`, participantID, best)
	if err != nil {
		return fmt.Errorf("set deferred best: %w", err)
	}
	return nil
}

// StartNewAttempt advances the participant to a fresh deferred attempt: the
// attempt counter increments and the working score resets to zero.
func (r *ParticipantRepository) StartNewAttempt(ctx context.Context, participantID uuid.UUID, joinedAt time.Time) (*game.Participant, error) {
	row := r.db.QueryRow(ctx, `UPDATE game_participants
		SET attempt_count = attempt_count + 1,
		    nb_attempts = nb_attempts + 1,
		    score = 0,
		    joined_at = $2
		WHERE id = $1
		RETURNING `+participantColumns, participantID, joinedAt)
	p, err := scanParticipant(row)
	if err != nil {
		return nil, fmt.Errorf("start new attempt: %w", err)
	}
	return p, nil
}
