package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quizforge/gamecore/internal/game"
)

const gameColumns = `id, access_code, name, play_mode, is_deferred, status,
	deferred_available_from, deferred_available_to`

// GameRepository contains DB helpers for game instances.
type GameRepository struct {
	db DBTX
}

// NewGameRepository constructs a game instance repository.
func NewGameRepository(db DBTX) *GameRepository {
	return &GameRepository{db: db}
}

func scanGame(row pgx.Row) (*game.Instance, error) {
	var g game.Instance
	err := row.Scan(
		&g.ID, &g.AccessCode, &g.Name, &g.PlayMode, &g.IsDeferred, &g.Status,
		&g.DeferredAvailableFrom, &g.DeferredAvailableTo,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// FindByID returns the game instance with the given ID, or nil.
func (r *GameRepository) FindByID(ctx context.Context, gameID uuid.UUID) (*game.Instance, error) {
	row := r.db.QueryRow(ctx, `SELECT `+gameColumns+`
		FROM game_instances WHERE id = $1`, gameID)
	g, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game by id: %w", err)
	}
	return g, nil
}

// FindByAccessCode returns the game instance behind an access code, or nil.
func (r *GameRepository) FindByAccessCode(ctx context.Context, accessCode string) (*game.Instance, error) {
	row := r.db.QueryRow(ctx, `SELECT `+gameColumns+`
		FROM game_instances WHERE access_code = $1`, accessCode)
	g, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game by access code: %w", err)
	}
	return g, nil
}

// ListActive returns every game instance currently in play.
func (r *GameRepository) ListActive(ctx context.Context) ([]game.Instance, error) {
	rows, err := r.db.Query(ctx, `SELECT `+gameColumns+`
		FROM game_instances WHERE status = $1`, game.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	defer rows.Close()

	var out []game.Instance
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// UpdateStatus transitions a game instance's lifecycle status.
func (r *GameRepository) UpdateStatus(ctx context.Context, gameID uuid.UUID, status game.Status) error {
	_, err := r.db.Exec(ctx, `UPDATE game_instances SET status = $2 WHERE id = $1`,
		gameID, status)
	if err != nil {
		return fmt.Errorf("update game status: %w", err)
	}
	return nil
}
