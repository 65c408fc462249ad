package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quizforge/gamecore/internal/game"
)

// QuestionRepository exposes the question bank fields scoring depends on.
type QuestionRepository struct {
	db DBTX
}

// NewQuestionRepository constructs a question repository.
func NewQuestionRepository(db DBTX) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// FindByUID returns the question with the given UID, or nil when absent.
func (r *QuestionRepository) FindByUID(ctx context.Context, uid string) (*game.Question, error) {
	var (
		q           game.Question
		timeLimitMs int64
	)
	err := r.db.QueryRow(ctx, `SELECT uid, question_type, time_limit_ms, correct_answers
		FROM questions WHERE uid = $1`, uid).
		Scan(&q.UID, &q.QuestionType, &timeLimitMs, &q.CorrectAnswers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find question: %w", err)
	}
	q.TimeLimit = time.Duration(timeLimitMs) * time.Millisecond
	return &q, nil
}
