package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/gamecore/internal/clock"
	"github.com/quizforge/gamecore/internal/game"
	"github.com/quizforge/gamecore/internal/timer"
)

type stubParticipants struct {
	participant *game.Participant
}

func (s *stubParticipants) Find(_ context.Context, _ uuid.UUID, _ string) (*game.Participant, error) {
	if s.participant == nil {
		return nil, nil
	}
	cp := *s.participant
	return &cp, nil
}

func (s *stubParticipants) IncrementScore(_ context.Context, _ uuid.UUID, delta float64) (float64, error) {
	s.participant.Score += delta
	return s.participant.Score, nil
}

func (s *stubParticipants) ReplaceScore(_ context.Context, _ uuid.UUID, score float64) (float64, error) {
	s.participant.Score = score
	return s.participant.Score, nil
}

// SetDeferredBest mirrors the repository's GREATEST semantics: the stored
// best never regresses, whatever the caller passes.
func (s *stubParticipants) SetDeferredBest(_ context.Context, _ uuid.UUID, best float64) error {
	if best > s.participant.DeferredScore {
		s.participant.DeferredScore = best
	}
	if best > s.participant.Score {
		s.participant.Score = best
	}
	return nil
}

type stubGames struct {
	instance *game.Instance
}

func (s *stubGames) FindByID(_ context.Context, _ uuid.UUID) (*game.Instance, error) {
	return s.instance, nil
}

type stubQuestions struct {
	question *game.Question
}

func (s *stubQuestions) FindByUID(_ context.Context, _ string) (*game.Question, error) {
	return s.question, nil
}

type stubTimers struct {
	elapsedMs int64
}

func (s *stubTimers) ElapsedMs(_ context.Context, _ game.PlayMode, _ timer.KeyRef) (int64, error) {
	return s.elapsedMs, nil
}

type scoringFixture struct {
	svc          *Service
	participants *stubParticipants
	games        *stubGames
	questions    *stubQuestions
	timers       *stubTimers
	mr           *miniredis.Miniredis
	gameID       uuid.UUID
}

func newScoringFixture(t *testing.T, mode game.PlayMode, pt game.ParticipationType) *scoringFixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gameID := uuid.New()
	f := &scoringFixture{
		participants: &stubParticipants{participant: &game.Participant{
			ID:                uuid.New(),
			GameInstanceID:    gameID,
			UserID:            "user-1",
			Username:          "Alice",
			ParticipationType: pt,
			AttemptCount:      1,
		}},
		games: &stubGames{instance: &game.Instance{
			ID:         gameID,
			AccessCode: "GAME42",
			PlayMode:   mode,
			Status:     game.StatusActive,
		}},
		questions: &stubQuestions{question: &game.Question{
			UID:            "q-1",
			QuestionType:   questionTypeSingleChoice,
			TimeLimit:      30 * time.Second,
			CorrectAnswers: []bool{false, true},
		}},
		timers: &stubTimers{},
		mr:     mr,
		gameID: gameID,
	}
	f.svc = NewService(
		f.participants, f.games, f.questions, f.timers,
		client, clock.NewManual(time.Unix(1_700_000_000, 0)), Options{}, zerolog.Nop(),
	)
	return f
}

// Scenario: a live quiz participant answers correctly after two seconds and
// earns 980 points, added to their cumulative score.
func TestSubmitAnswerLiveQuiz(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)
	f.participants.participant.Score = 100

	res := f.svc.SubmitAnswer(context.Background(), f.gameID, "user-1", Submission{
		QuestionUID: "q-1",
		Answer:      1,
		TimeSpentMs: 2_000,
	})

	assert.True(t, res.ScoreUpdated)
	assert.Equal(t, float64(980), res.ScoreAdded)
	assert.Equal(t, float64(1080), res.TotalScore)
	assert.False(t, res.AnswerChanged)

	// Sorted set tracks the new total.
	score, err := f.mr.ZScore("game:leaderboard:GAME42", "user-1")
	require.NoError(t, err)
	assert.Equal(t, float64(1080), score)
}

// Scenario: a deferred participant on a fresh attempt (score zero) has the
// answer's score replace the working score outright.
func TestSubmitAnswerDeferredFreshAttemptReplaces(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeTournament, game.ParticipationDeferred)
	f.timers.elapsedMs = 50_000 // 1000 - 500 = 500

	res := f.svc.SubmitAnswer(context.Background(), f.gameID, "user-1", Submission{
		QuestionUID: "q-1",
		Answer:      1,
		TimeSpentMs: 999, // ignored outside quiz mode
	})

	assert.True(t, res.ScoreUpdated)
	assert.Equal(t, float64(500), res.TotalScore)
	assert.Equal(t, float64(500), f.participants.participant.Score)
}

func TestSubmitAnswerDeferredNonzeroIncrements(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeTournament, game.ParticipationDeferred)
	f.participants.participant.Score = 300
	f.timers.elapsedMs = 50_000

	res := f.svc.SubmitAnswer(context.Background(), f.gameID, "user-1", Submission{
		QuestionUID: "q-1",
		Answer:      1,
	})

	assert.True(t, res.ScoreUpdated)
	assert.Equal(t, float64(800), res.TotalScore)
}

// Submitting the identical answer twice never changes the score.
func TestSubmitAnswerDuplicateIsNoOp(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)
	ctx := context.Background()
	sub := Submission{QuestionUID: "q-1", Answer: 1, TimeSpentMs: 2_000}

	first := f.svc.SubmitAnswer(ctx, f.gameID, "user-1", sub)
	require.True(t, first.ScoreUpdated)
	scoreAfterFirst := f.participants.participant.Score

	second := f.svc.SubmitAnswer(ctx, f.gameID, "user-1", sub)
	assert.False(t, second.ScoreUpdated)
	assert.Equal(t, "answer unchanged", second.Message)
	assert.Equal(t, scoreAfterFirst, f.participants.participant.Score)
}

// Changing the answer rescores the question: the old score is backed out and
// the new one applied, so a late wrong answer can cost points.
func TestSubmitAnswerChangedAnswerRescores(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)
	ctx := context.Background()

	first := f.svc.SubmitAnswer(ctx, f.gameID, "user-1", Submission{
		QuestionUID: "q-1", Answer: 1, TimeSpentMs: 2_000,
	})
	require.Equal(t, float64(980), first.ScoreAdded)

	second := f.svc.SubmitAnswer(ctx, f.gameID, "user-1", Submission{
		QuestionUID: "q-1", Answer: 0, TimeSpentMs: 5_000,
	})
	assert.True(t, second.ScoreUpdated)
	assert.True(t, second.AnswerChanged)
	assert.Equal(t, float64(-980), second.ScoreAdded)
	assert.Equal(t, float64(0), second.TotalScore)
}

func TestSubmitAnswerParticipantNotFound(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)
	f.participants.participant = nil

	res := f.svc.SubmitAnswer(context.Background(), f.gameID, "ghost", Submission{
		QuestionUID: "q-1", Answer: 1,
	})

	assert.False(t, res.ScoreUpdated)
	assert.Equal(t, "participant not found", res.Message)
}

// An incorrect first answer is recorded but leaves the score at zero, and
// the result must say the score did not change.
func TestSubmitAnswerIncorrectScoresZero(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)

	res := f.svc.SubmitAnswer(context.Background(), f.gameID, "user-1", Submission{
		QuestionUID: "q-1", Answer: 0, TimeSpentMs: 1_000,
	})

	assert.False(t, res.ScoreUpdated)
	assert.Equal(t, float64(0), res.ScoreAdded)
	assert.Equal(t, float64(0), res.TotalScore)
	assert.Equal(t, "answer recorded, score unchanged", res.Message)
}

func TestSubmitAnswerMissingQuestionScoresZero(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)
	f.questions.question = nil

	res := f.svc.SubmitAnswer(context.Background(), f.gameID, "user-1", Submission{
		QuestionUID: "q-missing", Answer: 1, TimeSpentMs: 1_000,
	})

	assert.False(t, res.ScoreUpdated)
	assert.Equal(t, float64(0), res.ScoreAdded)
}

// Changing the answer to one worth exactly the same amount keeps the total
// intact; ScoreUpdated reflects the zero delta even though the stored
// answer changed.
func TestSubmitAnswerChangedAnswerSameScore(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)
	ctx := context.Background()

	first := f.svc.SubmitAnswer(ctx, f.gameID, "user-1", Submission{
		QuestionUID: "q-1", Answer: 0, TimeSpentMs: 1_000,
	})
	require.False(t, first.ScoreUpdated)

	second := f.svc.SubmitAnswer(ctx, f.gameID, "user-1", Submission{
		QuestionUID: "q-1", Answer: 2, TimeSpentMs: 4_000,
	})
	assert.False(t, second.ScoreUpdated)
	assert.True(t, second.AnswerChanged)
	assert.Equal(t, float64(0), second.ScoreAdded)
	assert.Equal(t, float64(0), f.participants.participant.Score)
}

func TestSubmitAnswerLockedOut(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)
	require.NoError(t, f.mr.Set("lock:answer:GAME42:user-1:q-1", "other-holder"))

	res := f.svc.SubmitAnswer(context.Background(), f.gameID, "user-1", Submission{
		QuestionUID: "q-1", Answer: 1, TimeSpentMs: 2_000,
	})

	assert.False(t, res.ScoreUpdated)
	assert.Equal(t, "submission already in progress", res.Message)
}

func TestSubmitAnswerReleasesLock(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeQuiz, game.ParticipationLive)

	_ = f.svc.SubmitAnswer(context.Background(), f.gameID, "user-1", Submission{
		QuestionUID: "q-1", Answer: 1, TimeSpentMs: 2_000,
	})

	assert.False(t, f.mr.Exists("lock:answer:GAME42:user-1:q-1"))
}

// Best-score retention is monotonic across any sequence of finalized
// attempts.
func TestFinalizeDeferredAttemptMonotonicBest(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeTournament, game.ParticipationDeferred)
	ctx := context.Background()

	scores := []float64{400, 900, 250, 900, 600}
	wantBest := []float64{400, 900, 900, 900, 900}
	for i, attemptScore := range scores {
		f.participants.participant.Score = attemptScore
		best, err := f.svc.FinalizeDeferredAttempt(ctx, f.gameID, "user-1", attemptScore)
		require.NoError(t, err)
		assert.Equal(t, wantBest[i], best, "after attempt %d", i+1)
		assert.Equal(t, wantBest[i], f.participants.participant.DeferredScore)
	}

	// The side KV copy agrees with the relational record.
	raw, err := f.mr.Get("deferred:best_score:" + f.gameID.String() + ":user-1")
	require.NoError(t, err)
	assert.Equal(t, "900", raw)
}

func TestFinalizeDeferredAttemptCleansAnswerHistory(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeTournament, game.ParticipationDeferred)
	ctx := context.Background()

	_ = f.svc.SubmitAnswer(ctx, f.gameID, "user-1", Submission{QuestionUID: "q-1", Answer: 1})
	answerKey := "game:answers:GAME42:q-1:1"
	require.True(t, f.mr.Exists(answerKey))

	_, err := f.svc.FinalizeDeferredAttempt(ctx, f.gameID, "user-1", 500)
	require.NoError(t, err)

	fields, _ := f.mr.HKeys(answerKey)
	assert.NotContains(t, fields, "user-1")
}

func TestFinalizeDeferredAttemptUnknownParticipant(t *testing.T) {
	f := newScoringFixture(t, game.PlayModeTournament, game.ParticipationDeferred)
	f.participants.participant = nil

	_, err := f.svc.FinalizeDeferredAttempt(context.Background(), f.gameID, "ghost", 500)
	assert.Error(t, err)
}
