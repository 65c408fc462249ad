package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizforge/gamecore/internal/clock"
	"github.com/quizforge/gamecore/internal/game"
	"github.com/quizforge/gamecore/internal/timer"
)

// ParticipantStore is the slice of the relational participant contract the
// scoring pipeline consumes.
type ParticipantStore interface {
	Find(ctx context.Context, gameID uuid.UUID, userID string) (*game.Participant, error)
	IncrementScore(ctx context.Context, participantID uuid.UUID, delta float64) (float64, error)
	ReplaceScore(ctx context.Context, participantID uuid.UUID, score float64) (float64, error)
	SetDeferredBest(ctx context.Context, participantID uuid.UUID, best float64) error
}

// GameStore resolves game instances.
type GameStore interface {
	FindByID(ctx context.Context, gameID uuid.UUID) (*game.Instance, error)
}

// QuestionStore resolves answer keys from the question bank.
type QuestionStore interface {
	FindByUID(ctx context.Context, uid string) (*game.Question, error)
}

// ElapsedSource supplies server-side elapsed time for modes where the client
// report is not trusted.
type ElapsedSource interface {
	ElapsedMs(ctx context.Context, mode game.PlayMode, ref timer.KeyRef) (int64, error)
}

// Submission is one incoming answer payload.
type Submission struct {
	QuestionUID string `json:"questionUid"`
	Answer      any    `json:"answer"`
	TimeSpentMs int64  `json:"timeSpent"`
}

// Result reports the outcome of one submission. ScoreUpdated is true only
// when the participant's total actually moved; an accepted answer with a
// zero delta reports false. The result is always well-formed: pipeline
// failures also surface as ScoreUpdated=false, never as a panic or a
// half-written result.
type Result struct {
	ScoreUpdated  bool    `json:"scoreUpdated"`
	ScoreAdded    float64 `json:"scoreAdded"`
	TotalScore    float64 `json:"totalScore"`
	AnswerChanged bool    `json:"answerChanged"`
	Message       string  `json:"message"`
}

// answerRecord is the persisted per-(question,user) answer, stored as a hash
// field keyed by user ID.
type answerRecord struct {
	Answer            any     `json:"answer"`
	TimeSpentMs       int64   `json:"timeSpent"`
	ServerTimeSpentMs int64   `json:"serverTimeSpent"`
	IsCorrect         bool    `json:"isCorrect"`
	Score             float64 `json:"score"`
	SubmittedAt       int64   `json:"submittedAt"`
}

// Options configures the scoring service.
type Options struct {
	// SubmissionLockTTL bounds how long a per-(user,question) submission lock
	// can outlive a crashed handler.
	SubmissionLockTTL time.Duration
}

// Service is the single entry point for all scoring.
type Service struct {
	participants ParticipantStore
	games        GameStore
	questions    QuestionStore
	timers       ElapsedSource
	kv           *redis.Client
	clock        clock.Clock
	lockTTL      time.Duration
	logger       zerolog.Logger
}

// NewService constructs the scoring service.
func NewService(
	participants ParticipantStore,
	games GameStore,
	questions QuestionStore,
	timers ElapsedSource,
	kv *redis.Client,
	clk clock.Clock,
	opts Options,
	logger zerolog.Logger,
) *Service {
	ttl := opts.SubmissionLockTTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		participants: participants,
		games:        games,
		questions:    questions,
		timers:       timers,
		kv:           kv,
		clock:        clk,
		lockTTL:      ttl,
		logger:       logger.With().Str("component", "scoring").Logger(),
	}
}

func noScore(total float64, message string) *Result {
	return &Result{ScoreUpdated: false, TotalScore: total, Message: message}
}

// lockSubmission serializes submissions per (user, question): two concurrent
// submissions racing past the duplicate check could otherwise both score.
// Returns an unlock function, or nil when the lock is already held.
func (s *Service) lockSubmission(ctx context.Context, key string) (func(), error) {
	lockValue := uuid.New().String()
	acquired, err := s.kv.SetNX(ctx, key, lockValue, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire submission lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}
	unlock := func() {
		// Only delete our own lock, never one acquired after TTL expiry.
		script := `
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			else
				return 0
			end
		`
		if err := s.kv.Eval(ctx, script, []string{key}, lockValue).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("release submission lock failed")
		}
	}
	return unlock, nil
}

// SubmitAnswer runs the full scoring pipeline for one answer. It never
// returns an error for pipeline failures: those are logged and reported as a
// zero-effect result so the submission path cannot crash.
func (s *Service) SubmitAnswer(ctx context.Context, gameID uuid.UUID, userID string, sub Submission) *Result {
	logger := s.logger.With().
		Stringer("game_id", gameID).
		Str("user_id", userID).
		Str("question_uid", sub.QuestionUID).
		Logger()

	instance, err := s.games.FindByID(ctx, gameID)
	if err != nil {
		logger.Error().Err(err).Msg("scoring: game lookup failed")
		return noScore(0, "an error occurred while scoring")
	}
	if instance == nil {
		return noScore(0, "game not found")
	}

	participant, err := s.participants.Find(ctx, gameID, userID)
	if err != nil {
		logger.Error().Err(err).Msg("scoring: participant lookup failed")
		return noScore(0, "an error occurred while scoring")
	}
	if participant == nil {
		return noScore(0, "participant not found")
	}

	lockKey := game.SubmissionLockKey(instance.AccessCode, userID, sub.QuestionUID)
	unlock, err := s.lockSubmission(ctx, lockKey)
	if err != nil {
		logger.Error().Err(err).Msg("scoring: lock acquisition failed")
		return noScore(participant.Score, "an error occurred while scoring")
	}
	if unlock == nil {
		logger.Warn().Msg("concurrent submission rejected")
		return noScore(participant.Score, "submission already in progress")
	}
	defer unlock()

	deferred := participant.ParticipationType == game.ParticipationDeferred
	var attemptCount *int
	if deferred {
		attempt := participant.AttemptCount
		attemptCount = &attempt
	}

	answerKey := game.AnswerHashKey(instance.AccessCode, sub.QuestionUID, attemptCount)
	previous, err := s.loadAnswer(ctx, answerKey, userID)
	if err != nil {
		logger.Warn().Err(err).Msg("scoring: previous answer unreadable, treating as absent")
	}
	if previous != nil && AnswersEqual(previous.Answer, sub.Answer) {
		logger.Info().Msg("duplicate submission ignored")
		return &Result{
			ScoreUpdated: false,
			TotalScore:   participant.Score,
			Message:      "answer unchanged",
		}
	}

	question, err := s.questions.FindByUID(ctx, sub.QuestionUID)
	if err != nil {
		logger.Error().Err(err).Msg("scoring: question lookup failed")
		return noScore(participant.Score, "an error occurred while scoring")
	}

	correct := CheckAnswer(question, sub.Answer)

	// Quiz mode runs against a single globally synchronized timer the client
	// cannot drift from, so its self-reported time is trusted. Every other
	// mode measures elapsed time server-side.
	effectiveMs := sub.TimeSpentMs
	serverMs := sub.TimeSpentMs
	if instance.PlayMode != game.PlayModeQuiz {
		serverMs, err = s.timers.ElapsedMs(ctx, instance.PlayMode, timer.KeyRef{
			AccessCode:   instance.AccessCode,
			QuestionUID:  sub.QuestionUID,
			UserID:       userID,
			IsDeferred:   deferred,
			AttemptCount: attemptCount,
		})
		if err != nil {
			logger.Error().Err(err).Msg("scoring: elapsed time lookup failed")
			return noScore(participant.Score, "an error occurred while scoring")
		}
		effectiveMs = serverMs
	}

	score := AnswerScore(correct, effectiveMs)

	var previousScore float64
	if previous != nil {
		previousScore = previous.Score
	}
	delta := score - previousScore

	var total float64
	if deferred && participant.Score == 0 {
		// Fresh deferred attempt: the working score starts from a clean
		// slate instead of compounding onto a stale value.
		total, err = s.participants.ReplaceScore(ctx, participant.ID, score)
	} else {
		total, err = s.participants.IncrementScore(ctx, participant.ID, delta)
	}
	if err != nil {
		logger.Error().Err(err).Msg("scoring: score update failed")
		return noScore(participant.Score, "an error occurred while scoring")
	}

	record := answerRecord{
		Answer:            sub.Answer,
		TimeSpentMs:       sub.TimeSpentMs,
		ServerTimeSpentMs: serverMs,
		IsCorrect:         correct,
		Score:             score,
		SubmittedAt:       s.clock.Now().UnixMilli(),
	}
	if err := s.storeAnswer(ctx, answerKey, userID, record); err != nil {
		logger.Error().Err(err).Msg("scoring: answer persist failed")
	}
	if err := s.kv.ZAdd(ctx, game.LeaderboardKey(instance.AccessCode), redis.Z{
		Score:  total,
		Member: userID,
	}).Err(); err != nil {
		logger.Error().Err(err).Msg("scoring: leaderboard update failed")
	}

	logger.Info().
		Bool("correct", correct).
		Float64("score", score).
		Float64("delta", delta).
		Float64("total", total).
		Msg("answer scored")

	message := "answer scored"
	switch {
	case delta == 0:
		message = "answer recorded, score unchanged"
	case previous != nil:
		message = "answer updated and rescored"
	}
	return &Result{
		ScoreUpdated:  delta != 0,
		ScoreAdded:    delta,
		TotalScore:    total,
		AnswerChanged: previous != nil,
		Message:       message,
	}
}

func (s *Service) loadAnswer(ctx context.Context, hashKey, userID string) (*answerRecord, error) {
	raw, err := s.kv.HGet(ctx, hashKey, userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load answer %s/%s: %w", hashKey, userID, err)
	}
	var record answerRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("decode answer %s/%s: %w", hashKey, userID, err)
	}
	return &record, nil
}

func (s *Service) storeAnswer(ctx context.Context, hashKey, userID string, record answerRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.kv.HSet(ctx, hashKey, userID, data).Err(); err != nil {
		return fmt.Errorf("store answer %s/%s: %w", hashKey, userID, err)
	}
	return nil
}

// FinalizeDeferredAttempt records the end of a deferred replay: the stored
// best score only ever goes up, and the attempt's answer history is cleared.
// The best score is written both to the relational record and to a side KV
// key, since the two writes are not transactional with each other.
func (s *Service) FinalizeDeferredAttempt(ctx context.Context, gameID uuid.UUID, userID string, attemptScore float64) (float64, error) {
	instance, err := s.games.FindByID(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("finalize deferred attempt: %w", err)
	}
	if instance == nil {
		return 0, fmt.Errorf("finalize deferred attempt: game %s not found", gameID)
	}
	participant, err := s.participants.Find(ctx, gameID, userID)
	if err != nil {
		return 0, fmt.Errorf("finalize deferred attempt: %w", err)
	}
	if participant == nil {
		return 0, fmt.Errorf("finalize deferred attempt: participant %s not found", userID)
	}

	bestKey := game.DeferredBestScoreKey(gameID, userID)
	best := attemptScore
	if participant.DeferredScore > best {
		best = participant.DeferredScore
	}
	if participant.Score > best {
		best = participant.Score
	}
	if raw, err := s.kv.Get(ctx, bestKey).Result(); err == nil {
		if stored, perr := strconv.ParseFloat(raw, 64); perr == nil && stored > best {
			best = stored
		}
	} else if err != redis.Nil {
		s.logger.Warn().Err(err).Str("key", bestKey).Msg("stored best score unreadable")
	}

	if err := s.participants.SetDeferredBest(ctx, participant.ID, best); err != nil {
		return 0, fmt.Errorf("finalize deferred attempt: %w", err)
	}
	if err := s.kv.Set(ctx, bestKey, strconv.FormatFloat(best, 'f', -1, 64), 0).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", bestKey).Msg("best score KV write failed")
	}

	s.cleanupAttemptAnswers(ctx, instance.AccessCode, userID, participant.AttemptCount)

	s.logger.Info().
		Stringer("game_id", gameID).
		Str("user_id", userID).
		Float64("attempt_score", attemptScore).
		Float64("best", best).
		Msg("deferred attempt finalized")
	return best, nil
}

// cleanupAttemptAnswers drops the user's answer history for one deferred
// attempt. KEYS is acceptable here: finalization is rare and off the hot
// path.
func (s *Service) cleanupAttemptAnswers(ctx context.Context, accessCode, userID string, attemptCount int) {
	pattern := fmt.Sprintf("game:answers:%s:*:%d", accessCode, attemptCount)
	keys, err := s.kv.Keys(ctx, pattern).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("pattern", pattern).Msg("answer cleanup scan failed")
		return
	}
	for _, key := range keys {
		if err := s.kv.HDel(ctx, key, userID).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("answer cleanup delete failed")
		}
	}
}
