package timer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizforge/gamecore/internal/clock"
	"github.com/quizforge/gamecore/internal/game"
)

// minPausedTimeLeftMs is the floor applied when pausing computes a remaining
// time of zero while the timer has in fact not run out. Never report an
// active countdown as already expired due to clock skew.
const minPausedTimeLeftMs = 1

// DefaultFallbackDuration applies when neither an override nor a question
// time limit is available.
const DefaultFallbackDuration = 30 * time.Second

// Options configures the timer service.
type Options struct {
	FallbackDuration time.Duration
}

// Service owns the canonical timer record per key and persists it in the
// key-value store. All operations are no-ops for practice mode, which has no
// shared timer.
type Service struct {
	kv       *redis.Client
	clock    clock.Clock
	fallback time.Duration
	logger   zerolog.Logger
}

// NewService constructs a timer service.
func NewService(kv *redis.Client, clk clock.Clock, opts Options, logger zerolog.Logger) *Service {
	fallback := opts.FallbackDuration
	if fallback <= 0 {
		fallback = DefaultFallbackDuration
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		kv:       kv,
		clock:    clk,
		fallback: fallback,
		logger:   logger.With().Str("component", "timer").Logger(),
	}
}

func (s *Service) nowMs() int64 {
	return s.clock.Now().UnixMilli()
}

// load reads and decodes the record at key. A corrupted record is logged and
// treated as absent; a missing key returns (nil, nil).
func (s *Service) load(ctx context.Context, key string) (State, error) {
	raw, err := s.kv.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("timer read failed, treating as absent")
		return nil, nil
	}
	state, err := decodeState([]byte(raw))
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("corrupt timer record, treating as absent")
		return nil, nil
	}
	return state, nil
}

func (s *Service) store(ctx context.Context, key string, state State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("store timer %s: %w", key, err)
	}
	return nil
}

// resolveDuration picks the canonical duration for a fresh timer: a positive
// override wins, then the question's configured limit, then the fallback.
func (s *Service) resolveDuration(overrideMs int64, questionLimit time.Duration) int64 {
	if overrideMs > 0 {
		return overrideMs
	}
	if questionLimit > 0 {
		return questionLimit.Milliseconds()
	}
	return s.fallback.Milliseconds()
}

// Start begins or resumes the timer behind ref. A paused timer resumes with
// exactly its remaining time preserved; any other prior state is replaced by
// a fresh running record.
func (s *Service) Start(ctx context.Context, mode game.PlayMode, ref KeyRef, overrideMs int64, questionLimit time.Duration) (State, error) {
	if mode == game.PlayModePractice {
		return nil, nil
	}
	key, err := ResolveKey(ref)
	if err != nil {
		return nil, err
	}
	now := s.nowMs()
	durationMs := s.resolveDuration(overrideMs, questionLimit)

	prev, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	var next Running
	if paused, ok := prev.(Paused); ok {
		// Resume: recompute accumulated play time from the pause snapshot so
		// the remaining time carries over exactly.
		prevDuration := paused.DurationMs
		if prevDuration <= 0 {
			prevDuration = durationMs
		}
		total := paused.TotalPlayTimeMs
		if paused.HasTimeLeft {
			total = max64(0, prevDuration-paused.TimeLeftMs)
		}
		next = Running{
			QuestionUID:     ref.QuestionUID,
			StartedAt:       paused.StartedAt,
			LastStateChange: now,
			TotalPlayTimeMs: total,
			DurationMs:      prevDuration,
		}
	} else {
		next = Running{
			QuestionUID:     ref.QuestionUID,
			StartedAt:       now,
			LastStateChange: now,
			TotalPlayTimeMs: 0,
			DurationMs:      durationMs,
		}
	}

	if err := s.store(ctx, key, next); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("key", key).
		Str("question_uid", ref.QuestionUID).
		Int64("duration_ms", next.DurationMs).
		Int64("total_play_time_ms", next.TotalPlayTimeMs).
		Msg("timer started")
	return next, nil
}

// ErrNotStarted reports a pause request against a timer that never started.
var ErrNotStarted = fmt.Errorf("timer: not started")

// Pause suspends a running timer and snapshots its remaining time. Pausing a
// timer with no record fails with ErrNotStarted; pausing an already paused or
// stopped timer leaves the record untouched.
func (s *Service) Pause(ctx context.Context, mode game.PlayMode, ref KeyRef) (State, error) {
	if mode == game.PlayModePractice {
		return nil, nil
	}
	key, err := ResolveKey(ref)
	if err != nil {
		return nil, err
	}
	prev, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		s.logger.Warn().Str("key", key).Msg("no timer found to pause")
		return nil, ErrNotStarted
	}

	running, ok := prev.(Running)
	if !ok {
		s.logger.Info().Str("key", key).Msg("timer already paused or stopped")
		return prev, nil
	}

	now := s.nowMs()
	total := running.TotalPlayTimeMs + (now - running.LastStateChange)
	left := running.DurationMs - total
	if left < 0 {
		left = 0
	} else if left == 0 && running.DurationMs > 0 {
		// Pause landed on the exact expiry instant. The timer has not been
		// observed as expired yet, so clamp rather than snapshot a dead
		// countdown that could never resume.
		s.logger.Error().
			Str("key", key).
			Int64("duration_ms", running.DurationMs).
			Int64("total_play_time_ms", total).
			Msg("pause computed zero time left on an unexpired timer, clamping")
		left = minPausedTimeLeftMs
	}

	next := Paused{
		QuestionUID:     running.QuestionUID,
		StartedAt:       running.StartedAt,
		LastStateChange: now,
		TotalPlayTimeMs: total,
		DurationMs:      running.DurationMs,
		TimeLeftMs:      left,
		HasTimeLeft:     true,
	}
	if err := s.store(ctx, key, next); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("key", key).
		Int64("time_left_ms", left).
		Msg("timer paused")
	return next, nil
}

// Stop unconditionally overwrites the record with the canonical stopped
// state. Stop is idempotent and destructive, not a toggle.
func (s *Service) Stop(ctx context.Context, mode game.PlayMode, ref KeyRef) (State, error) {
	if mode == game.PlayModePractice {
		return nil, nil
	}
	key, err := ResolveKey(ref)
	if err != nil {
		return nil, err
	}
	now := s.nowMs()
	next := Stopped{
		QuestionUID:     ref.QuestionUID,
		StartedAt:       now,
		LastStateChange: now,
	}
	if err := s.store(ctx, key, next); err != nil {
		return nil, err
	}
	s.logger.Info().Str("key", key).Msg("timer stopped")
	return next, nil
}

// State derives the read-only projection for consumers. durationMs is the
// question's canonical duration, used when the record carries none (or no
// record exists).
func (s *Service) State(ctx context.Context, mode game.PlayMode, ref KeyRef, durationMs int64) (*View, error) {
	if mode == game.PlayModePractice {
		return nil, nil
	}
	key, err := ResolveKey(ref)
	if err != nil {
		return nil, err
	}
	now := s.nowMs()
	state, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &View{
			Status:      ViewStop,
			TimeLeftMs:  durationMs,
			DurationMs:  durationMs,
			QuestionUID: ref.QuestionUID,
			Timestamp:   now,
		}, nil
	}

	view := &View{
		QuestionUID: ref.QuestionUID,
		Timestamp:   now,
	}

	switch v := state.(type) {
	case Running:
		duration := v.DurationMs
		if duration <= 0 {
			duration = durationMs
		}
		elapsed := (now - v.LastStateChange) + v.TotalPlayTimeMs
		left := max64(0, duration-elapsed)
		view.Status = ViewRun
		view.DurationMs = duration
		view.TimeLeftMs = left
		view.TimerEndDateMs = now + left
		if v.QuestionUID != "" {
			view.QuestionUID = v.QuestionUID
		}
		// A running timer that has silently expired must never be reported
		// as still running.
		if left <= 0 || duration <= 0 {
			view.Status = ViewStop
			view.TimeLeftMs = duration
			view.TimerEndDateMs = 0
		}
	case Paused:
		duration := v.DurationMs
		if duration <= 0 {
			duration = durationMs
		}
		var left int64
		if v.HasTimeLeft {
			left = v.TimeLeftMs
		} else {
			left = max64(0, duration-v.TotalPlayTimeMs)
		}
		view.Status = ViewPause
		view.DurationMs = duration
		view.TimeLeftMs = left
		if v.QuestionUID != "" {
			view.QuestionUID = v.QuestionUID
		}
	case Stopped:
		duration := v.DurationMs
		if duration <= 0 {
			duration = durationMs
		}
		view.Status = ViewStop
		view.DurationMs = duration
		view.TimeLeftMs = duration
		if v.QuestionUID != "" {
			view.QuestionUID = v.QuestionUID
		}
	}
	return view, nil
}

// ElapsedMs reports accumulated play time for the timer behind ref. Used as
// the server-side timing source for per-user (deferred) scoring.
func (s *Service) ElapsedMs(ctx context.Context, mode game.PlayMode, ref KeyRef) (int64, error) {
	if mode == game.PlayModePractice {
		return 0, nil
	}
	key, err := ResolveKey(ref)
	if err != nil {
		return 0, err
	}
	state, err := s.load(ctx, key)
	if err != nil {
		return 0, err
	}
	switch v := state.(type) {
	case Running:
		return v.TotalPlayTimeMs + (s.nowMs() - v.LastStateChange), nil
	case Paused:
		return v.TotalPlayTimeMs, nil
	default:
		return 0, nil
	}
}

// EditDuration changes the canonical duration of the timer behind ref.
// isCurrentQuestion must be supplied explicitly by the call site: a paused
// timer on the question currently shown also has its live countdown adjusted,
// while edits to any other question must not leak a stale remaining time.
func (s *Service) EditDuration(ctx context.Context, mode game.PlayMode, ref KeyRef, newDurationMs int64, isCurrentQuestion bool) (State, error) {
	if mode == game.PlayModePractice {
		return nil, nil
	}
	key, err := ResolveKey(ref)
	if err != nil {
		return nil, err
	}
	now := s.nowMs()
	prev, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}

	var next State
	switch v := prev.(type) {
	case nil:
		next = Stopped{
			QuestionUID:     ref.QuestionUID,
			StartedAt:       now,
			LastStateChange: now,
			DurationMs:      newDurationMs,
		}
	case Running:
		// Fold the elapsed segment into TotalPlayTimeMs so the projected end
		// date is recomputed against the new duration.
		v.TotalPlayTimeMs += now - v.LastStateChange
		v.LastStateChange = now
		v.DurationMs = newDurationMs
		next = v
	case Paused:
		v.DurationMs = newDurationMs
		if isCurrentQuestion {
			v.TimeLeftMs = newDurationMs
			v.HasTimeLeft = true
		} else {
			v.TimeLeftMs = 0
			v.HasTimeLeft = false
		}
		next = v
	case Stopped:
		v.DurationMs = newDurationMs
		next = v
	}

	if err := s.store(ctx, key, next); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("key", key).
		Int64("duration_ms", newDurationMs).
		Bool("current_question", isCurrentQuestion).
		Msg("timer duration edited")
	return next, nil
}

// Reset deletes the record outright; the next State call reports the default
// stopped projection.
func (s *Service) Reset(ctx context.Context, mode game.PlayMode, ref KeyRef) error {
	if mode == game.PlayModePractice {
		return nil
	}
	key, err := ResolveKey(ref)
	if err != nil {
		return err
	}
	if err := s.kv.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset timer %s: %w", key, err)
	}
	s.logger.Info().Str("key", key).Msg("timer reset")
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
