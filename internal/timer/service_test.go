package timer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/gamecore/internal/clock"
	"github.com/quizforge/gamecore/internal/game"
)

func newTestService(t *testing.T) (*Service, *clock.Manual, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	svc := NewService(client, clk, Options{}, zerolog.Nop())
	return svc, clk, mr
}

func sharedRef(questionUID string) KeyRef {
	return KeyRef{AccessCode: "GAME42", QuestionUID: questionUID}
}

func TestStartFreshTimer(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	state, err := svc.Start(ctx, game.PlayModeQuiz, sharedRef("q-1"), 0, 30*time.Second)
	require.NoError(t, err)

	running, ok := state.(Running)
	require.True(t, ok)
	assert.Equal(t, int64(30_000), running.DurationMs)
	assert.Equal(t, int64(0), running.TotalPlayTimeMs)
	assert.Equal(t, running.StartedAt, running.LastStateChange)
}

func TestStartDurationResolution(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Explicit override wins over the question limit.
	state, err := svc.Start(ctx, game.PlayModeQuiz, sharedRef("q-a"), 45_000, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(45_000), state.(Running).DurationMs)

	// No override, no question limit: fall back to the default.
	state, err = svc.Start(ctx, game.PlayModeQuiz, sharedRef("q-b"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackDuration.Milliseconds(), state.(Running).DurationMs)
}

// Scenario: a 30s timer runs 10s, pauses, waits, then resumes with exactly
// 20s left no matter how long it sat paused.
func TestPauseResumeConservesTimeLeft(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)

	clk.Advance(10 * time.Second)
	state, err := svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	paused := state.(Paused)
	assert.Equal(t, int64(10_000), paused.TotalPlayTimeMs)
	assert.Equal(t, int64(20_000), paused.TimeLeftMs)

	// Paused time does not count against the countdown.
	clk.Advance(5 * time.Minute)

	state, err = svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	running := state.(Running)
	assert.Equal(t, int64(10_000), running.TotalPlayTimeMs)

	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 30_000)
	require.NoError(t, err)
	assert.Equal(t, ViewRun, view.Status)
	assert.Equal(t, int64(20_000), view.TimeLeftMs)
}

func TestPauseWithoutTimer(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Pause(context.Background(), game.PlayModeQuiz, sharedRef("q-none"))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestPauseAtExactExpiryClamps(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)

	clk.Advance(30 * time.Second)
	state, err := svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.(Paused).TimeLeftMs)

	// Past the expiry instant the snapshot reports zero.
	ref2 := sharedRef("q-2")
	_, err = svc.Start(ctx, game.PlayModeQuiz, ref2, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(31 * time.Second)
	state, err = svc.Pause(ctx, game.PlayModeQuiz, ref2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.(Paused).TimeLeftMs)
}

func TestPauseIsIdempotent(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(5 * time.Second)
	first, err := svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	second, err := svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStopIsDestructiveAndIdempotent(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)

	state, err := svc.Stop(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	_, ok := state.(Stopped)
	require.True(t, ok)

	// Stopping again is not a toggle back to running.
	state, err = svc.Stop(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	_, ok = state.(Stopped)
	assert.True(t, ok)
}

func TestStateDefaultsWhenAbsent(t *testing.T) {
	svc, _, _ := newTestService(t)

	view, err := svc.State(context.Background(), game.PlayModeQuiz, sharedRef("q-1"), 25_000)
	require.NoError(t, err)
	assert.Equal(t, ViewStop, view.Status)
	assert.Equal(t, int64(25_000), view.TimeLeftMs)
	assert.Equal(t, int64(25_000), view.DurationMs)
}

func TestStateProjectsRunWithEndDate(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(12 * time.Second)

	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 30_000)
	require.NoError(t, err)
	assert.Equal(t, ViewRun, view.Status)
	assert.Equal(t, int64(18_000), view.TimeLeftMs)
	assert.Equal(t, view.Timestamp+18_000, view.TimerEndDateMs)
}

// A running record whose countdown has silently elapsed must never be
// reported as still running.
func TestStateForcesStopOnExpiry(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(31 * time.Second)

	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 30_000)
	require.NoError(t, err)
	assert.Equal(t, ViewStop, view.Status)
	assert.Equal(t, int64(0), view.TimerEndDateMs)
}

func TestStatePausedPrefersSnapshot(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	_, err = svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	clk.Advance(time.Hour)

	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 30_000)
	require.NoError(t, err)
	assert.Equal(t, ViewPause, view.Status)
	assert.Equal(t, int64(20_000), view.TimeLeftMs)
}

func TestEditDurationRunning(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)

	state, err := svc.EditDuration(ctx, game.PlayModeQuiz, ref, 60_000, true)
	require.NoError(t, err)
	running := state.(Running)
	assert.Equal(t, int64(60_000), running.DurationMs)
	assert.Equal(t, int64(10_000), running.TotalPlayTimeMs)

	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 60_000)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), view.TimeLeftMs)
}

func TestEditDurationPausedCurrentQuestion(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	_, err = svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)

	state, err := svc.EditDuration(ctx, game.PlayModeQuiz, ref, 60_000, true)
	require.NoError(t, err)
	paused := state.(Paused)
	assert.True(t, paused.HasTimeLeft)
	assert.Equal(t, int64(60_000), paused.TimeLeftMs)
}

func TestEditDurationPausedOtherQuestion(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-2")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	_, err = svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)

	state, err := svc.EditDuration(ctx, game.PlayModeQuiz, ref, 60_000, false)
	require.NoError(t, err)
	paused := state.(Paused)
	assert.False(t, paused.HasTimeLeft)

	// Remaining time is re-derived from accumulated play time, not the
	// stale pre-edit snapshot.
	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 60_000)
	require.NoError(t, err)
	assert.Equal(t, ViewPause, view.Status)
	assert.Equal(t, int64(50_000), view.TimeLeftMs)
}

func TestEditDurationBeforeFirstStart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-9")

	state, err := svc.EditDuration(ctx, game.PlayModeQuiz, ref, 45_000, false)
	require.NoError(t, err)
	stopped := state.(Stopped)
	assert.Equal(t, int64(45_000), stopped.DurationMs)

	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 30_000)
	require.NoError(t, err)
	assert.Equal(t, ViewStop, view.Status)
	assert.Equal(t, int64(45_000), view.TimeLeftMs)
}

func TestResetDeletesRecord(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, game.PlayModeQuiz, ref))

	assert.False(t, mr.Exists("timer:GAME42:q-1"))

	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 30_000)
	require.NoError(t, err)
	assert.Equal(t, ViewStop, view.Status)
}

func TestElapsedMs(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	elapsed, err := svc.ElapsedMs(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(0), elapsed)

	_, err = svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(7 * time.Second)

	elapsed, err = svc.ElapsedMs(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(7_000), elapsed)

	_, err = svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	clk.Advance(time.Minute)

	elapsed, err = svc.ElapsedMs(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(7_000), elapsed)
}

// Deferred sessions for different users or attempts never share a record.
func TestDeferredTimersAreIsolated(t *testing.T) {
	svc, clk, _ := newTestService(t)
	ctx := context.Background()
	attemptA, attemptB := 1, 2

	refA := KeyRef{AccessCode: "GAME42", QuestionUID: "q-1", UserID: "alice", IsDeferred: true, AttemptCount: &attemptA}
	refB := KeyRef{AccessCode: "GAME42", QuestionUID: "q-1", UserID: "alice", IsDeferred: true, AttemptCount: &attemptB}

	_, err := svc.Start(ctx, game.PlayModeTournament, refA, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	_, err = svc.Start(ctx, game.PlayModeTournament, refB, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(5 * time.Second)

	viewA, err := svc.State(ctx, game.PlayModeTournament, refA, 30_000)
	require.NoError(t, err)
	viewB, err := svc.State(ctx, game.PlayModeTournament, refB, 30_000)
	require.NoError(t, err)

	assert.Equal(t, int64(15_000), viewA.TimeLeftMs)
	assert.Equal(t, int64(25_000), viewB.TimeLeftMs)
}

func TestPracticeModeIsNoOp(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	state, err := svc.Start(ctx, game.PlayModePractice, ref, 0, 30*time.Second)
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Empty(t, mr.Keys())

	view, err := svc.State(ctx, game.PlayModePractice, ref, 30_000)
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestCorruptRecordTreatedAsAbsent(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	require.NoError(t, mr.Set("timer:GAME42:q-1", "{not json"))

	view, err := svc.State(ctx, game.PlayModeQuiz, ref, 30_000)
	require.NoError(t, err)
	assert.Equal(t, ViewStop, view.Status)

	// A fresh start overwrites the corrupt record.
	state, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	assert.IsType(t, Running{}, state)
}

func TestRecordRoundTrip(t *testing.T) {
	svc, clk, mr := newTestService(t)
	ctx := context.Background()
	ref := sharedRef("q-1")

	_, err := svc.Start(ctx, game.PlayModeQuiz, ref, 0, 30*time.Second)
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	want, err := svc.Pause(ctx, game.PlayModeQuiz, ref)
	require.NoError(t, err)

	raw, err := mr.Get("timer:GAME42:q-1")
	require.NoError(t, err)
	got, err := decodeState([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
