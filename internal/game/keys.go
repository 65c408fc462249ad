package game

import (
	"fmt"

	"github.com/google/uuid"
)

// Key-value store key layout shared by scoring and leaderboard code. The
// persisted layout must remain stable across versions: other services read
// these keys.

// AnswerHashKey addresses the per-question answer hash (field = userId).
// Deferred attempts get their own hash per attempt ordinal.
func AnswerHashKey(accessCode, questionUID string, attemptCount *int) string {
	if attemptCount != nil {
		return fmt.Sprintf("game:answers:%s:%s:%d", accessCode, questionUID, *attemptCount)
	}
	return fmt.Sprintf("game:answers:%s:%s", accessCode, questionUID)
}

// LeaderboardKey addresses the per-game sorted set of live scores.
func LeaderboardKey(accessCode string) string {
	return fmt.Sprintf("game:leaderboard:%s", accessCode)
}

// SnapshotKey addresses the persisted leaderboard snapshot.
func SnapshotKey(accessCode string) string {
	return fmt.Sprintf("leaderboard:snapshot:%s", accessCode)
}

// DeferredBestScoreKey addresses the side copy of a user's best deferred
// score, kept next to the relational record.
func DeferredBestScoreKey(gameID uuid.UUID, userID string) string {
	return fmt.Sprintf("deferred:best_score:%s:%s", gameID, userID)
}

// JoinBonusSetKey addresses the membership set guarding the one-shot
// join-order bonus.
func JoinBonusSetKey(accessCode string) string {
	return fmt.Sprintf("game:join_bonus:%s", accessCode)
}

// DeferredSessionKey marks a deferred replay in progress. Present between
// join and attempt finalization; its value is the attempt ordinal.
func DeferredSessionKey(accessCode, userID string) string {
	return fmt.Sprintf("deferred:session:%s:%s", accessCode, userID)
}

// SubmissionLockKey addresses the short-lived lock serializing answer
// submissions per user per question.
func SubmissionLockKey(accessCode, userID, questionUID string) string {
	return fmt.Sprintf("lock:answer:%s:%s:%s", accessCode, userID, questionUID)
}
