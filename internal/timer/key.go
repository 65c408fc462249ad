package timer

import (
	"errors"
	"fmt"
)

// ErrAttemptCountRequired is returned when a deferred timer key is requested
// without an attempt count. This indicates a caller bug, never a runtime
// state to recover from.
var ErrAttemptCountRequired = errors.New("timer: deferred key requires an attempt count")

// KeyRef carries the logical coordinates of one canonical timer.
//
// Shared timers (live quiz / live tournament) are addressed per question per
// game instance; deferred timers are addressed per user per replay attempt.
type KeyRef struct {
	AccessCode   string
	QuestionUID  string
	UserID       string
	IsDeferred   bool
	AttemptCount *int
}

// ResolveKey maps a KeyRef to its storage key. It is a pure function: equal
// inputs always produce byte-identical keys, for writers and readers alike.
// The persisted layout is stable across versions:
//
//	shared:   timer:{accessCode}:{questionUid}
//	deferred: deferred:timer:{accessCode}:{userId}:{attemptCount}:{questionUid}
func ResolveKey(ref KeyRef) (string, error) {
	if ref.IsDeferred {
		if ref.AttemptCount == nil {
			return "", ErrAttemptCountRequired
		}
		return fmt.Sprintf("deferred:timer:%s:%s:%d:%s",
			ref.AccessCode, ref.UserID, *ref.AttemptCount, ref.QuestionUID), nil
	}
	return fmt.Sprintf("timer:%s:%s", ref.AccessCode, ref.QuestionUID), nil
}
