package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKeyShared(t *testing.T) {
	key, err := ResolveKey(KeyRef{AccessCode: "ABC123", QuestionUID: "q-7"})
	require.NoError(t, err)
	assert.Equal(t, "timer:ABC123:q-7", key)
}

func TestResolveKeyDeferred(t *testing.T) {
	attempt := 3
	key, err := ResolveKey(KeyRef{
		AccessCode:   "ABC123",
		QuestionUID:  "q-7",
		UserID:       "user-1",
		IsDeferred:   true,
		AttemptCount: &attempt,
	})
	require.NoError(t, err)
	assert.Equal(t, "deferred:timer:ABC123:user-1:3:q-7", key)
}

func TestResolveKeyDeferredWithoutAttempt(t *testing.T) {
	_, err := ResolveKey(KeyRef{
		AccessCode:  "ABC123",
		QuestionUID: "q-7",
		UserID:      "user-1",
		IsDeferred:  true,
	})
	assert.ErrorIs(t, err, ErrAttemptCountRequired)
}

func TestResolveKeyDeterministic(t *testing.T) {
	attempt := 1
	ref := KeyRef{
		AccessCode:   "XYZ",
		QuestionUID:  "q-1",
		UserID:       "u",
		IsDeferred:   true,
		AttemptCount: &attempt,
	}
	a, err := ResolveKey(ref)
	require.NoError(t, err)
	b, err := ResolveKey(ref)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolveKeyAttemptsAreIsolated(t *testing.T) {
	first, second := 1, 2
	ref := KeyRef{AccessCode: "XYZ", QuestionUID: "q-1", UserID: "u", IsDeferred: true}

	ref.AttemptCount = &first
	a, err := ResolveKey(ref)
	require.NoError(t, err)
	ref.AttemptCount = &second
	b, err := ResolveKey(ref)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
