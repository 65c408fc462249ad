package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quizforge/gamecore/internal/game"
)

func TestAnswerScore(t *testing.T) {
	tests := []struct {
		name        string
		correct     bool
		timeSpentMs int64
		want        float64
	}{
		{"incorrect scores zero", false, 0, 0},
		{"instant correct answer", true, 0, 1000},
		{"two seconds costs twenty points", true, 2_000, 980},
		{"sub-second penalty is floored", true, 2_550, 975},
		{"penalty floors at zero", true, 200_000, 0},
		{"negative time treated as zero", true, -5, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnswerScore(tt.correct, tt.timeSpentMs))
		})
	}
}

func TestCheckAnswerSingleChoice(t *testing.T) {
	q := &game.Question{
		UID:            "q-1",
		QuestionType:   questionTypeSingleChoice,
		CorrectAnswers: []bool{false, true, false},
	}

	assert.True(t, CheckAnswer(q, 1))
	assert.True(t, CheckAnswer(q, float64(1)))
	assert.False(t, CheckAnswer(q, 0))
	assert.False(t, CheckAnswer(q, 3))
	assert.False(t, CheckAnswer(q, -1))
	assert.False(t, CheckAnswer(q, "1"))
}

func TestCheckAnswerMultipleChoice(t *testing.T) {
	q := &game.Question{
		UID:            "q-2",
		QuestionType:   questionTypeMultipleChoice,
		CorrectAnswers: []bool{true, false, true, false},
	}

	assert.True(t, CheckAnswer(q, []int{0, 2}))
	assert.True(t, CheckAnswer(q, []int{2, 0}), "order must not matter")
	assert.True(t, CheckAnswer(q, []any{float64(0), float64(2)}))
	assert.False(t, CheckAnswer(q, []int{0}), "subset is not a match")
	assert.False(t, CheckAnswer(q, []int{0, 1, 2}), "superset is not a match")
	assert.False(t, CheckAnswer(q, 0), "scalar payload rejected")
}

func TestCheckAnswerFallbackEquality(t *testing.T) {
	q := &game.Question{
		UID:            "q-3",
		QuestionType:   "free_text_vector",
		CorrectAnswers: []bool{true, false},
	}

	assert.True(t, CheckAnswer(q, []bool{true, false}))
	assert.False(t, CheckAnswer(q, []bool{false, true}))
}

func TestCheckAnswerNilQuestion(t *testing.T) {
	assert.False(t, CheckAnswer(nil, 1))
}

func TestAnswersEqual(t *testing.T) {
	assert.True(t, AnswersEqual(1, float64(1)))
	assert.True(t, AnswersEqual([]int{1, 2}, []any{float64(1), float64(2)}))
	assert.False(t, AnswersEqual([]int{1, 2}, []int{2, 1}))
	assert.False(t, AnswersEqual("a", "b"))
	assert.True(t, AnswersEqual(nil, nil))
}
