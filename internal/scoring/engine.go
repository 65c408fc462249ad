package scoring

import (
	"encoding/json"
	"reflect"

	"github.com/quizforge/gamecore/internal/game"
)

// Question types with dedicated correctness rules. Anything else falls back
// to direct equality against the answer key.
const (
	questionTypeSingleChoice   = "single_choice"
	questionTypeMultipleChoice = "multiple_choice"
)

// baseScore is the flat score of an instantly answered correct question; the
// time penalty of penaltyPerSecond points per elapsed second is subtracted
// from it, floored at zero.
const (
	baseScore        = 1000.0
	penaltyPerSecond = 10.0
)

// AnswerScore computes the score for one answer: zero when incorrect,
// otherwise the base score minus the linear time penalty.
func AnswerScore(correct bool, timeSpentMs int64) float64 {
	if !correct {
		return 0
	}
	if timeSpentMs < 0 {
		timeSpentMs = 0
	}
	// floor(secondsSpent * 10), computed in integer tenths of a second.
	penalty := float64(timeSpentMs/100) * (penaltyPerSecond / 10)
	score := baseScore - penalty
	if score < 0 {
		return 0
	}
	return score
}

// CheckAnswer evaluates a submitted answer against the question's answer key.
// Multi-select requires the submitted index set to match the true positions
// of the boolean vector exactly, order-independent. Single-select checks one
// submitted index. Other types compare the payload to the answer key
// directly.
func CheckAnswer(q *game.Question, answer any) bool {
	if q == nil {
		return false
	}
	switch q.QuestionType {
	case questionTypeMultipleChoice:
		indexes, ok := answerIndexSet(answer)
		if !ok {
			return false
		}
		return indexes.equals(correctIndexSet(q.CorrectAnswers))
	case questionTypeSingleChoice:
		idx, ok := answerIndex(answer)
		if !ok {
			return false
		}
		return idx >= 0 && idx < len(q.CorrectAnswers) && q.CorrectAnswers[idx]
	default:
		return reflect.DeepEqual(normalizeAnswer(answer), normalizeAnswer(q.CorrectAnswers))
	}
}

// AnswersEqual reports whether two answer payloads are the same value once
// both are normalized through JSON. Used as the duplicate-submission guard.
func AnswersEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeAnswer(a), normalizeAnswer(b))
}

// normalizeAnswer round-trips a payload through JSON so values that differ
// only in Go representation (int vs float64, []int vs []any) compare equal.
func normalizeAnswer(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

type indexSet map[int]struct{}

func (s indexSet) equals(other indexSet) bool {
	if len(s) != len(other) {
		return false
	}
	for idx := range s {
		if _, ok := other[idx]; !ok {
			return false
		}
	}
	return true
}

func correctIndexSet(vector []bool) indexSet {
	set := make(indexSet)
	for i, correct := range vector {
		if correct {
			set[i] = struct{}{}
		}
	}
	return set
}

func answerIndexSet(answer any) (indexSet, bool) {
	items, ok := normalizeAnswer(answer).([]any)
	if !ok {
		return nil, false
	}
	set := make(indexSet, len(items))
	for _, item := range items {
		idx, ok := toIndex(item)
		if !ok {
			return nil, false
		}
		set[idx] = struct{}{}
	}
	return set, true
}

func answerIndex(answer any) (int, bool) {
	return toIndex(normalizeAnswer(answer))
}

func toIndex(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
