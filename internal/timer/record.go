package timer

import (
	"encoding/json"
	"fmt"
)

// Internal persisted statuses. The external projection maps "play" to "run".
const (
	statusPlay  = "play"
	statusPause = "pause"
	statusStop  = "stop"
)

// State is the canonical timer record as a tagged union: exactly one of
// Stopped, Running or Paused. Pause-only and run-only fields live on their
// own variants so the "exactly one of timeLeft/timerEndDate is meaningful"
// invariant holds by construction.
type State interface {
	timerState()
}

// Stopped is the canonical halted state. DurationMs is retained so a duration
// edit made before the first start survives.
type Stopped struct {
	QuestionUID     string
	StartedAt       int64
	LastStateChange int64
	DurationMs      int64
}

// Running is an actively counting timer. TotalPlayTimeMs accumulates time
// spent running across previous play/pause cycles; the current segment is
// measured from LastStateChange.
type Running struct {
	QuestionUID     string
	StartedAt       int64
	LastStateChange int64
	TotalPlayTimeMs int64
	DurationMs      int64
}

// Paused is a suspended timer. TimeLeftMs snapshots the remaining time at the
// moment of pausing; HasTimeLeft is false when a later duration edit discarded
// the snapshot, in which case readers derive remaining time from
// TotalPlayTimeMs.
type Paused struct {
	QuestionUID     string
	StartedAt       int64
	LastStateChange int64
	TotalPlayTimeMs int64
	DurationMs      int64
	TimeLeftMs      int64
	HasTimeLeft     bool
}

func (Stopped) timerState() {}
func (Running) timerState() {}
func (Paused) timerState()  {}

// wireRecord is the flat persisted encoding. Its layout must remain stable:
// other services read these keys.
type wireRecord struct {
	QuestionUID     string `json:"questionUid"`
	Status          string `json:"status"`
	StartedAt       int64  `json:"startedAt"`
	LastStateChange int64  `json:"lastStateChange"`
	TotalPlayTimeMs int64  `json:"totalPlayTimeMs"`
	DurationMs      int64  `json:"durationMs"`
	TimeLeftMs      *int64 `json:"timeLeftMs,omitempty"`
	TimerEndDateMs  int64  `json:"timerEndDateMs"`
}

func encodeState(s State) ([]byte, error) {
	var w wireRecord
	switch v := s.(type) {
	case Stopped:
		w = wireRecord{
			QuestionUID:     v.QuestionUID,
			Status:          statusStop,
			StartedAt:       v.StartedAt,
			LastStateChange: v.LastStateChange,
			DurationMs:      v.DurationMs,
		}
		left := v.DurationMs
		w.TimeLeftMs = &left
	case Running:
		w = wireRecord{
			QuestionUID:     v.QuestionUID,
			Status:          statusPlay,
			StartedAt:       v.StartedAt,
			LastStateChange: v.LastStateChange,
			TotalPlayTimeMs: v.TotalPlayTimeMs,
			DurationMs:      v.DurationMs,
		}
	case Paused:
		w = wireRecord{
			QuestionUID:     v.QuestionUID,
			Status:          statusPause,
			StartedAt:       v.StartedAt,
			LastStateChange: v.LastStateChange,
			TotalPlayTimeMs: v.TotalPlayTimeMs,
			DurationMs:      v.DurationMs,
		}
		if v.HasTimeLeft {
			left := v.TimeLeftMs
			w.TimeLeftMs = &left
		}
	default:
		return nil, fmt.Errorf("encode timer state: unknown variant %T", s)
	}
	return json.Marshal(w)
}

func decodeState(data []byte) (State, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode timer state: %w", err)
	}
	switch w.Status {
	case statusPlay:
		return Running{
			QuestionUID:     w.QuestionUID,
			StartedAt:       w.StartedAt,
			LastStateChange: w.LastStateChange,
			TotalPlayTimeMs: w.TotalPlayTimeMs,
			DurationMs:      w.DurationMs,
		}, nil
	case statusPause:
		p := Paused{
			QuestionUID:     w.QuestionUID,
			StartedAt:       w.StartedAt,
			LastStateChange: w.LastStateChange,
			TotalPlayTimeMs: w.TotalPlayTimeMs,
			DurationMs:      w.DurationMs,
		}
		if w.TimeLeftMs != nil && *w.TimeLeftMs >= 0 {
			p.TimeLeftMs = *w.TimeLeftMs
			p.HasTimeLeft = true
		}
		return p, nil
	case statusStop:
		return Stopped{
			QuestionUID:     w.QuestionUID,
			StartedAt:       w.StartedAt,
			LastStateChange: w.LastStateChange,
			DurationMs:      w.DurationMs,
		}, nil
	default:
		return nil, fmt.Errorf("decode timer state: unknown status %q", w.Status)
	}
}

// ViewStatus is the externally reported timer status.
type ViewStatus string

const (
	ViewRun   ViewStatus = "run"
	ViewPause ViewStatus = "pause"
	ViewStop  ViewStatus = "stop"
)

// View is the read-only projection handed to consumers. It never exposes the
// internal record shape.
type View struct {
	Status         ViewStatus `json:"status"`
	TimeLeftMs     int64      `json:"timeLeftMs"`
	DurationMs     int64      `json:"durationMs"`
	QuestionUID    string     `json:"questionUid"`
	Timestamp      int64      `json:"timestamp"`
	TimerEndDateMs int64      `json:"timerEndDateMs"`
}
