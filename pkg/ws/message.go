package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeJoinGame     = "join_game"
	TypeLeaveGame    = "leave_game"
	TypeSubmitAnswer = "submit_answer"
	TypeTimerAction  = "timer_action"

	// Server -> Client
	TypeGameJoined        = "game_joined"
	TypeParticipantJoined = "participant_joined"
	TypeTimerUpdate       = "timer_update"
	TypeAnswerAck         = "answer_ack"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeError             = "error"
	TypePing              = "ping"
	TypePong              = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// Client Messages (incoming)

type JoinGamePayload struct {
	AccessCode  string `json:"access_code"`
	Username    string `json:"username"`
	AvatarEmoji string `json:"avatar_emoji,omitempty"`
}

type LeaveGamePayload struct {
	AccessCode string `json:"access_code"`
}

type SubmitAnswerPayload struct {
	AccessCode  string `json:"access_code"`
	QuestionUID string `json:"question_uid"`
	Answer      any    `json:"answer"`
	TimeSpentMs int64  `json:"time_spent_ms"`
}

// TimerActionPayload carries host timer commands: run, pause, stop, edit.
type TimerActionPayload struct {
	AccessCode        string `json:"access_code"`
	QuestionUID       string `json:"question_uid"`
	Action            string `json:"action"`
	DurationMs        int64  `json:"duration_ms,omitempty"`
	IsCurrentQuestion bool   `json:"is_current_question,omitempty"`
}

// Server Messages (outgoing)

type GameJoinedPayload struct {
	AccessCode        string `json:"access_code"`
	GameID            string `json:"game_id"`
	ParticipationType string `json:"participation_type"`
	AttemptCount      int    `json:"attempt_count"`
}

type ParticipantJoinedPayload struct {
	AccessCode  string `json:"access_code"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AvatarEmoji string `json:"avatar_emoji,omitempty"`
}

// TimerUpdatePayload mirrors the canonical timer projection.
type TimerUpdatePayload struct {
	AccessCode     string `json:"access_code"`
	QuestionUID    string `json:"question_uid"`
	Status         string `json:"status"`
	TimeLeftMs     int64  `json:"time_left_ms"`
	DurationMs     int64  `json:"duration_ms"`
	TimerEndDateMs int64  `json:"timer_end_date_ms,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type AnswerAckPayload struct {
	QuestionUID   string  `json:"question_uid"`
	ScoreUpdated  bool    `json:"score_updated"`
	ScoreAdded    float64 `json:"score_added"`
	TotalScore    float64 `json:"total_score"`
	AnswerChanged bool    `json:"answer_changed"`
	Message       string  `json:"message"`
}

// Leaderboard updates carry the validated snapshot produced by the snapshot
// manager; their shape is owned by that package, not declared here.

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
