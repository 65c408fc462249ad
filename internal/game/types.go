package game

import (
	"time"

	"github.com/google/uuid"
)

// PlayMode distinguishes how a game instance is run.
type PlayMode string

const (
	PlayModeQuiz       PlayMode = "quiz"
	PlayModeTournament PlayMode = "tournament"
	PlayModePractice   PlayMode = "practice"
)

// ParticipationType separates the two competitive tracks a user can play in.
type ParticipationType string

const (
	ParticipationLive     ParticipationType = "LIVE"
	ParticipationDeferred ParticipationType = "DEFERRED"
)

// Status tracks the lifecycle of a game instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Instance is one runnable game, addressed publicly by its access code.
type Instance struct {
	ID                    uuid.UUID
	AccessCode            string
	Name                  string
	PlayMode              PlayMode
	IsDeferred            bool
	Status                Status
	DeferredAvailableFrom *time.Time
	DeferredAvailableTo   *time.Time
}

// Participant is one user's participation record in a game instance.
// For DEFERRED participation Score holds the working score of the current
// attempt while DeferredScore retains the best score across attempts.
type Participant struct {
	ID                uuid.UUID
	GameInstanceID    uuid.UUID
	UserID            string
	Username          string
	AvatarEmoji       string
	Score             float64
	LiveScore         float64
	DeferredScore     float64
	ParticipationType ParticipationType
	AttemptCount      int
	NbAttempts        int
	JoinedAt          time.Time
}

// Question carries the scoring-relevant fields of a question bank entry.
// CorrectAnswers is a boolean vector over the answer options.
type Question struct {
	UID            string
	QuestionType   string
	TimeLimit      time.Duration
	CorrectAnswers []bool
}
