package gameplay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizforge/gamecore/internal/game"
	"github.com/quizforge/gamecore/internal/leaderboard"
	"github.com/quizforge/gamecore/internal/participant"
	"github.com/quizforge/gamecore/internal/scoring"
	"github.com/quizforge/gamecore/internal/timer"
	httperrors "github.com/quizforge/gamecore/pkg/http/errors"
	"github.com/quizforge/gamecore/pkg/ws"
)

// Timer actions accepted over the wire.
const (
	timerActionRun   = "run"
	timerActionPause = "pause"
	timerActionStop  = "stop"
	timerActionEdit  = "edit"
)

// GameStore resolves game instances by access code.
type GameStore interface {
	FindByAccessCode(ctx context.Context, accessCode string) (*game.Instance, error)
}

// QuestionStore resolves question time limits.
type QuestionStore interface {
	FindByUID(ctx context.Context, uid string) (*game.Question, error)
}

// ParticipantSource resolves a user's participation record.
type ParticipantSource interface {
	Find(ctx context.Context, gameID uuid.UUID, userID string) (*game.Participant, error)
}

// Handler manages WebSocket connections and routes gameplay messages to the
// join, timer, scoring and leaderboard services.
type Handler struct {
	joins        *participant.JoinService
	scores       *scoring.Service
	timers       *timer.Service
	snapshots    *leaderboard.SnapshotService
	games        GameStore
	questions    QuestionStore
	participants ParticipantSource
	hub          *ws.Hub
	logger       zerolog.Logger
}

// NewHandler creates a gameplay WebSocket handler.
func NewHandler(
	joins *participant.JoinService,
	scores *scoring.Service,
	timers *timer.Service,
	snapshots *leaderboard.SnapshotService,
	games GameStore,
	questions QuestionStore,
	participants ParticipantSource,
	hub *ws.Hub,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		joins:        joins,
		scores:       scores,
		timers:       timers,
		snapshots:    snapshots,
		games:        games,
		questions:    questions,
		participants: participants,
		hub:          hub,
		logger:       logger.With().Str("component", "gameplay_handler").Logger(),
	}
}

// HandleConnection processes a new WebSocket connection. The caller has
// already authenticated the user.
func (h *Handler) HandleConnection(conn *websocket.Conn, userID, username, avatarEmoji string) {
	wsConn := ws.NewConnection(conn, h.logger)
	h.hub.RegisterConnection(userID, wsConn)

	// Start write pump
	go wsConn.WritePump()

	// Handle incoming messages
	wsConn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(context.Background(), userID, username, avatarEmoji, msg)
	})

	// Cleanup on disconnect
	h.hub.UnregisterConnection(userID)
}

// handleMessage routes incoming WebSocket messages.
func (h *Handler) handleMessage(ctx context.Context, userID, username, avatarEmoji string, msg ws.Message) error {
	switch msg.Type {
	case ws.TypeJoinGame:
		return h.handleJoinGame(ctx, userID, username, avatarEmoji, msg.Payload)
	case ws.TypeSubmitAnswer:
		return h.handleSubmitAnswer(ctx, userID, msg.Payload)
	case ws.TypeTimerAction:
		return h.handleTimerAction(ctx, userID, msg.Payload)
	case ws.TypeLeaveGame:
		return h.handleLeaveGame(ctx, userID, msg.Payload)
	case ws.TypePing:
		return h.hub.SendToUser(userID, ws.Message{Type: ws.TypePong})
	default:
		return h.sendError(userID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (h *Handler) handleJoinGame(ctx context.Context, userID, username, avatarEmoji string, payload json.RawMessage) error {
	var req ws.JoinGamePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(userID, httperrors.ErrCodeInvalidPayload, "Invalid join_game payload")
	}
	if req.Username != "" {
		username = req.Username
	}
	if req.AvatarEmoji != "" {
		avatarEmoji = req.AvatarEmoji
	}

	res, err := h.joins.Join(ctx, req.AccessCode, userID, username, avatarEmoji)
	if err != nil {
		switch err {
		case participant.ErrGameNotFound:
			return h.sendError(userID, httperrors.ErrCodeGameNotFound, "Game not found")
		case participant.ErrGameCompleted:
			return h.sendError(userID, httperrors.ErrCodeGameCompleted, "Game already completed")
		case participant.ErrDeferredUnavailable:
			return h.sendError(userID, httperrors.ErrCodeDeferredUnavailable, "Deferred play window closed")
		default:
			h.logger.Error().Err(err).Str("user_id", userID).Msg("join failed")
			return h.sendError(userID, httperrors.ErrCodeJoinFailed, "Could not join game")
		}
	}

	h.hub.JoinRoom(req.AccessCode, userID)
	joinsScored.Inc()

	if res.IsNew {
		h.broadcast(req.AccessCode, ws.TypeParticipantJoined, ws.ParticipantJoinedPayload{
			AccessCode:  req.AccessCode,
			UserID:      userID,
			Username:    res.Participant.Username,
			AvatarEmoji: res.Participant.AvatarEmoji,
		})
	}
	return h.send(userID, ws.TypeGameJoined, ws.GameJoinedPayload{
		AccessCode:        req.AccessCode,
		GameID:            res.Instance.ID.String(),
		ParticipationType: string(res.Participant.ParticipationType),
		AttemptCount:      res.Participant.AttemptCount,
	})
}

func (h *Handler) handleSubmitAnswer(ctx context.Context, userID string, payload json.RawMessage) error {
	var req ws.SubmitAnswerPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(userID, httperrors.ErrCodeInvalidPayload, "Invalid submit_answer payload")
	}

	instance, err := h.games.FindByAccessCode(ctx, req.AccessCode)
	if err != nil {
		h.logger.Error().Err(err).Str("access_code", req.AccessCode).Msg("game lookup failed")
		return h.sendError(userID, httperrors.ErrCodeSubmitFailed, "Could not submit answer")
	}
	if instance == nil {
		return h.sendError(userID, httperrors.ErrCodeGameNotFound, "Game not found")
	}

	res := h.scores.SubmitAnswer(ctx, instance.ID, userID, scoring.Submission{
		QuestionUID: req.QuestionUID,
		Answer:      req.Answer,
		TimeSpentMs: req.TimeSpentMs,
	})
	answersScored.Inc()

	if res.ScoreUpdated {
		// Snapshot first, then the read-only broadcast from what was
		// persisted.
		if _, err := h.snapshots.SyncSnapshotWithLiveData(ctx, instance); err != nil {
			h.logger.Warn().Err(err).Str("access_code", req.AccessCode).Msg("snapshot sync failed")
		} else if err := h.snapshots.EmitFromSnapshot(ctx, req.AccessCode,
			[]string{req.AccessCode}, ws.TypeLeaderboardUpdate); err != nil {
			h.logger.Warn().Err(err).Str("access_code", req.AccessCode).Msg("snapshot emit failed")
		}
	}

	return h.send(userID, ws.TypeAnswerAck, ws.AnswerAckPayload{
		QuestionUID:   req.QuestionUID,
		ScoreUpdated:  res.ScoreUpdated,
		ScoreAdded:    res.ScoreAdded,
		TotalScore:    res.TotalScore,
		AnswerChanged: res.AnswerChanged,
		Message:       res.Message,
	})
}

func (h *Handler) handleTimerAction(ctx context.Context, userID string, payload json.RawMessage) error {
	var req ws.TimerActionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(userID, httperrors.ErrCodeInvalidPayload, "Invalid timer_action payload")
	}

	instance, err := h.games.FindByAccessCode(ctx, req.AccessCode)
	if err != nil || instance == nil {
		return h.sendError(userID, httperrors.ErrCodeGameNotFound, "Game not found")
	}

	ref, err := h.timerRef(ctx, instance, userID, req.QuestionUID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("timer ref resolution failed")
		return h.sendError(userID, httperrors.ErrCodeTimerActionFailed, "Timer action failed")
	}

	var questionLimit time.Duration
	if q, err := h.questions.FindByUID(ctx, req.QuestionUID); err == nil && q != nil {
		questionLimit = q.TimeLimit
	}

	switch req.Action {
	case timerActionRun:
		_, err = h.timers.Start(ctx, instance.PlayMode, ref, req.DurationMs, questionLimit)
	case timerActionPause:
		_, err = h.timers.Pause(ctx, instance.PlayMode, ref)
	case timerActionStop:
		_, err = h.timers.Stop(ctx, instance.PlayMode, ref)
	case timerActionEdit:
		_, err = h.timers.EditDuration(ctx, instance.PlayMode, ref, req.DurationMs, req.IsCurrentQuestion)
	default:
		return h.sendError(userID, httperrors.ErrCodeUnknownTimerAction, fmt.Sprintf("Unknown timer action: %s", req.Action))
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("action", req.Action).Msg("timer action failed")
		return h.sendError(userID, httperrors.ErrCodeTimerActionFailed, "Timer action failed")
	}
	timerActions.WithLabelValues(req.Action).Inc()

	view, err := h.timers.State(ctx, instance.PlayMode, ref, questionLimit.Milliseconds())
	if err != nil || view == nil {
		return nil
	}
	update := ws.TimerUpdatePayload{
		AccessCode:     req.AccessCode,
		QuestionUID:    view.QuestionUID,
		Status:         string(view.Status),
		TimeLeftMs:     view.TimeLeftMs,
		DurationMs:     view.DurationMs,
		TimerEndDateMs: view.TimerEndDateMs,
		Timestamp:      view.Timestamp,
	}
	if ref.IsDeferred {
		// Deferred timers belong to one player; never leak them to the room.
		return h.send(userID, ws.TypeTimerUpdate, update)
	}
	h.broadcast(req.AccessCode, ws.TypeTimerUpdate, update)
	return nil
}

func (h *Handler) handleLeaveGame(ctx context.Context, userID string, payload json.RawMessage) error {
	var req ws.LeaveGamePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.sendError(userID, httperrors.ErrCodeInvalidPayload, "Invalid leave_game payload")
	}

	h.hub.LeaveRoom(req.AccessCode, userID)

	instance, err := h.games.FindByAccessCode(ctx, req.AccessCode)
	if err != nil || instance == nil {
		return nil
	}
	p, err := h.participants.Find(ctx, instance.ID, userID)
	if err != nil || p == nil {
		return nil
	}
	if p.ParticipationType != game.ParticipationDeferred {
		return nil
	}

	// Leaving a deferred replay finalizes the attempt.
	if _, err := h.scores.FinalizeDeferredAttempt(ctx, instance.ID, userID, p.Score); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("deferred finalization failed")
		return nil
	}
	if err := h.joins.EndDeferredSession(ctx, req.AccessCode, userID); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("deferred session cleanup failed")
	}

	// The completed attempt may have changed the standings.
	if _, err := h.snapshots.SyncSnapshotWithLiveData(ctx, instance); err == nil {
		_ = h.snapshots.EmitFromSnapshot(ctx, req.AccessCode, []string{req.AccessCode}, ws.TypeLeaderboardUpdate)
	}
	return nil
}

// timerRef maps a user to the timer they address: the shared per-question
// timer for live play, their own per-attempt timer for deferred play.
func (h *Handler) timerRef(ctx context.Context, instance *game.Instance, userID, questionUID string) (timer.KeyRef, error) {
	ref := timer.KeyRef{
		AccessCode:  instance.AccessCode,
		QuestionUID: questionUID,
	}
	p, err := h.participants.Find(ctx, instance.ID, userID)
	if err != nil {
		return ref, err
	}
	if p != nil && p.ParticipationType == game.ParticipationDeferred {
		attempt := p.AttemptCount
		ref.UserID = userID
		ref.IsDeferred = true
		ref.AttemptCount = &attempt
	}
	return ref, nil
}

func (h *Handler) send(userID, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.hub.SendToUser(userID, ws.Message{Type: msgType, Payload: raw})
}

func (h *Handler) broadcast(room, msgType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn().Err(err).Str("type", msgType).Msg("broadcast payload marshal failed")
		return
	}
	if err := h.hub.BroadcastToRoom(room, ws.Message{Type: msgType, Payload: raw}); err != nil {
		h.logger.Warn().Err(err).Str("room", room).Msg("room broadcast failed")
	}
}

func (h *Handler) sendError(userID, code, message string) error {
	raw, err := json.Marshal(ws.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return err
	}
	return h.hub.SendToUser(userID, ws.Message{Type: ws.TypeError, Payload: raw})
}
