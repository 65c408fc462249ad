package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizforge/gamecore/internal/game"
)

// Entry represents one leaderboard record. A single user can appear twice in
// a snapshot, once per participation type: live and deferred play are scored
// as distinct competitive tracks.
type Entry struct {
	UserID            string                 `json:"userId"`
	Username          string                 `json:"username"`
	AvatarEmoji       string                 `json:"avatarEmoji,omitempty"`
	Score             float64                `json:"score"`
	Rank              int                    `json:"rank"`
	ParticipationType game.ParticipationType `json:"participationType"`
	AttemptCount      int                    `json:"attemptCount,omitempty"`
}

// Snapshot is the persisted, ordered leaderboard projection. It is the
// exclusive input to any broadcast.
type Snapshot []Entry

// Validate checks the snapshot's shape before it may be broadcast.
func (s Snapshot) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("snapshot is empty")
	}
	for i, e := range s {
		if e.UserID == "" {
			return fmt.Errorf("entry %d: missing userId", i)
		}
		if e.Username == "" {
			return fmt.Errorf("entry %d: missing username", i)
		}
		if e.Rank != i+1 {
			return fmt.Errorf("entry %d: rank %d out of sequence", i, e.Rank)
		}
		if e.ParticipationType != game.ParticipationLive && e.ParticipationType != game.ParticipationDeferred {
			return fmt.Errorf("entry %d: unknown participation type %q", i, e.ParticipationType)
		}
	}
	return nil
}

// ParticipantSource is the slice of the relational participant contract the
// snapshot manager consumes.
type ParticipantSource interface {
	ListByGame(ctx context.Context, gameID uuid.UUID) ([]game.Participant, error)
}

// SnapshotService maintains one leaderboard snapshot per game instance and
// owns the only sanctioned broadcast path.
type SnapshotService struct {
	kv            *redis.Client
	participants  ParticipantSource
	emitter       Emitter
	broadcastTopN int
	logger        zerolog.Logger
}

// Options tunes snapshot broadcast behavior.
type Options struct {
	// BroadcastTopN caps how many entries an emission carries; zero or
	// negative means the full snapshot.
	BroadcastTopN int
}

// NewSnapshotService constructs the snapshot manager.
func NewSnapshotService(kv *redis.Client, participants ParticipantSource, emitter Emitter, opts Options, logger zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		kv:            kv,
		participants:  participants,
		emitter:       emitter,
		broadcastTopN: opts.BroadcastTopN,
		logger:        logger.With().Str("component", "leaderboard_snapshot").Logger(),
	}
}

// GetSnapshot loads the persisted snapshot. Missing or corrupt data reads as
// an empty snapshot, never an error the caller must branch on.
func (s *SnapshotService) GetSnapshot(ctx context.Context, accessCode string) Snapshot {
	raw, err := s.kv.Get(ctx, game.SnapshotKey(accessCode)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("access_code", accessCode).Msg("snapshot read failed")
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.logger.Warn().Err(err).Str("access_code", accessCode).Msg("corrupt snapshot, treating as empty")
		return nil
	}
	return snap
}

func (s *SnapshotService) saveSnapshot(ctx context.Context, accessCode string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, game.SnapshotKey(accessCode), data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", accessCode, err)
	}
	return nil
}

// AddUserToSnapshot appends one participant to the snapshot before the game
// starts, carrying their join-order bonus as the initial score. Idempotent
// against duplicate user IDs.
func (s *SnapshotService) AddUserToSnapshot(ctx context.Context, accessCode string, p *game.Participant, bonusScore float64) error {
	snap := s.GetSnapshot(ctx, accessCode)
	for _, e := range snap {
		if e.UserID == p.UserID && e.ParticipationType == p.ParticipationType {
			return nil
		}
	}
	snap = append(snap, Entry{
		UserID:            p.UserID,
		Username:          p.Username,
		AvatarEmoji:       p.AvatarEmoji,
		Score:             bonusScore,
		Rank:              len(snap) + 1,
		ParticipationType: p.ParticipationType,
		AttemptCount:      p.AttemptCount,
	})
	return s.saveSnapshot(ctx, accessCode, snap)
}

// ComputeFullLeaderboard derives the complete leaderboard for a game: active
// games read live totals from the sorted set, completed games read the
// relational records, with separate live and deferred entries when a
// participant holds a nonzero score on both tracks.
func (s *SnapshotService) ComputeFullLeaderboard(ctx context.Context, instance *game.Instance) (Snapshot, error) {
	participants, err := s.participants.ListByGame(ctx, instance.ID)
	if err != nil {
		return nil, fmt.Errorf("compute leaderboard: %w", err)
	}
	byUser := make(map[string]game.Participant, len(participants))
	for _, p := range participants {
		byUser[p.UserID] = p
	}

	var snap Snapshot
	if instance.Status == game.StatusCompleted {
		seen := make(map[string]struct{}, len(participants))
		ranked := make(map[string]struct{}, len(participants))
		for _, p := range participants {
			liveScore := p.LiveScore
			if liveScore == 0 && p.ParticipationType == game.ParticipationLive {
				liveScore = p.Score
			}
			deferredScore := p.DeferredScore
			if deferredScore == 0 && p.ParticipationType == game.ParticipationDeferred {
				deferredScore = p.Score
			}
			if liveScore > 0 {
				key := p.UserID + ":live"
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					ranked[p.UserID] = struct{}{}
					snap = append(snap, Entry{
						UserID:            p.UserID,
						Username:          p.Username,
						AvatarEmoji:       p.AvatarEmoji,
						Score:             liveScore,
						ParticipationType: game.ParticipationLive,
					})
				}
			}
			if deferredScore > 0 {
				key := p.UserID + ":deferred"
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					ranked[p.UserID] = struct{}{}
					snap = append(snap, Entry{
						UserID:            p.UserID,
						Username:          p.Username,
						AvatarEmoji:       p.AvatarEmoji,
						Score:             deferredScore,
						ParticipationType: game.ParticipationDeferred,
						AttemptCount:      p.AttemptCount,
					})
				}
			}
		}
		// Everyone who played stays on the final board: a participant with
		// no positive score on either track still gets one zero entry.
		for _, p := range participants {
			if _, ok := ranked[p.UserID]; ok {
				continue
			}
			ranked[p.UserID] = struct{}{}
			snap = append(snap, Entry{
				UserID:            p.UserID,
				Username:          p.Username,
				AvatarEmoji:       p.AvatarEmoji,
				Score:             0,
				ParticipationType: p.ParticipationType,
				AttemptCount:      p.AttemptCount,
			})
		}
	} else {
		scores, err := s.kv.ZRevRangeWithScores(ctx, game.LeaderboardKey(instance.AccessCode), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("compute leaderboard: %w", err)
		}
		for _, z := range scores {
			userID, _ := z.Member.(string)
			p, ok := byUser[userID]
			if !ok {
				s.logger.Warn().Str("user_id", userID).Msg("scored user missing participant record, skipped")
				continue
			}
			snap = append(snap, Entry{
				UserID:            userID,
				Username:          p.Username,
				AvatarEmoji:       p.AvatarEmoji,
				Score:             z.Score,
				ParticipationType: p.ParticipationType,
				AttemptCount:      p.AttemptCount,
			})
		}
	}

	sortAndRank(snap)
	return snap, nil
}

// SyncSnapshotWithLiveData recomputes the leaderboard and persists it as the
// new snapshot. Concurrent calls may race, but every reader observes one
// coherent persisted version.
func (s *SnapshotService) SyncSnapshotWithLiveData(ctx context.Context, instance *game.Instance) (Snapshot, error) {
	snap, err := s.ComputeFullLeaderboard(ctx, instance)
	if err != nil {
		return nil, err
	}
	if err := s.saveSnapshot(ctx, instance.AccessCode, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// EmitFromSnapshot broadcasts the persisted snapshot to the given rooms. It
// never recomputes inline; an empty or malformed snapshot suppresses the
// emission entirely.
func (s *SnapshotService) EmitFromSnapshot(ctx context.Context, accessCode string, rooms []string, event string) error {
	snap := s.GetSnapshot(ctx, accessCode)
	if err := snap.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("access_code", accessCode).Msg("broadcast suppressed")
		return nil
	}
	entries := snap
	if s.broadcastTopN > 0 && len(entries) > s.broadcastTopN {
		entries = entries[:s.broadcastTopN]
	}
	payload := struct {
		AccessCode string   `json:"accessCode"`
		Entries    Snapshot `json:"entries"`
	}{AccessCode: accessCode, Entries: entries}

	for _, room := range rooms {
		if err := s.emitter.Emit(ctx, room, event, payload); err != nil {
			s.logger.Warn().Err(err).Str("room", room).Msg("leaderboard emit failed")
		}
	}
	return nil
}

// sortAndRank orders entries by score descending with ties broken by
// username ascending, then by user ID, and assigns 1-based ranks. The full
// ordering is deterministic so recomputation is byte-stable.
func sortAndRank(snap Snapshot) {
	sort.SliceStable(snap, func(i, j int) bool {
		if snap[i].Score != snap[j].Score {
			return snap[i].Score > snap[j].Score
		}
		if snap[i].Username != snap[j].Username {
			return snap[i].Username < snap[j].Username
		}
		return snap[i].UserID < snap[j].UserID
	})
	for i := range snap {
		snap[i].Rank = i + 1
	}
}
