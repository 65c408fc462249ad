package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizforge/gamecore/internal/game"
)

// Join-order bonus constants: the first joiner gets 0.01, each later joiner
// one step less, floored so late joiners still sort above a zero score.
// Fractional on purpose: the bonus breaks ties in join order without ever
// outweighing a real answer score.
const (
	joinBonusBase  = 0.01
	joinBonusStep  = 0.001
	joinBonusFloor = 0.001
)

// BonusGranter hands out the one-shot join-order bonus.
type BonusGranter struct {
	kv     *redis.Client
	logger zerolog.Logger
}

// NewBonusGranter constructs a join-bonus granter.
func NewBonusGranter(kv *redis.Client, logger zerolog.Logger) *BonusGranter {
	return &BonusGranter{
		kv:     kv,
		logger: logger.With().Str("component", "join_bonus").Logger(),
	}
}

// GrantJoinBonus awards the user's join-order bonus exactly once per game.
// Returns zero for repeat joins.
func (b *BonusGranter) GrantJoinBonus(ctx context.Context, accessCode, userID string) (float64, error) {
	setKey := game.JoinBonusSetKey(accessCode)
	added, err := b.kv.SAdd(ctx, setKey, userID).Result()
	if err != nil {
		return 0, fmt.Errorf("grant join bonus: %w", err)
	}
	if added == 0 {
		return 0, nil
	}
	ordinal, err := b.kv.SCard(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("grant join bonus: %w", err)
	}
	bonus := joinBonusBase - float64(ordinal-1)*joinBonusStep
	if bonus < joinBonusFloor {
		bonus = joinBonusFloor
	}
	b.logger.Debug().
		Str("access_code", accessCode).
		Str("user_id", userID).
		Int64("join_ordinal", ordinal).
		Float64("bonus", bonus).
		Msg("join bonus granted")
	return bonus, nil
}
