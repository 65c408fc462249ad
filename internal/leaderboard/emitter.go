package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Emitter is the outbound transport contract. The snapshot manager is the
// only caller.
type Emitter interface {
	Emit(ctx context.Context, room, event string, payload any) error
}

// envelope is the Pub/Sub wire format between emitter and broadcaster.
type envelope struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// PubSubEmitter publishes emissions to a Redis channel so every API instance
// can fan them out to its own connected clients.
type PubSubEmitter struct {
	kv      *redis.Client
	channel string
}

// NewPubSubEmitter constructs a Pub/Sub backed emitter.
func NewPubSubEmitter(kv *redis.Client, channel string) *PubSubEmitter {
	if channel == "" {
		channel = "leaderboard:updates"
	}
	return &PubSubEmitter{kv: kv, channel: channel}
}

// Emit publishes one event envelope.
func (e *PubSubEmitter) Emit(ctx context.Context, room, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal emit payload: %w", err)
	}
	data, err := json.Marshal(envelope{Room: room, Event: event, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal emit envelope: %w", err)
	}
	if err := e.kv.Publish(ctx, e.channel, data).Err(); err != nil {
		return fmt.Errorf("publish emit envelope: %w", err)
	}
	return nil
}
