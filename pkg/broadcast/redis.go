package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/agora/pkg/contracts"
)

// RedisBroadcaster publishes events on a Redis pub/sub channel per event
// type ("agora.events.<type>"). Subscribing dashboards and agent gateways
// consume them off-process.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
}

// NewRedisBroadcaster connects to the given Redis address. channelPrefix
// defaults to "agora.events" when empty.
func NewRedisBroadcaster(addr, password string, db int, channelPrefix string) *RedisBroadcaster {
	if channelPrefix == "" {
		channelPrefix = "agora.events"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisBroadcaster{client: rdb, channel: channelPrefix}
}

// NewRedisBroadcasterFromClient wraps an existing client, for tests.
func NewRedisBroadcasterFromClient(client *redis.Client, channelPrefix string) *RedisBroadcaster {
	if channelPrefix == "" {
		channelPrefix = "agora.events"
	}
	return &RedisBroadcaster{client: client, channel: channelPrefix}
}

func (b *RedisBroadcaster) Announce(ctx context.Context, eventType contracts.EventType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	channel := fmt.Sprintf("%s.%s", b.channel, eventType)
	if err := b.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
