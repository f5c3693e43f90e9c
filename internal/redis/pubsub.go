package redis

import (
	"context"
	"fmt"
	"log/slog"

	"chatter/internal/models"

	"github.com/goccy/go-json"
)

// Deliverer hands a relayed message to local connections.
type Deliverer interface {
	Deliver(msg *models.BroadcastMessage)
}

// Subscribe forwards every relayed broadcast to hub until ctx is done.
func Subscribe(ctx context.Context, client *Client, hub Deliverer) error {
	slog.Info("[REDIS] Starting Redis pub/sub subscription...")

	// Subscribe to all group events using pattern
	pubsub := client.rdb.PSubscribe(ctx, groupChannelPrefix+"*", broadcastChannel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to receive subscription confirmation: %w", err)
	}

	slog.Info("[REDIS] Subscription confirmed, listening for messages...", "pattern", groupChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("[REDIS] Subscription stopped")
			return nil

		case msg, ok := <-ch:
			if !ok {
				slog.Info("[REDIS] Redis pub/sub channel closed")
				return nil
			}

			var envelope models.BroadcastMessage
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				slog.Error("[REDIS] Error unmarshaling envelope", "channel", msg.Channel, "error", err)
				continue
			}

			slog.Debug("[REDIS] Relaying broadcast", "channel", msg.Channel, "group", envelope.GroupId)
			hub.Deliver(&envelope)
		}
	}
}
