// Package redis relays room broadcasts between gateway instances over Redis
// pub/sub, so a message sent on one instance reaches room members connected
// to any other.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"chatter/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"
)

const (
	groupChannelPrefix = "group:"
	broadcastChannel   = "broadcast:all"
)

type Client struct {
	rdb *redis.Client
}

// NewClient connects to redisURL and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	// Test connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("[REDIS] Connected to Redis", "addr", opt.Addr)

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Publish sends msg to every instance, this one included.
func (c *Client) Publish(ctx context.Context, msg *models.BroadcastMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Error("[REDIS] Failed to marshal envelope", "group", msg.GroupId, "error", err)
		return err
	}

	channel := channelFor(msg.GroupId)
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		slog.Error("[REDIS] Failed to publish event", "channel", channel, "error", err)
		return err
	}

	return nil
}

func channelFor(groupId string) string {
	if groupId == "" {
		return broadcastChannel
	}
	return groupChannelPrefix + groupId
}
