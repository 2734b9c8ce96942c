// Package redis wraps the go-redis client. Redis is optional here: it backs
// the submission rate limiter and nothing else, so the server runs fine
// without it.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client embeds the go-redis client so callers use its API directly.
type Client struct {
	*redis.Client
	logger *zap.Logger
}

// NewClient connects and pings. A Redis that is configured but unreachable
// is a startup error; leave REDIS_ADDR empty to run without one.
func NewClient(ctx context.Context, addr, password string, db int, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", addr))
	return &Client{Client: rdb, logger: logger}, nil
}
