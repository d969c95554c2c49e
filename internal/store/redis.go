package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the connection backing the attendance offload queue.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis. Timeouts stay short: the queue consumer uses
// its own blocking-pop timeout, and nothing else should ever wait on redis.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity for the health endpoint.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
