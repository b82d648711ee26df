package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"seatbridge/internal/pkg/config"
	"seatbridge/internal/usecase/shared"

	"github.com/redis/go-redis/v9"
)

const wakeKey = "seatbridge:reconcile:wake"

// RedisWaker lets writers nudge the reconciliation sweeper through a
// Redis list, so divergence repair starts ahead of the periodic tick.
// Best-effort: a lost wake only delays repair until the next tick, and
// the durable task table in Postgres remains the source of truth.
type RedisWaker struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisWaker(client *redis.Client) *RedisWaker {
	return &RedisWaker{client: client}
}

func (w *RedisWaker) Wake(ctx context.Context) {
	if err := w.client.LPush(ctx, wakeKey, time.Now().UnixNano()).Err(); err != nil {
		slog.Warn("failed to signal reconciler", "error", err.Error())
	}
}

// Wait blocks until a wake signal arrives or the timeout elapses.
// Returns true when a signal was consumed.
func (w *RedisWaker) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	res, err := w.client.BRPop(ctx, timeout, wakeKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return len(res) > 0, nil
}

var _ shared.ReconcileWaker = (*RedisWaker)(nil)
