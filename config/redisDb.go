package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ConnectRedisWithRetry returns a connected client and a lock client built on it.
// An empty address means Redis is not configured; both return values are nil
// and callers fall back to in-process implementations.
func ConnectRedisWithRetry(ctx context.Context, cfg RedisConfig, maxAttempts int) (*redis.Client, *redislock.Client, error) {
	if cfg.Address == "" {
		log.Printf("REDIS_ADDRESS not set; using in-memory cache and local sync lock")
		return nil, nil, nil
	}

	var attempt int
	for {
		attempt++
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: 50,
		})
		err := rdb.Ping(ctx).Err()
		if err == nil {
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, cfg.Address)
			return rdb, redislock.New(rdb), nil
		}
		_ = rdb.Close()
		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, nil, fmt.Errorf("connect redis after %d attempts: %w", attempt, err)
		}

		sleep := backoff(attempt)
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, cfg.Address, err, sleep)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}
