package core

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient builds the shared Redis connection used by the broker and
// store adapters. Supervisors construct it once per process and inject it;
// adapters never open their own connections.
func NewRedisClient(cfg RedisConfig, logger Logger) (*redis.Client, error) {
	var opt *redis.Options

	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %v: %w", err, ErrInvalidConfiguration)
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			DB:       cfg.DB,
			Password: cfg.Password,
		}
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %v: %w", opt.Addr, err, ErrConnectionFailed)
	}

	if logger != nil {
		logger.Info("Redis connection established", map[string]interface{}{
			"addr": opt.Addr,
			"db":   opt.DB,
		})
	}

	return client, nil
}
