package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// HealthChecker reports whether the dimension store can take writes.
// It satisfies observability.Checker.
type HealthChecker struct {
	client *redis.Client
}

// NewHealthChecker creates a checker over the client backing the dimension store.
func NewHealthChecker(client *redis.Client) *HealthChecker {
	return &HealthChecker{client: client}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "redis"
}

// Check pings Redis and makes sure the conditional-write script is cached,
// loading it again after a restart or SCRIPT FLUSH so the next Put runs EVALSHA.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := h.client.Ping(ctx).Err(); err != nil {
		return err
	}

	exists, err := putScript.Exists(ctx, h.client).Result()
	if err != nil {
		return fmt.Errorf("script check failed: %w", err)
	}
	if len(exists) == 1 && exists[0] {
		return nil
	}
	if err := putScript.Load(ctx, h.client).Err(); err != nil {
		return fmt.Errorf("failed to load dimension script: %w", err)
	}
	return nil
}
