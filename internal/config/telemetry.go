package config

import (
	"fmt"
	"strings"
	"time"
)

// TelemetryConfig configures the custom dimension tracker.
type TelemetryConfig struct {
	// CacheCapacity bounds the number of identities kept in the L1 cache.
	CacheCapacity int           `envconfig:"CACHE_CAPACITY" default:"100000" validate:"min=1"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"24h" validate:"min=1s"`

	// Publish enables the Redis publisher. Without it dimensions live only in memory.
	Publish        bool          `envconfig:"PUBLISH" default:"false"`
	QueueSize      int           `envconfig:"QUEUE_SIZE" default:"1024" validate:"min=1"`
	PublishTimeout time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"2s" validate:"min=1ms"`
	KeyPrefix      string        `envconfig:"KEY_PREFIX" default:"dimensions:"`
	KeyTTL         time.Duration `envconfig:"KEY_TTL" default:"720h"`
}

// Validate checks TelemetryConfig fields for correctness.
func (c *TelemetryConfig) Validate() error {
	if c.Publish {
		if strings.TrimSpace(c.KeyPrefix) == "" {
			return fmt.Errorf("telemetry key prefix cannot be empty when publishing")
		}
		if c.KeyTTL < time.Second {
			return fmt.Errorf("telemetry key TTL must be at least 1s, got %s", c.KeyTTL)
		}
	}
	return nil
}
