package dispatcher

import (
	"time"

	"infergate/internal/config"
)

// Delivery policy constants. These are deliberately not configurable;
// tuning them has never been needed in practice.
const (
	defaultMaxRetries       = 3
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRequeues      = 10
)

// MemoryConfig sizes the in-memory dispatcher.
type MemoryConfig struct {
	// BufferSize is the pending-event queue capacity. Default 1000.
	BufferSize int
	// Workers is the number of concurrent delivery goroutines. Default 4.
	Workers int
	// HTTPTimeout bounds each delivery request. Default 10s.
	HTTPTimeout time.Duration
}

// LoadConfigFromEnv reads dispatcher sizing from DISPATCHER_* environment
// variables, falling back to defaults.
func LoadConfigFromEnv() MemoryConfig {
	return MemoryConfig{
		BufferSize:  config.EnvInt("DISPATCHER_BUFFER_SIZE", 1000),
		Workers:     config.EnvInt("DISPATCHER_WORKERS", 4),
		HTTPTimeout: config.EnvDuration("DISPATCHER_HTTP_TIMEOUT", 10*time.Second),
	}.withDefaults()
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	return c
}
