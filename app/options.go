package app

import (
	"database/sql"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject custom connections instead of creating them from config
	db     *sql.DB
	redis  *redis.Client
	broker message_broaker.MessageBroker
	logger *zerolog.Logger
	clock  func() time.Time
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithBroker injects a message broker, bypassing the configured driver.
func WithBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}

func WithLogger(logger zerolog.Logger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = &logger
	}
}

// WithClock replaces time.Now for every time-dependent component.
func WithClock(now func() time.Time) ContainerOption {
	return func(c *containerConfig) {
		c.clock = now
	}
}
