package config

import (
	"fmt"
	"strings"
)

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	SQLite
	MemoryStorage
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	case MemoryStorage:
		return "memory"
	}
	return "unknown"
}

func (d *StorageDriver) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "postgres", "postgresql":
		*d = Postgres
	case "sqlite":
		*d = SQLite
	case "memory":
		*d = MemoryStorage
	default:
		return fmt.Errorf("unknown storage driver %q", text)
	}
	return nil
}

type MessageQueueDriver int

const (
	RabbitMQ MessageQueueDriver = iota + 1
	MemoryQueue
)

func (d MessageQueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	case MemoryQueue:
		return "memory"
	default:
		return "unknown"
	}
}

func (d *MessageQueueDriver) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "rabbitmq", "amqp":
		*d = RabbitMQ
	case "memory":
		*d = MemoryQueue
	default:
		return fmt.Errorf("unknown message queue driver %q", text)
	}
	return nil
}

type SchedulerDriver int

const (
	RedisScheduler SchedulerDriver = iota + 1
	MemoryScheduler
)

func (d SchedulerDriver) String() string {
	switch d {
	case RedisScheduler:
		return "redis"
	case MemoryScheduler:
		return "memory"
	default:
		return "unknown"
	}
}

func (d *SchedulerDriver) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "redis":
		*d = RedisScheduler
	case "memory":
		*d = MemoryScheduler
	default:
		return fmt.Errorf("unknown scheduler driver %q", text)
	}
	return nil
}
