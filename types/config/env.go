package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const envPrefix = "JOBSAGA_"

// LoadDotEnv reads .env into the process environment. A missing file is fine.
func LoadDotEnv() {
	_ = godotenv.Load(".env")
}

// ApplyEnv overrides file settings with JOBSAGA_* environment variables.
func ApplyEnv(f *File) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	str("INSTANCE", &f.Instance)
	str("ENV", &f.Environment)
	str("LOG_LEVEL", &f.LogLevel)
	num("PARTITION_COUNT", &f.PartitionCount)
	num("WORKER_COUNT", &f.WorkerCount)
	num("DEFAULT_CONCURRENCY_LIMIT", &f.DefaultConcurrencyLimit)
	str("SCHEDULER_POLL", &f.SchedulerPoll)
	str("RETENTION_WINDOW", &f.RetentionWindow)
	str("RETENTION_SWEEP", &f.RetentionSweep)
	if v := os.Getenv(envPrefix + "FINALIZE_COMPLETED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sFINALIZE_COMPLETED: %w", envPrefix, err))
		} else {
			f.FinalizeCompleted = &b
		}
	}

	str("STORAGE_DRIVER", &f.Storage.Driver)
	str("POSTGRES_URL", &f.Storage.PostgresURL)
	str("SQLITE_PATH", &f.Storage.SQLitePath)
	str("REDIS_ADDR", &f.Redis.Address)
	str("REDIS_PASSWORD", &f.Redis.Password)
	num("REDIS_DB", &f.Redis.DB)
	str("RABBITMQ_URL", &f.RabbitMQ.URL)
	str("RABBITMQ_EXCHANGE", &f.RabbitMQ.Exchange)
	str("QUEUE_PREFIX", &f.RabbitMQ.QueuePrefix)

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
