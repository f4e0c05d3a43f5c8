package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// File is the on-disk TOML form of JobServiceConfig. Durations are Go
// duration strings such as "30s" or "72h".
type File struct {
	Instance    string `toml:"instance"`
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`

	PartitionCount          int    `toml:"partition_count"`
	WorkerCount             int    `toml:"worker_count"`
	FinalizeCompleted       *bool  `toml:"finalize_completed"`
	RetentionWindow         string `toml:"retention_window"`
	RetentionSweep          string `toml:"retention_sweep"`
	SchedulerPoll           string `toml:"scheduler_poll"`
	SchedulerBatch          int    `toml:"scheduler_batch"`
	DefaultConcurrencyLimit int    `toml:"default_concurrency_limit"`

	Retry    *FileRetry             `toml:"retry"`
	JobTypes map[string]FileJobType `toml:"job_types"`

	Storage  FileStorage  `toml:"storage"`
	Redis    FileRedis    `toml:"redis"`
	RabbitMQ FileRabbitMQ `toml:"rabbitmq"`
}

type FileRetry struct {
	MaxAttempts    int     `toml:"max_attempts"`
	BaseDelay      string  `toml:"base_delay"`
	MaxDelay       string  `toml:"max_delay"`
	Jitter         float64 `toml:"jitter"`
	AttemptTimeout string  `toml:"attempt_timeout"`
}

type FileJobType struct {
	ConcurrencyLimit int    `toml:"concurrency_limit"`
	MaxAttempts      int    `toml:"max_attempts"`
	BaseDelay        string `toml:"base_delay"`
	MaxDelay         string `toml:"max_delay"`
	AttemptTimeout   string `toml:"attempt_timeout"`
}

type FileStorage struct {
	Driver      string `toml:"driver"`
	PostgresURL string `toml:"postgres_url"`
	SQLitePath  string `toml:"sqlite_path"`
}

type FileRedis struct {
	Address   string `toml:"address"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

type FileRabbitMQ struct {
	URL         string `toml:"url"`
	Exchange    string `toml:"exchange"`
	QueuePrefix string `toml:"queue_prefix"`
	Prefetch    int    `toml:"prefetch"`
}

// ReadFile decodes a TOML config file.
func ReadFile(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var f File
	if err := toml.NewDecoder(file).Decode(&f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// Load builds the service configuration from an optional TOML file, a .env
// file in the working directory and JOBSAGA_* environment variables, in
// increasing order of precedence.
func Load(path string) (*JobServiceConfig, error) {
	LoadDotEnv()

	f := &File{}
	if path != "" {
		var err error
		if f, err = ReadFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(f); err != nil {
		return nil, err
	}

	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	instance := f.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}
	return NewJobServiceConfig(instance, opts...)
}

// Options converts the file into functional options.
func (f *File) Options() ([]ConfigOption, error) {
	var opts []ConfigOption
	var errs []error

	duration := func(field, value string) time.Duration {
		if value == "" {
			return 0
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		return d
	}

	if f.Environment != "" || f.LogLevel != "" {
		opts = append(opts, WithEnvironment(f.Environment, f.LogLevel))
	}
	if f.PartitionCount != 0 {
		opts = append(opts, WithPartitionCount(f.PartitionCount))
	}
	if f.WorkerCount != 0 {
		opts = append(opts, WithWorkerCount(f.WorkerCount))
	}
	if f.DefaultConcurrencyLimit != 0 {
		opts = append(opts, WithDefaultConcurrencyLimit(f.DefaultConcurrencyLimit))
	}
	if poll := duration("scheduler_poll", f.SchedulerPoll); poll != 0 || f.SchedulerBatch != 0 {
		if poll == 0 {
			poll = DefaultSchedulerPollInterval
		}
		opts = append(opts, WithSchedulerPoll(poll, f.SchedulerBatch))
	}
	if f.FinalizeCompleted != nil && !*f.FinalizeCompleted {
		window := duration("retention_window", f.RetentionWindow)
		if window == 0 {
			window = DefaultRetentionWindow
		}
		opts = append(opts, WithRetention(window, f.RetentionSweep))
	}

	if f.Retry != nil {
		retry := DefaultRetry()
		if f.Retry.MaxAttempts != 0 {
			retry.MaxAttempts = f.Retry.MaxAttempts
		}
		if d := duration("retry.base_delay", f.Retry.BaseDelay); d != 0 {
			retry.BaseDelay = d
		}
		if d := duration("retry.max_delay", f.Retry.MaxDelay); d != 0 {
			retry.MaxDelay = d
		}
		if f.Retry.Jitter != 0 {
			retry.Jitter = f.Retry.Jitter
		}
		if d := duration("retry.attempt_timeout", f.Retry.AttemptTimeout); d != 0 {
			retry.AttemptTimeout = d
		}
		opts = append(opts, WithRetry(retry))
	}

	for name, jt := range f.JobTypes {
		prefix := "job_types." + name
		opts = append(opts, WithJobType(name, JobTypeConfig{
			ConcurrencyLimit: jt.ConcurrencyLimit,
			MaxAttempts:      jt.MaxAttempts,
			BaseDelay:        duration(prefix+".base_delay", jt.BaseDelay),
			MaxDelay:         duration(prefix+".max_delay", jt.MaxDelay),
			AttemptTimeout:   duration(prefix+".attempt_timeout", jt.AttemptTimeout),
		}))
	}

	if f.Storage.Driver != "" {
		var driver StorageDriver
		if err := driver.UnmarshalText([]byte(f.Storage.Driver)); err != nil {
			errs = append(errs, err)
		}
		switch driver {
		case Postgres:
			opts = append(opts, WithPostgresConfig(PostgresConfig{ConnectionUrl: f.Storage.PostgresURL}))
		case SQLite:
			opts = append(opts, WithSQLiteConfig(SQLiteConfig{Path: f.Storage.SQLitePath}))
		}
	}
	if f.Redis.Address != "" {
		opts = append(opts, WithRedisConfig(RedisConfig{
			Address:   f.Redis.Address,
			Password:  f.Redis.Password,
			DB:        f.Redis.DB,
			KeyPrefix: f.Redis.KeyPrefix,
		}))
	}
	if f.RabbitMQ.URL != "" {
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{
			URL:         f.RabbitMQ.URL,
			Exchange:    f.RabbitMQ.Exchange,
			QueuePrefix: f.RabbitMQ.QueuePrefix,
			Prefetch:    f.RabbitMQ.Prefetch,
		}))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return opts, nil
}
