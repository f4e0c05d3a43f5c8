package config

import "github.com/RezaEskandarii/jobsaga/internal/constants"

const (
	DefaultStorageDriver   = MemoryStorage
	DefaultMQDriver        = MemoryQueue
	DefaultSchedulerDriver = MemoryScheduler
	DefaultSchedulerBatch  = 100
	DefaultPrefetch        = 1
)

// DefaultRetry is the retry policy applied to job types without overrides.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:    constants.DefaultMaxAttempts,
		BaseDelay:      constants.DefaultBaseDelay,
		MaxDelay:       constants.DefaultMaxDelay,
		Jitter:         constants.DefaultJitter,
		AttemptTimeout: constants.DefaultAttemptTimeout,
	}
}

const (
	DefaultSchedulerPollInterval = constants.DefaultSchedulerPoll
	DefaultRetentionWindow       = constants.DefaultRetentionWindow
)
