package constants

import "time"

// Advisory lock ids. Partition leases take PartitionLockBase+n.
const (
	MigrationLock = iota + 7100
	RetentionLock
)

const PartitionLockBase = 7200

func PartitionLock(partition int) int {
	return PartitionLockBase + partition
}

// Queue names, relative to the configured prefix.
const (
	RequestQueueSuffix = "requests"
	ResultQueueSuffix  = "results"
	WorkerQueueSuffix  = "dispatch"
	EventQueueSuffix   = "events"
)

const (
	DefaultPartitionCount   = 8
	DefaultWorkerCount      = 16
	DefaultConcurrencyLimit = 4
	DefaultMaxAttempts      = 3
	DefaultBaseDelay        = 5 * time.Second
	DefaultMaxDelay         = 5 * time.Minute
	DefaultJitter           = 0.2
	DefaultAttemptTimeout   = 30 * time.Minute
	DefaultRetentionWindow  = 72 * time.Hour
	DefaultRetentionSweep   = "@every 1h"
	DefaultSchedulerPoll    = time.Second
	DefaultSchedulerLease   = 30 * time.Second
	DefaultQueuePrefix      = "jobsaga"
	DefaultExchange         = "jobsaga"
)
