package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/logging"
	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/internal/partition"
	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/RezaEskandarii/jobsaga/internal/scheduler"
	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/internal/store/memory"
	"github.com/RezaEskandarii/jobsaga/types"
	"github.com/RezaEskandarii/jobsaga/types/config"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires the orchestrator to in-memory adapters and lets a test drive
// delivery by hand.
type harness struct {
	t         *testing.T
	ctx       context.Context
	clock     *manualClock
	cfg       *config.JobServiceConfig
	broker    *message_broaker.MemoryBroker
	store     *memory.MemorySagaStore
	scheduler *scheduler.MemoryScheduler
	part      partition.Partitioner
	queues    Queues
	orch      *Orchestrator
	delayed   *DelayedDeliveryWorker
	service   *JobService
}

func testConfig(t *testing.T, opts ...config.ConfigOption) *config.JobServiceConfig {
	t.Helper()
	base := []config.ConfigOption{
		config.WithPartitionCount(3),
		config.WithRetry(config.RetryConfig{
			MaxAttempts:    3,
			BaseDelay:      10 * time.Second,
			MaxDelay:       time.Minute,
			AttemptTimeout: 10 * time.Minute,
		}),
	}
	cfg, err := config.NewJobServiceConfig("test", append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

func newHarness(t *testing.T, opts ...config.ConfigOption) *harness {
	t.Helper()
	cfg := testConfig(t, opts...)
	h := &harness{
		t:         t,
		ctx:       context.Background(),
		clock:     &manualClock{now: start},
		cfg:       cfg,
		broker:    message_broaker.NewMemoryBroker(),
		store:     memory.NewMemorySagaStore(),
		scheduler: scheduler.NewMemoryScheduler(),
		part:      partition.New(cfg.PartitionCount, cfg.QueuePrefix()),
		queues:    NewQueues(cfg.QueuePrefix()),
	}
	publisher := NewBrokerPublisher(h.broker, h.part, h.queues)
	logger := logging.Nop()
	h.orch = NewOrchestrator(h.store, h.scheduler, publisher, cfg, logger, WithClock(h.clock.Now))
	h.delayed = NewDelayedDeliveryWorker(h.scheduler, publisher, cfg.SchedulerPoll, cfg.SchedulerBatch, h.clock.Now, logger)
	h.service = NewJobService(h.orch, h.store, h.broker, h.queues, h.clock.Now)
	t.Cleanup(func() { _ = h.broker.Close() })
	return h
}

// pump handles partition messages until every partition queue is empty.
func (h *harness) pump() {
	h.t.Helper()
	for {
		handled := 0
		for _, key := range h.part.RoutingKeys() {
			for _, body := range h.broker.Drain(key) {
				env, err := saga.UnmarshalEnvelope(body)
				require.NoError(h.t, err)
				require.NoError(h.t, h.orch.Handle(h.ctx, env))
				handled++
			}
		}
		if handled == 0 {
			return
		}
	}
}

// advance moves the clock, delivers due scheduled messages and pumps.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	_, err := h.delayed.Tick(h.ctx)
	require.NoError(h.t, err)
	h.pump()
}

func (h *harness) dispatched() []types.DispatchTranscode {
	h.t.Helper()
	var out []types.DispatchTranscode
	for _, body := range h.broker.Drain(h.queues.Dispatch) {
		var d types.DispatchTranscode
		require.NoError(h.t, json.Unmarshal(body, &d))
		out = append(out, d)
	}
	return out
}

func (h *harness) events() []saga.Envelope {
	h.t.Helper()
	var out []saga.Envelope
	for _, body := range h.broker.Drain(h.queues.Events) {
		env, err := saga.UnmarshalEnvelope(body)
		require.NoError(h.t, err)
		out = append(out, env)
	}
	return out
}

func (h *harness) complete(fooID string, attempt int, success bool, kind types.ErrorKind) {
	h.t.Helper()
	body, err := json.Marshal(types.TranscodeCompleted{
		FooID:         fooID,
		AttemptNumber: attempt,
		Success:       success,
		ErrorKind:     kind,
		Error:         map[bool]string{true: "", false: "encoder crashed"}[success],
	})
	require.NoError(h.t, err)
	router := NewIngressRouter(h.broker, NewBrokerPublisher(h.broker, h.part, h.queues), h.queues, h.clock.Now, logging.Nop())
	require.NoError(h.t, router.RouteResult(h.ctx, body))
	h.pump()
}

func (h *harness) jobType(jobType string) *saga.JobTypeState {
	h.t.Helper()
	instance, err := h.store.Find(h.ctx, state.KindJobType, saga.JobTypeID(jobType))
	require.NoError(h.t, err)
	var s saga.JobTypeState
	require.NoError(h.t, json.Unmarshal(instance.Data, &s))
	return &s
}

func request(groupID string, foos ...string) types.ConvertVideoRequest {
	req := types.ConvertVideoRequest{GroupID: groupID, Index: 0, Count: 1, Path: "/media/in/" + groupID + ".mp4"}
	for _, id := range foos {
		req.Foos = append(req.Foos, types.FooRef{FooID: id})
	}
	return req
}
