package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/message_broaker"
	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/RezaEskandarii/jobsaga/internal/state"
	"github.com/RezaEskandarii/jobsaga/internal/store"
	"github.com/RezaEskandarii/jobsaga/types"
)

// JobService is the public entry point for producers and workers.
type JobService struct {
	orchestrator *Orchestrator
	store        store.SagaStore
	broker       message_broaker.MessageBroker
	queues       Queues
	now          Clock
}

func NewJobService(orchestrator *Orchestrator, sagaStore store.SagaStore, broker message_broaker.MessageBroker, queues Queues, now Clock) *JobService {
	if now == nil {
		now = time.Now
	}
	return &JobService{
		orchestrator: orchestrator,
		store:        sagaStore,
		broker:       broker,
		queues:       queues,
		now:          now,
	}
}

// Submit applies a ConvertVideoRequest in process and returns the job as it
// stands afterwards. A request that repeats an existing job with different
// attributes returns *custom_errors.DuplicateConflictError.
func (s *JobService) Submit(ctx context.Context, req types.ConvertVideoRequest) (*types.JobStatusReport, error) {
	env, err := requestEnvelope(req, s.now())
	if err != nil {
		return nil, err
	}
	result, err := s.orchestrator.apply(ctx, env)
	if err != nil {
		return nil, err
	}
	job, ok := result.(*saga.JobState)
	if !ok || job == nil {
		return nil, fmt.Errorf("job %s was not created", env.CorrelationID)
	}
	report := job.Report()
	return &report, nil
}

// Enqueue publishes the request to the ingress queue without waiting for it.
func (s *JobService) Enqueue(ctx context.Context, req types.ConvertVideoRequest) (string, error) {
	if err := saga.ValidateRequest(req); err != nil {
		return "", err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	if err := s.broker.Publish(ctx, s.queues.Requests, body); err != nil {
		return "", fmt.Errorf("enqueue request: %w", err)
	}
	return saga.JobID(req.GroupID, req.Index), nil
}

// Status returns the current report of a job. It returns store.ErrNotFound
// for unknown jobs and for finished jobs that have been purged.
func (s *JobService) Status(ctx context.Context, groupID string, index int) (*types.JobStatusReport, error) {
	instance, err := s.store.Find(ctx, state.KindJob, saga.JobID(groupID, index))
	if err != nil {
		return nil, err
	}
	report, err := jobReport(instance)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *JobService) List(ctx context.Context, page, pageSize int) (*types.PaginationResult[types.JobStatusReport], error) {
	instances, err := s.store.List(ctx, state.KindJob, page, pageSize)
	if err != nil {
		return nil, err
	}
	return types.MapPage(instances, jobReport)
}

// ReportResult publishes a worker's outcome to the results ingress queue.
func (s *JobService) ReportResult(ctx context.Context, result types.TranscodeCompleted) error {
	if _, err := resultEnvelope(result, s.now()); err != nil {
		return err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.broker.Publish(ctx, s.queues.Results, body)
}

func jobReport(instance *store.SagaInstance) (types.JobStatusReport, error) {
	var job saga.JobState
	if err := json.Unmarshal(instance.Data, &job); err != nil {
		return types.JobStatusReport{}, fmt.Errorf("decode job state: %w", err)
	}
	return job.Report(), nil
}
