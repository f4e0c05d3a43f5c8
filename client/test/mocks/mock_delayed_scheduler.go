package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/saga"
	"github.com/RezaEskandarii/jobsaga/internal/scheduler"
)

// MockDelayedScheduler is a mock implementation of scheduler.DelayedScheduler.
type MockDelayedScheduler struct {
	ScheduleAtFunc func(ctx context.Context, env saga.Envelope, at time.Time) (string, error)
	CancelFunc     func(ctx context.Context, token string) error
	ClaimFunc      func(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]scheduler.Entry, error)
	AckFunc        func(ctx context.Context, entry scheduler.Entry) error
}

func (m *MockDelayedScheduler) ScheduleAt(ctx context.Context, env saga.Envelope, at time.Time) (string, error) {
	if m.ScheduleAtFunc != nil {
		return m.ScheduleAtFunc(ctx, env, at)
	}
	return env.MessageID, nil
}

func (m *MockDelayedScheduler) Cancel(ctx context.Context, token string) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, token)
	}
	return nil
}

func (m *MockDelayedScheduler) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]scheduler.Entry, error) {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, now, limit, lease)
	}
	return nil, nil
}

func (m *MockDelayedScheduler) Ack(ctx context.Context, entry scheduler.Entry) error {
	if m.AckFunc != nil {
		return m.AckFunc(ctx, entry)
	}
	return nil
}
