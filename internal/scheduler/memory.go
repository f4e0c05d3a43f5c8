package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/RezaEskandarii/jobsaga/internal/saga"
)

type memoryEntry struct {
	entry Entry
	due   time.Time
}

type MemoryScheduler struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{entries: make(map[string]memoryEntry)}
}

func (s *MemoryScheduler) ScheduleAt(ctx context.Context, env saga.Envelope, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[env.MessageID] = memoryEntry{
		entry: Entry{Token: env.MessageID, Envelope: env, DeliverAt: at},
		due:   at,
	}
	return env.MessageID, nil
}

func (s *MemoryScheduler) Cancel(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}

func (s *MemoryScheduler) Claim(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []memoryEntry
	for _, e := range s.entries {
		if !e.due.After(now) {
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].entry.Token < due[j].entry.Token
		}
		return due[i].due.Before(due[j].due)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]Entry, 0, len(due))
	until := now.Add(lease)
	for _, e := range due {
		e.due = until
		e.entry.ClaimedUntil = until
		s.entries[e.entry.Token] = e
		claimed = append(claimed, e.entry)
	}
	return claimed, nil
}

func (s *MemoryScheduler) Ack(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.entries[entry.Token]; ok && current.due.Equal(entry.ClaimedUntil) {
		delete(s.entries, entry.Token)
	}
	return nil
}

// Pending returns every entry not yet acked, earliest first.
func (s *MemoryScheduler) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		pending = append(pending, e)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].due.Before(pending[j].due) })
	out := make([]Entry, 0, len(pending))
	for _, e := range pending {
		out = append(out, e.entry)
	}
	return out
}
