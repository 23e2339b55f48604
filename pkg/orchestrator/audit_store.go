package orchestrator

import (
	"context"
	"sync"
	"time"
)

// AuditEvent is one durable record of plan or task lifecycle: plan
// creation, task start and terminal transitions, and synthesis. Output
// holds the payload of the transition, such as a task answer.
type AuditEvent struct {
	PlanID     string    `json:"plan_id"`
	RunID      string    `json:"run_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Status     string    `json:"status"`
	Output     any       `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// AuditStore is where lifecycle records end up. Implementations must be
// safe for concurrent use; the scheduler records task transitions from
// multiple workers at once.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter limits audit event queries. Zero-valued fields match
// everything.
type AuditFilter struct {
	PlanID string
	RunID  string
	TaskID string
	Status string
	Limit  int
}

// matches reports whether an event passes the filter's field conditions.
// Limit is the caller's concern.
func (f AuditFilter) matches(ev AuditEvent) bool {
	if f.PlanID != "" && ev.PlanID != f.PlanID {
		return false
	}
	if f.RunID != "" && ev.RunID != f.RunID {
		return false
	}
	if f.TaskID != "" && ev.TaskID != f.TaskID {
		return false
	}
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	return true
}

// MemoryAuditStore holds audit events in a slice behind a mutex. Runs
// that did not configure a SQLite path get this store.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditStore creates an empty in-process audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Record implements AuditStore.
func (s *MemoryAuditStore) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List implements AuditStore. Events come back in insertion order, which
// for this store is also recording order.
func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []AuditEvent
	for _, ev := range s.events {
		if !filter.matches(ev) {
			continue
		}
		matched = append(matched, ev)
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
	}
	return matched, nil
}
