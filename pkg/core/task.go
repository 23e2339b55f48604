package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

// TaskStatus describes the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

func (s TaskStatus) rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusInProgress:
		return 1
	case TaskStatusCompleted, TaskStatusFailed:
		return 2
	default:
		return -1
	}
}

// Task is a single unit of work inside a plan. DependsOn names tasks that
// must complete before this one becomes schedulable.
type Task struct {
	ID          string            `json:"id" yaml:"id"`
	Description string            `json:"description" yaml:"description"`
	Role        string            `json:"role" yaml:"role"`
	Constraints map[string]string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	DependsOn   []string          `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Status      TaskStatus        `json:"status" yaml:"status"`
	Result      *AgentResult      `json:"result,omitempty" yaml:"-"`
	Error       string            `json:"error,omitempty" yaml:"-"`
	CreatedAt   time.Time         `json:"created_at" yaml:"-"`
	StartedAt   time.Time         `json:"started_at" yaml:"-"`
	FinishedAt  time.Time         `json:"finished_at" yaml:"-"`
}

// NewTask creates a pending task with a generated ID.
func NewTask(description, role string, dependsOn ...string) *Task {
	return &Task{
		ID:          uuid.NewString(),
		Description: description,
		Role:        role,
		DependsOn:   dependsOn,
		Status:      TaskStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// Advance moves the task to the next status. Transitions only move forward:
// pending -> in_progress -> {completed, failed}. A dependency failure may
// skip in_progress and fail a pending task directly. Terminal tasks never
// change status again.
func (t *Task) Advance(next TaskStatus) error {
	if next.rank() < 0 {
		return errors.Newf(errors.CodeValidation, "task %s: unknown status %q", t.ID, next)
	}
	if next.rank() <= t.Status.rank() {
		return errors.Newf(errors.CodeValidation, "task %s: cannot advance from %s to %s", t.ID, t.Status, next)
	}
	now := time.Now().UTC()
	switch next {
	case TaskStatusInProgress:
		t.StartedAt = now
	case TaskStatusCompleted, TaskStatusFailed:
		if t.StartedAt.IsZero() {
			t.StartedAt = now
		}
		t.FinishedAt = now
	}
	t.Status = next
	return nil
}

// Complete marks the task completed and records its result.
func (t *Task) Complete(result *AgentResult) error {
	if err := t.Advance(TaskStatusCompleted); err != nil {
		return err
	}
	t.Result = result
	return nil
}

// Fail marks the task failed and records the reason. The partial result,
// if any, is kept for the audit trail.
func (t *Task) Fail(reason string, result *AgentResult) error {
	if err := t.Advance(TaskStatusFailed); err != nil {
		return err
	}
	t.Error = reason
	t.Result = result
	return nil
}
