package core

import (
	"context"
	"time"
)

// EventType identifies a semantic event emitted by agents or the orchestrator.
type EventType string

const (
	EventAgentThinking    EventType = "agent.thinking"
	EventAgentAction      EventType = "agent.action"
	EventAgentObservation EventType = "agent.observation"
	EventAgentAnswer      EventType = "agent.answer"
	EventAgentError       EventType = "agent.error"

	EventPlanCreated   EventType = "orchestrator.plan.created"
	EventTaskStarted   EventType = "orchestrator.task.started"
	EventTaskCompleted EventType = "orchestrator.task.completed"
	EventTaskFailed    EventType = "orchestrator.task.failed"
	EventDelegation    EventType = "orchestrator.delegation"
	EventSynthesis     EventType = "orchestrator.synthesis"
)

// Event captures a semantic streaming/logging event. RunID ties the event
// to an orchestration run when one is in flight.
type Event struct {
	Type      EventType
	Agent     string
	TaskID    string
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// EmitterFunc adapts a function to the EventEmitter interface.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NewEvent builds an event stamped with the current time and the run id
// carried by ctx, when present.
func NewEvent(ctx context.Context, eventType EventType, agent string, taskID string, payload map[string]any) Event {
	ev := Event{
		Type:      eventType,
		Agent:     agent,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if id, ok := RunID(ctx); ok {
		ev.RunID = id
	}
	return ev
}
