// Package core defines the shared data model of the framework: tasks,
// agent steps and results, semantic events, and context plumbing.
package core

import "context"

// Memory is the persistence surface agents write run history to and read
// context back from. What Store accepts and Retrieve answers depends on the
// backend: conversation stores take structured entries and return recent
// history, vector stores take documents and return semantic neighbors.
type Memory interface {
	Store(ctx context.Context, data any) error
	Retrieve(ctx context.Context, query any) (any, error)
}
