// Package guardrails screens the text that crosses an agent's boundary.
// Input checkers run before a task reaches the model (prompt injection,
// disallowed topics); output filters rewrite the model's answer before a
// caller sees it (PII masking). Agents opt in per instance with
// agent.WithGuardrails; the checker set is fixed at construction.
package guardrails

import (
	"context"
)

// CheckResult is the outcome of one input check.
type CheckResult struct {
	// Blocked indicates the content must not proceed.
	Blocked bool

	// Reason explains the block. Empty when not blocked.
	Reason string

	// GuardrailID names the checker that blocked the content.
	GuardrailID string
}

// FilterResult is the outcome of output filtering.
type FilterResult struct {
	// Content is the filtered output.
	Content string

	// Modified indicates the content was changed.
	Modified bool

	// Redactions lists what was masked or removed.
	Redactions []Redaction
}

// Redaction describes one content modification. The original text is
// never recorded.
type Redaction struct {
	// Type categorizes the redaction, e.g. "email" or "credit_card".
	Type string

	// Replacement is the text that replaced the original.
	Replacement string

	// Position is the character offset in the content at filter time.
	Position int
}

// InputChecker validates content before it reaches the model.
type InputChecker interface {
	CheckInput(ctx context.Context, input string) CheckResult
	ID() string
}

// OutputFilter rewrites model output before it is returned.
type OutputFilter interface {
	FilterOutput(ctx context.Context, output string) FilterResult
	ID() string
}

// Guardrails runs a fixed sequence of input checkers and output filters.
type Guardrails struct {
	checkers []InputChecker
	filters  []OutputFilter
	failOpen bool
}

// Option configures a Guardrails instance.
type Option func(*Guardrails)

// New builds a guardrail set. Without options it passes everything
// through. Fail-closed: a cancelled context during input checking blocks
// the content unless WithFailOpen is set.
func New(opts ...Option) *Guardrails {
	g := &Guardrails{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithInputChecker appends an input checker.
func WithInputChecker(checker InputChecker) Option {
	return func(g *Guardrails) {
		g.checkers = append(g.checkers, checker)
	}
}

// WithOutputFilter appends an output filter.
func WithOutputFilter(filter OutputFilter) Option {
	return func(g *Guardrails) {
		g.filters = append(g.filters, filter)
	}
}

// WithFailOpen lets content through when a check cannot complete.
func WithFailOpen(failOpen bool) Option {
	return func(g *Guardrails) {
		g.failOpen = failOpen
	}
}

// CheckInput runs the input checkers in order and returns the first
// blocking result.
func (g *Guardrails) CheckInput(ctx context.Context, input string) CheckResult {
	for _, checker := range g.checkers {
		if err := ctx.Err(); err != nil {
			if g.failOpen {
				return CheckResult{}
			}
			return CheckResult{
				Blocked:     true,
				Reason:      "input check cancelled",
				GuardrailID: "system",
			}
		}

		result := checker.CheckInput(ctx, input)
		if result.Blocked {
			if result.GuardrailID == "" {
				result.GuardrailID = checker.ID()
			}
			return result
		}
	}
	return CheckResult{}
}

// FilterOutput runs the output filters in sequence, each seeing the
// previous filter's content. Cancellation returns what has been filtered
// so far.
func (g *Guardrails) FilterOutput(ctx context.Context, output string) FilterResult {
	result := FilterResult{Content: output}

	for _, filter := range g.filters {
		if ctx.Err() != nil {
			return result
		}

		filtered := filter.FilterOutput(ctx, result.Content)
		if filtered.Modified {
			result.Content = filtered.Content
			result.Modified = true
			result.Redactions = append(result.Redactions, filtered.Redactions...)
		}
	}
	return result
}
