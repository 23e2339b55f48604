package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/core"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/telemetry"
)

// waveOutcome is one task's raw outcome, written by exactly one worker
// goroutine and read only after the wave settles.
type waveOutcome struct {
	result     *core.AgentResult
	err        error
	durationMs float64
}

// ExecutePlan drives every plan task to a terminal status. Tasks run in
// dependency waves: a wave holds the pending tasks whose dependencies have
// all completed, its members run concurrently under the configured limit,
// and the next wave starts only once the whole wave has settled. A failed
// task fails its transitive dependents without running them. The plan's
// task statuses are mutated only from this goroutine.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan *Plan) error {
	if plan == nil {
		return errors.New(errors.CodeValidation, "execution requires a plan", nil)
	}
	if err := plan.Validate(); err != nil {
		return err
	}
	ctx, runID := core.EnsureRunID(ctx)
	ctx, span := o.tracer.Start(ctx, "Orchestrator.ExecutePlan")
	defer span.End()
	span.SetAttributes(telemetry.PlanAttributes(plan.ID, plan.Goal, len(plan.Tasks))...)
	log := slog.Default()
	started := time.Now()

	wave := 0
	for {
		ready := plan.ready()
		if len(ready) == 0 {
			break
		}
		wave++
		o.runWave(ctx, plan, wave, ready)
		o.propagateFailures(ctx, plan)
	}

	if failed := plan.FailedIDs(); len(failed) > 0 {
		log.Warn("orchestrator.plan.failed",
			slog.String("run_id", runID),
			slog.String("plan_id", plan.ID),
			slog.Any("failed_tasks", failed),
		)
		return errors.Newf(errors.CodePlanExecution, "%d of %d tasks failed", len(failed), len(plan.Tasks)).
			WithContext("plan_id", plan.ID).
			WithContext("failed_tasks", failed)
	}
	log.Info("orchestrator.plan.completed",
		slog.String("run_id", runID),
		slog.String("plan_id", plan.ID),
		slog.Int("tasks", len(plan.Tasks)),
		slog.Int("waves", wave),
		slog.Int64("duration_ms", time.Since(started).Milliseconds()),
	)
	return nil
}

// runWave executes one wave of ready tasks. Workers run concurrently under
// the semaphore and write into their own outcome slot; statuses, events,
// and audit records are applied afterwards in declaration order so the
// observable sequence is deterministic.
func (o *Orchestrator) runWave(ctx context.Context, plan *Plan, wave int, ready []*core.Task) {
	ctx, span := o.tracer.Start(ctx, "Orchestrator.Wave")
	defer span.End()
	span.SetAttributes(telemetry.WaveAttributes(wave, len(ready))...)
	log := slog.Default()
	runID, _ := core.RunID(ctx)

	outcomes := make([]waveOutcome, len(ready))
	sem := make(chan struct{}, o.cfg.MaxConcurrent)
	var wg sync.WaitGroup

	for i, t := range ready {
		if err := t.Advance(core.TaskStatusInProgress); err != nil {
			outcomes[i] = waveOutcome{err: err}
			continue
		}
		log.Info("orchestrator.task.started",
			slog.String("run_id", runID),
			slog.String("plan_id", plan.ID),
			slog.String("task_id", t.ID),
			slog.String("role", t.Role),
			slog.Int("wave", wave),
		)
		o.emit(ctx, core.EventTaskStarted, t.ID, map[string]any{
			"role": t.Role,
			"wave": wave,
		})
		o.auditRecord(ctx, AuditEvent{
			PlanID:    plan.ID,
			TaskID:    t.ID,
			Role:      t.Role,
			Status:    "started",
			StartedAt: time.Now().UTC(),
		})

		wg.Add(1)
		go func(i int, t *core.Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			result, err := o.runTask(ctx, t)
			outcomes[i] = waveOutcome{
				result:     result,
				err:        err,
				durationMs: float64(time.Since(start).Milliseconds()),
			}
		}(i, t)
	}
	wg.Wait()

	for i, t := range ready {
		o.applyOutcome(ctx, log, plan, wave, t, outcomes[i])
	}
}

// applyOutcome moves one task to its terminal status and mirrors the
// transition to logs, events, metrics, audit, and the delegation log.
func (o *Orchestrator) applyOutcome(ctx context.Context, log *slog.Logger, plan *Plan, wave int, t *core.Task, out waveOutcome) {
	runID, _ := core.RunID(ctx)

	if out.err == nil && out.result != nil && out.result.Success {
		if err := t.Complete(out.result); err != nil {
			out.err = err
		} else {
			log.Info("orchestrator.task.completed",
				slog.String("run_id", runID),
				slog.String("plan_id", plan.ID),
				slog.String("task_id", t.ID),
				slog.Float64("duration_ms", out.durationMs),
			)
			o.emit(ctx, core.EventTaskCompleted, t.ID, map[string]any{
				"role": t.Role,
				"wave": wave,
			})
			o.metrics.RecordTask(ctx, t.Role, "completed", out.durationMs)
			o.metrics.RecordIterations(ctx, t.Role, out.result.Iterations)
			o.metrics.RecordTokens(ctx, out.result.Usage.PromptTokens, out.result.Usage.CompletionTokens)
			o.auditRecord(ctx, AuditEvent{
				PlanID:     plan.ID,
				TaskID:     t.ID,
				Role:       t.Role,
				Status:     "completed",
				Output:     out.result.Answer,
				FinishedAt: time.Now().UTC(),
			})
			o.recordTaskDelegation(ctx, t)
			return
		}
	}

	reason := "agent reported failure"
	code := ""
	switch {
	case out.err != nil:
		reason = out.err.Error()
		code = string(errors.CodeOf(out.err))
	case out.result != nil && out.result.FailureCode != "":
		reason = "agent failed with " + out.result.FailureCode
		code = out.result.FailureCode
	}
	t.Fail(reason, out.result)
	log.Warn("orchestrator.task.failed",
		slog.String("run_id", runID),
		slog.String("plan_id", plan.ID),
		slog.String("task_id", t.ID),
		slog.String("error", reason),
		slog.String("error_code", code),
	)
	o.emit(ctx, core.EventTaskFailed, t.ID, map[string]any{
		"role":       t.Role,
		"wave":       wave,
		"reason":     reason,
		"error_code": code,
	})
	o.metrics.RecordTask(ctx, t.Role, "failed", out.durationMs)
	if out.result != nil {
		o.metrics.RecordIterations(ctx, t.Role, out.result.Iterations)
		o.metrics.RecordTokens(ctx, out.result.Usage.PromptTokens, out.result.Usage.CompletionTokens)
	}
	o.auditRecord(ctx, AuditEvent{
		PlanID:     plan.ID,
		TaskID:     t.ID,
		Role:       t.Role,
		Status:     "failed",
		Error:      reason,
		FinishedAt: time.Now().UTC(),
	})
	o.recordTaskDelegation(ctx, t)
}

func (o *Orchestrator) recordTaskDelegation(ctx context.Context, t *core.Task) {
	o.recordDelegation(ctx, Delegation{
		Agent:   t.Role,
		TaskID:  t.ID,
		Task:    t.Description,
		Success: t.Status == core.TaskStatusCompleted,
		Error:   t.Error,
		At:      time.Now().UTC(),
	})
}

// runTask builds the role agent and runs one task under the per-task
// deadline. Deadline overruns surface as timeout errors even when the
// runner reports something else first.
func (o *Orchestrator) runTask(ctx context.Context, t *core.Task) (*core.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.CodeTimeout, "run canceled before task start", err).
			WithContext("task_id", t.ID)
	}
	runner, err := o.factory(t.Role)
	if err != nil {
		return nil, err
	}

	taskCtx, cancel := context.WithTimeout(core.WithTaskID(ctx, t.ID), o.cfg.TaskTimeout())
	defer cancel()
	taskCtx, span := o.tracer.Start(taskCtx, "Orchestrator.Task")
	defer span.End()
	span.SetAttributes(telemetry.TaskAttributes(t.ID, t.Description, t.Role, string(t.Status))...)

	result, err := runner.Run(taskCtx, taskPrompt(t))
	if err != nil && taskCtx.Err() != nil && !errors.HasCode(err, errors.CodeTimeout) {
		err = errors.New(errors.CodeTimeout, "task deadline exceeded", err).
			WithContext("task_id", t.ID).
			WithContext("timeout_seconds", o.cfg.TaskTimeoutSeconds)
	}
	return result, err
}

// taskPrompt renders the task for its agent. Descriptions are
// self-contained by the planner contract; constraints are appended in
// sorted key order so prompts are reproducible.
func taskPrompt(t *core.Task) string {
	if len(t.Constraints) == 0 {
		return t.Description
	}
	keys := make([]string, 0, len(t.Constraints))
	for k := range t.Constraints {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(t.Description)
	b.WriteString("\n\nConstraints:")
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s: %s", k, t.Constraints[k])
	}
	return b.String()
}

// propagateFailures fails every pending task downstream of a failed one,
// iterating to a fixpoint so chains collapse within a single call. Skipped
// tasks never instantiate an agent.
func (o *Orchestrator) propagateFailures(ctx context.Context, plan *Plan) {
	log := slog.Default()
	runID, _ := core.RunID(ctx)

	for {
		changed := false
		for _, t := range plan.Tasks {
			if t.Status != core.TaskStatusPending {
				continue
			}
			for _, dep := range t.DependsOn {
				d := plan.Task(dep)
				if d == nil || d.Status != core.TaskStatusFailed {
					continue
				}
				reason := "dependency failed: " + dep
				t.Fail(reason, nil)
				log.Warn("orchestrator.task.skipped",
					slog.String("run_id", runID),
					slog.String("plan_id", plan.ID),
					slog.String("task_id", t.ID),
					slog.String("failed_dependency", dep),
				)
				o.emit(ctx, core.EventTaskFailed, t.ID, map[string]any{
					"role":       t.Role,
					"reason":     reason,
					"propagated": true,
				})
				o.metrics.RecordTask(ctx, t.Role, "failed", 0)
				o.auditRecord(ctx, AuditEvent{
					PlanID:     plan.ID,
					TaskID:     t.ID,
					Role:       t.Role,
					Status:     "failed",
					Error:      reason,
					FinishedAt: time.Now().UTC(),
				})
				changed = true
				break
			}
		}
		if !changed {
			return
		}
	}
}
