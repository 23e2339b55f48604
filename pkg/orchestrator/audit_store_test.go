package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"
)

func TestMemoryAuditStore(t *testing.T) {
	store := NewMemoryAuditStore()
	base := time.Now().UTC()
	events := []AuditEvent{
		{PlanID: "plan-1", RunID: "run-1", Status: "plan.created", StartedAt: base},
		{PlanID: "plan-1", RunID: "run-1", TaskID: "t1", Role: "coder", Status: "started", StartedAt: base.Add(time.Second)},
		{PlanID: "plan-1", RunID: "run-1", TaskID: "t1", Role: "coder", Status: "completed", Output: "shipped", FinishedAt: base.Add(2 * time.Second)},
		{PlanID: "plan-2", RunID: "run-2", TaskID: "t1", Role: "coder", Status: "failed", Error: "kaput"},
	}
	for _, ev := range events {
		if err := store.Record(context.Background(), ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := store.List(context.Background(), AuditFilter{PlanID: "plan-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Status != "plan.created" || got[2].Status != "completed" {
		t.Fatalf("insertion order lost: %v, %v", got[0].Status, got[2].Status)
	}

	got, err = store.List(context.Background(), AuditFilter{TaskID: "t1", Status: "failed"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].PlanID != "plan-2" {
		t.Fatalf("unexpected events: %+v", got)
	}

	got, err = store.List(context.Background(), AuditFilter{RunID: "run-2"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Error != "kaput" {
		t.Fatalf("run filter: %+v", got)
	}

	got, err = store.List(context.Background(), AuditFilter{PlanID: "plan-1", Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit ignored, got %d events", len(got))
	}
}

func TestSQLiteAuditStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:orchestrator_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	event := AuditEvent{
		PlanID:    "plan-1",
		RunID:     "run-1",
		TaskID:    "t1",
		Role:      "coder",
		Status:    "completed",
		Output:    map[string]any{"ok": true},
		StartedAt: time.Now().UTC(),
	}
	if err := store.Record(context.Background(), event); err != nil {
		t.Fatalf("record: %v", err)
	}
	events, err := store.List(context.Background(), AuditFilter{PlanID: "plan-1", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].RunID != "run-1" {
		t.Fatalf("unexpected run id: %s", events[0].RunID)
	}
	if events[0].Role != "coder" {
		t.Fatalf("unexpected role: %s", events[0].Role)
	}
	out, ok := events[0].Output.(map[string]any)
	if !ok || out["ok"] != true {
		t.Fatalf("output round-trip failed: %+v", events[0].Output)
	}
}

func TestSQLiteAuditStoreOrdering(t *testing.T) {
	db, err := sql.Open("sqlite", "file:orchestrator_audit_order_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	base := time.Now().UTC().Truncate(time.Second)
	for i := range 3 {
		ev := AuditEvent{
			PlanID:    "plan-1",
			TaskID:    fmt.Sprintf("t%d", 3-i),
			Status:    "started",
			StartedAt: base.Add(time.Duration(3-i) * time.Second),
		}
		if err := store.Record(context.Background(), ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	events, err := store.List(context.Background(), AuditFilter{PlanID: "plan-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"t1", "t2", "t3"} {
		if events[i].TaskID != want {
			t.Fatalf("event %d task = %s, want %s (ordered by started_at)", i, events[i].TaskID, want)
		}
	}
}
