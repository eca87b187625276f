// ABOUTME: Tests for the worker's task handling against each possible record state.
// ABOUTME: Exercises Handle directly; the JetStream fetch loop is exercised against a live server only.
package queue

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/quillworks/scrivener/workflow"
	"github.com/quillworks/scrivener/workflow/store"
)

// fakeRunner records which records were executed and can mark them terminal.
type fakeRunner struct {
	registry *store.Store
	executed []string
	outcome  string // "complete" or "fail"
}

func (r *fakeRunner) ExecuteRecord(ctx context.Context, rec *workflow.Record) error {
	r.executed = append(r.executed, rec.ID)
	if r.outcome == "fail" {
		return r.registry.MarkFailed(ctx, rec.ID, "simulated failure")
	}
	return r.registry.MarkCompleted(ctx, rec.ID, "drafts/x", nil)
}

func newWorkerFixture(t *testing.T) (*Worker, *store.Store, *fakeRunner) {
	t.Helper()
	registry, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })

	runner := &fakeRunner{registry: registry, outcome: "complete"}
	w := &Worker{registry: registry, runner: runner, logger: slog.Default()}
	return w, registry, runner
}

func createRecord(t *testing.T, s *store.Store) string {
	t.Helper()
	id, err := s.Create(context.Background(), "article-proposal", []string{"p"}, "deep-research")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestHandleExecutesRunningRecord(t *testing.T) {
	w, registry, runner := newWorkerFixture(t)
	ctx := context.Background()

	id := createRecord(t, registry)
	if err := registry.MarkRunning(ctx, id, "task-1"); err != nil {
		t.Fatal(err)
	}

	if err := w.Handle(ctx, Task{TaskID: "task-1", WorkflowID: id}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(runner.executed) != 1 || runner.executed[0] != id {
		t.Errorf("executed = %v", runner.executed)
	}

	rec, _ := registry.Get(ctx, id)
	if rec.Status != workflow.StatusCompleted {
		t.Errorf("status = %s", rec.Status)
	}
}

func TestHandleUnknownWorkflowIsSkipped(t *testing.T) {
	w, _, runner := newWorkerFixture(t)

	// A task for a record that no longer exists is dropped, not retried.
	if err := w.Handle(context.Background(), Task{TaskID: "t", WorkflowID: "missing"}); err != nil {
		t.Fatalf("Handle = %v, want nil", err)
	}
	if len(runner.executed) != 0 {
		t.Error("runner called for a missing record")
	}
}

func TestHandlePendingRecordIsFailed(t *testing.T) {
	w, registry, runner := newWorkerFixture(t)
	ctx := context.Background()

	id := createRecord(t, registry)

	if err := w.Handle(ctx, Task{TaskID: "t", WorkflowID: id}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(runner.executed) != 0 {
		t.Error("runner called for a PENDING record")
	}

	rec, _ := registry.Get(ctx, id)
	if rec.Status != workflow.StatusFailed {
		t.Errorf("status = %s, want FAILED", rec.Status)
	}
	if rec.ErrorMessage == "" {
		t.Error("no error message on defensively failed record")
	}
}

func TestHandleTerminalRecordIsSkipped(t *testing.T) {
	w, registry, runner := newWorkerFixture(t)
	ctx := context.Background()

	for _, terminal := range []string{"complete", "fail"} {
		id := createRecord(t, registry)
		if err := registry.MarkRunning(ctx, id, ""); err != nil {
			t.Fatal(err)
		}
		if terminal == "complete" {
			if err := registry.MarkCompleted(ctx, id, "b", nil); err != nil {
				t.Fatal(err)
			}
		} else {
			if err := registry.MarkFailed(ctx, id, "x"); err != nil {
				t.Fatal(err)
			}
		}

		before, _ := registry.Get(ctx, id)
		if err := w.Handle(ctx, Task{TaskID: "t", WorkflowID: id}); err != nil {
			t.Fatalf("Handle: %v", err)
		}
		after, _ := registry.Get(ctx, id)
		if after.Status != before.Status || after.BranchName != before.BranchName {
			t.Errorf("terminal record mutated: %+v", after)
		}
	}
	if len(runner.executed) != 0 {
		t.Error("runner called for terminal records")
	}
}
