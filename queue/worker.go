// ABOUTME: Queue worker: pulls async run tasks from the durable consumer and executes them.
// ABOUTME: Messages are acked only after the terminal registry write has happened.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/quillworks/scrivener/workflow"
	"github.com/quillworks/scrivener/workflow/store"
)

// fetchWait bounds each pull so the worker notices shutdown promptly.
const fetchWait = 5 * time.Second

// Runner executes a loaded workflow record to its terminal status.
// Implemented by dispatch.Dispatcher.
type Runner interface {
	ExecuteRecord(ctx context.Context, rec *workflow.Record) error
}

// Worker consumes async run tasks and drives them through the pipeline.
type Worker struct {
	sub      *nats.Subscription
	registry *store.Store
	runner   Runner
	logger   *slog.Logger
}

// NewWorker binds a durable pull consumer on the task stream.
func NewWorker(nc *nats.Conn, registry *store.Store, runner Runner, logger *slog.Logger) (*Worker, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureStream(js); err != nil {
		return nil, err
	}
	sub, err := js.PullSubscribe(TaskSubject, ConsumerName,
		nats.AckExplicit(),
		// One delivery per task: a crashed run is surfaced by the record's
		// status rather than re-executed with side effects doubled.
		nats.MaxDeliver(1),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TaskSubject, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sub: sub, registry: registry, runner: runner, logger: logger}, nil
}

// Run pulls tasks until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "stream", StreamName, "consumer", ConsumerName)
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopping")
			return nil
		}
		msgs, err := w.sub.Fetch(1, nats.MaxWait(fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, nats.ErrConnectionClosed) {
				return nil
			}
			w.logger.Error("fetch failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			w.process(ctx, msg)
		}
	}
}

// process decodes and executes one task message, acking it once the record
// has reached a terminal status (or turned out not to need execution).
func (w *Worker) process(ctx context.Context, msg *nats.Msg) {
	var task Task
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		w.logger.Error("malformed task payload", "error", err)
		w.ack(msg)
		return
	}
	if err := w.Handle(ctx, task); err != nil {
		w.logger.Error("task execution failed", "task_id", task.TaskID, "workflow_id", task.WorkflowID, "error", err)
	}
	w.ack(msg)
}

// Handle loads the task's record and executes it if it is still RUNNING.
// Records in other states are logged and skipped: the task is stale.
func (w *Worker) Handle(ctx context.Context, task Task) error {
	rec, err := w.registry.Get(ctx, task.WorkflowID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			w.logger.Warn("task references unknown workflow", "task_id", task.TaskID, "workflow_id", task.WorkflowID)
			return nil
		}
		return fmt.Errorf("load workflow %s: %w", task.WorkflowID, err)
	}

	switch rec.Status {
	case workflow.StatusRunning:
		w.logger.Info("executing task", "task_id", task.TaskID, "workflow_id", rec.ID, "type", rec.Type)
		return w.runner.ExecuteRecord(ctx, rec)
	case workflow.StatusPending:
		// Dispatch marks records RUNNING before the task is visible; a
		// PENDING record here means the dispatch-side transition was lost.
		msg := "task dequeued while workflow was still PENDING"
		w.logger.Warn(msg, "task_id", task.TaskID, "workflow_id", rec.ID)
		return w.registry.MarkFailed(ctx, rec.ID, msg)
	default:
		w.logger.Info("skipping task for terminal workflow", "task_id", task.TaskID, "workflow_id", rec.ID, "status", rec.Status)
		return nil
	}
}

func (w *Worker) ack(msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		w.logger.Error("ack failed", "error", err)
	}
}

// Drain unsubscribes the durable consumer binding without deleting it.
func (w *Worker) Drain() error {
	return w.sub.Drain()
}
