// ABOUTME: Dispatcher: the sole entry point that creates workflow records and routes runs.
// ABOUTME: Resolves the plan before any durable write, then executes inline or enqueues an async task.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quillworks/scrivener/clients"
	"github.com/quillworks/scrivener/metrics"
	"github.com/quillworks/scrivener/pipeline"
	"github.com/quillworks/scrivener/workflow"
	"github.com/quillworks/scrivener/workflow/store"
)

// Request is what the HTTP adapter hands to Run.
type Request struct {
	Prompts        []string `json:"prompts"`
	Strategy       string   `json:"strategy,omitempty"`
	AsyncExecution bool     `json:"async_execution,omitempty"`
}

// Result is the dispatch outcome returned to the HTTP adapter.
type Result struct {
	ID          string          `json:"id"`
	Status      workflow.Status `json:"status"`
	AsyncTaskID string          `json:"async_task_id,omitempty"`
	Message     string          `json:"message"`
}

// Enqueuer publishes an async task for a workflow id and returns the task's
// correlation id. Implemented by queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, workflowID string) (string, error)
}

// Config holds the dispatcher's collaborators and limits.
type Config struct {
	Registry  *store.Store
	Executor  *pipeline.Executor
	Queue     Enqueuer // nil disables async dispatch
	Vault     clients.VaultClient
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	TimeLimit time.Duration // wall-clock budget per run
	SoftLimit time.Duration // warning threshold, 0 disables
}

// Dispatcher creates durable records and routes runs to synchronous or
// asynchronous execution.
type Dispatcher struct {
	registry  *store.Store
	executor  *pipeline.Executor
	queue     Enqueuer
	vault     clients.VaultClient
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeLimit time.Duration
	softLimit time.Duration
	plans     map[string]pipeline.PlanBuilder
}

// New creates a dispatcher with the article-proposal plan registered.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeLimit := cfg.TimeLimit
	if timeLimit <= 0 {
		timeLimit = 10 * time.Minute
	}
	d := &Dispatcher{
		registry:  cfg.Registry,
		executor:  cfg.Executor,
		queue:     cfg.Queue,
		vault:     cfg.Vault,
		metrics:   cfg.Metrics,
		logger:    logger,
		timeLimit: timeLimit,
		softLimit: cfg.SoftLimit,
		plans:     make(map[string]pipeline.PlanBuilder),
	}
	d.RegisterPlan(pipeline.ArticleProposalType, pipeline.ArticleProposalPlan)
	return d
}

// RegisterPlan adds a plan builder for a workflow type.
func (d *Dispatcher) RegisterPlan(wfType string, builder pipeline.PlanBuilder) {
	d.plans[wfType] = builder
}

// Run creates a PENDING record for the request and either executes the
// pipeline inline or enqueues an async task. Validation failures happen
// before any durable write; after the record exists, every failure path
// transitions it to FAILED rather than leaving it pinned in PENDING.
func (d *Dispatcher) Run(ctx context.Context, wfType string, req Request) (*Result, error) {
	builder, ok := d.plans[wfType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", workflow.ErrUnknownWorkflowType, wfType)
	}

	prompts, err := normalizePrompts(req.Prompts)
	if err != nil {
		return nil, err
	}

	plan := builder(strings.TrimSpace(req.Strategy))

	id, err := d.registry.Create(ctx, wfType, prompts, plan.Strategy)
	if err != nil {
		return nil, fmt.Errorf("create workflow record: %w", err)
	}
	d.logger.Info("workflow created", "id", id, "type", wfType, "async", req.AsyncExecution)

	if req.AsyncExecution {
		return d.runAsync(ctx, id, wfType)
	}
	return d.runSync(ctx, id, wfType, plan, prompts)
}

// runAsync enqueues the task and marks the record RUNNING at dispatch time
// so clients polling immediately see progress. The worker does not
// re-transition.
func (d *Dispatcher) runAsync(ctx context.Context, id, wfType string) (*Result, error) {
	if d.queue == nil {
		return nil, d.failDispatch(ctx, id, "async execution requested but no queue is configured")
	}

	taskID, err := d.queue.Enqueue(ctx, id)
	if err != nil {
		return nil, d.failDispatch(ctx, id, fmt.Sprintf("enqueue task: %v", err))
	}
	d.metrics.Enqueued()

	// The task is published; the record transition must land even if the
	// client disconnects now.
	regCtx := context.WithoutCancel(ctx)
	if err := d.registry.MarkRunning(regCtx, id, taskID); err != nil {
		return nil, d.failDispatch(ctx, id, fmt.Sprintf("mark running: %v", err))
	}
	d.metrics.Started(wfType)
	if err := d.registry.ReportProgress(regCtx, id, "queued", 0); err != nil {
		d.logger.Warn("initial progress write failed", "id", id, "error", err)
	}

	return &Result{ID: id, Status: workflow.StatusRunning, AsyncTaskID: taskID, Message: "queued"}, nil
}

// runSync marks the record RUNNING and drives the pipeline inline.
func (d *Dispatcher) runSync(ctx context.Context, id, wfType string, plan workflow.Plan, prompts []string) (*Result, error) {
	if err := d.registry.MarkRunning(ctx, id, ""); err != nil {
		return nil, d.failDispatch(ctx, id, fmt.Sprintf("mark running: %v", err))
	}
	d.metrics.Started(wfType)

	res, err := d.executePipeline(ctx, id, wfType, plan, prompts)
	if err != nil {
		return nil, err
	}

	status := workflow.StatusCompleted
	if !res.Success {
		status = workflow.StatusFailed
	}
	return &Result{ID: id, Status: status, Message: res.Summary}, nil
}

// ExecuteRecord drives an already-RUNNING record through the pipeline and
// writes the terminal outcome. The async worker calls this after loading the
// record for a dequeued task.
func (d *Dispatcher) ExecuteRecord(ctx context.Context, rec *workflow.Record) error {
	builder, ok := d.plans[rec.Type]
	if !ok {
		msg := fmt.Sprintf("unknown workflow type %q", rec.Type)
		if err := d.registry.MarkFailed(context.WithoutCancel(ctx), rec.ID, msg); err != nil {
			d.logger.Error("mark failed after plan resolution", "id", rec.ID, "error", err)
		}
		return fmt.Errorf("%w: %q", workflow.ErrUnknownWorkflowType, rec.Type)
	}
	_, err := d.executePipeline(ctx, rec.ID, rec.Type, builder(rec.Strategy), rec.Prompts)
	return err
}

// executePipeline runs the plan under the wall-clock budget, reporting
// progress through the registry, and persists the terminal outcome. The
// returned error covers infrastructure failures only; a pipeline failure is
// a Result with Success=false after the record has been marked FAILED.
func (d *Dispatcher) executePipeline(ctx context.Context, id, wfType string, plan workflow.Plan, prompts []string) (*pipeline.Result, error) {
	// Registry writes ride a detached context: a client disconnect or a
	// timed-out run must still land its terminal status, never leaving the
	// record pinned in RUNNING.
	regCtx := context.WithoutCancel(ctx)

	runCtx, cancel := context.WithTimeout(ctx, d.timeLimit)
	defer cancel()

	if d.softLimit > 0 {
		warn := time.AfterFunc(d.softLimit, func() {
			d.logger.Warn("workflow exceeded soft time limit", "id", id, "soft_limit", d.softLimit)
		})
		defer warn.Stop()
	}

	if err := d.registry.ReportProgress(regCtx, id, "started", 0); err != nil {
		d.logger.Warn("initial progress write failed", "id", id, "error", err)
	}

	state := workflow.NewState(d.vaultSummary(runCtx, id), plan.Strategy, prompts)
	progress := func(message string, percent int) {
		if err := d.registry.ReportProgress(regCtx, id, message, percent); err != nil {
			d.logger.Warn("progress write failed", "id", id, "error", err)
		}
	}

	startedAt := time.Now()
	res, err := d.executor.Run(runCtx, plan, state, progress)
	elapsed := time.Since(startedAt)
	if err != nil {
		// Plan named an unregistered node: a wiring bug, surfaced as FAILED.
		if markErr := d.registry.MarkFailed(regCtx, id, err.Error()); markErr != nil {
			d.logger.Error("mark failed after executor error", "id", id, "error", markErr)
		}
		d.metrics.Failed(wfType, elapsed)
		return nil, err
	}

	if res.Success {
		if err := d.registry.MarkCompleted(regCtx, id, res.BranchName, res.Metadata); err != nil {
			return nil, fmt.Errorf("mark completed %s: %w", id, err)
		}
		d.metrics.Completed(wfType, elapsed)
		d.logger.Info("workflow completed", "id", id, "branch", res.BranchName, "elapsed", elapsed)
		return res, nil
	}

	errMsg := res.Summary
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		errMsg = fmt.Sprintf("workflow timed out after %s", d.timeLimit)
	}
	if err := d.registry.MarkFailed(regCtx, id, errMsg); err != nil {
		return nil, fmt.Errorf("mark failed %s: %w", id, err)
	}
	d.metrics.Failed(wfType, elapsed)
	d.logger.Warn("workflow failed", "id", id, "error", errMsg, "elapsed", elapsed)
	return res, nil
}

// vaultSummary fetches the vault summary best-effort; the pipeline runs with
// an empty summary when the vault service is unavailable.
func (d *Dispatcher) vaultSummary(ctx context.Context, id string) string {
	if d.vault == nil {
		return ""
	}
	summary, err := d.vault.Summary(ctx)
	if err != nil {
		d.logger.Warn("vault summary unavailable", "id", id, "error", err)
		return ""
	}
	return summary
}

// failDispatch transitions a record to FAILED after a dispatch-time error so
// it is never left pinned in PENDING, then returns the error for the caller.
// The write is detached from the caller's context for the same reason the
// pipeline's terminal writes are.
func (d *Dispatcher) failDispatch(ctx context.Context, id, msg string) error {
	if err := d.registry.MarkFailed(context.WithoutCancel(ctx), id, msg); err != nil {
		d.logger.Error("mark failed during dispatch rollback", "id", id, "error", err)
	}
	return fmt.Errorf("dispatch %s: %s", id, msg)
}

// normalizePrompts trims each prompt and rejects empty lists and blank entries.
func normalizePrompts(prompts []string) ([]string, error) {
	if len(prompts) == 0 {
		return nil, fmt.Errorf("%w: prompts must not be empty", workflow.ErrInvalidInput)
	}
	normalized := make([]string, len(prompts))
	for i, p := range prompts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: prompt %d is empty", workflow.ErrInvalidInput, i)
		}
		normalized[i] = trimmed
	}
	return normalized, nil
}
