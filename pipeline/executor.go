// ABOUTME: Sequential pipeline executor: runs a graph plan node by node against shared state.
// ABOUTME: Merges node metadata, reports progress, and aborts cleanly on the first failure.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/quillworks/scrivener/workflow"
)

// SubmitNodeName is the plan node whose metadata carries the terminal branch name.
const SubmitNodeName = "submit_draft_branch"

// ProgressFunc receives progress beacons during a run. The dispatcher and
// the async worker bind it to the registry's ReportProgress; percent is
// clamped before persistence.
type ProgressFunc func(message string, percent int)

// Result is the terminal outcome of one pipeline run.
type Result struct {
	Success     bool
	Changes     []workflow.FileChange
	Summary     string
	NodeResults map[string]workflow.NodeOutcome
	NodeOrder   []string
	BranchName  string

	// Metadata is what the registry merges into the record on completion:
	// node_results, total_changes, branch_name.
	Metadata map[string]any
}

// Executor runs graph plans. It is stateless across runs; each run owns its
// own pipeline state, so a single Executor serves concurrent workflows.
type Executor struct {
	nodes  *Registry
	logger *slog.Logger
}

// NewExecutor creates an executor over the given node registry.
func NewExecutor(nodes *Registry, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{nodes: nodes, logger: logger}
}

// Run executes the plan in order against a fresh state built from the given
// inputs. Node failures are not errors: they produce a Result with
// Success=false. The only error return is a plan naming an unregistered
// node, which is a wiring bug.
func (e *Executor) Run(ctx context.Context, plan workflow.Plan, state *workflow.State, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(string, int) {}
	}

	// Resolve the whole plan up front so a wiring bug surfaces before any
	// side effects.
	resolved := make([]Node, len(plan.Nodes))
	for i, name := range plan.Nodes {
		n, err := e.nodes.Resolve(name)
		if err != nil {
			return nil, err
		}
		resolved[i] = n
	}

	total := len(resolved)
	for i, node := range resolved {
		name := node.Name()

		if err := ctx.Err(); err != nil {
			e.logger.Warn("pipeline interrupted", "node", name, "error", err)
			return e.abort(state, name, fmt.Sprintf("interrupted before node: %v", err)), nil
		}

		progress(fmt.Sprintf("running %s", name), percentOf(i, total))
		e.logger.Info("executing node", "node", name, "position", i+1, "total", total)

		if !node.Validate(state) {
			res := failure("validation failed: node is not prepared to execute")
			state.RecordResult(name, res)
			return e.abort(state, name, res.Message), nil
		}

		res := safeExecute(ctx, node, state)
		state.RecordResult(name, res)

		if !res.Success {
			e.logger.Warn("node failed", "node", name, "message", res.Message)
			return e.abort(state, name, res.Message), nil
		}
		e.logger.Info("node completed", "node", name, "changes", len(res.Changes))
	}

	branch := branchNameFrom(state)
	return &Result{
		Success:     true,
		Changes:     state.AccumulatedChanges,
		Summary:     successSummary(state),
		NodeResults: state.NodeResults,
		NodeOrder:   state.NodeOrder,
		BranchName:  branch,
		Metadata: map[string]any{
			"node_results":  state.NodeResults,
			"total_changes": len(state.AccumulatedChanges),
			"branch_name":   branch,
		},
	}, nil
}

// abort builds the failure result after nodeName failed with message. Side
// effects already committed by earlier nodes are not undone.
func (e *Executor) abort(state *workflow.State, nodeName, message string) *Result {
	return &Result{
		Success:     false,
		Changes:     state.AccumulatedChanges,
		Summary:     fmt.Sprintf("Node %s failed: %s", nodeName, message),
		NodeResults: state.NodeResults,
		NodeOrder:   state.NodeOrder,
	}
}

// safeExecute runs a node with panic recovery so a misbehaving node aborts
// its own pipeline instead of crashing the process.
func safeExecute(ctx context.Context, node Node, state *workflow.State) (res workflow.NodeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failure("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return node.Execute(ctx, state)
}

// branchNameFrom derives the terminal branch name from the submit node's
// recorded metadata, or "" when the plan has no submit node.
func branchNameFrom(state *workflow.State) string {
	outcome, ok := state.NodeResults[SubmitNodeName]
	if !ok {
		return ""
	}
	branch, _ := outcome.Metadata["branch_name"].(string)
	return branch
}

// successSummary renders one header line with strategy and counts, then one
// bullet per executed node.
func successSummary(state *workflow.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow completed (strategy %s): %d node(s), %d file change(s)",
		state.Strategy, len(state.NodeOrder), len(state.AccumulatedChanges))
	for _, name := range state.NodeOrder {
		fmt.Fprintf(&b, "\n- %s: %s", name, state.NodeResults[name].Message)
	}
	return b.String()
}

// percentOf maps node index i of total onto [0,100).
func percentOf(i, total int) int {
	if total == 0 {
		return 0
	}
	return i * 100 / total
}
