// ABOUTME: Node capability interface and the build-time registry mapping node names to instances.
// ABOUTME: The executor dispatches by plan node name; a missing name is a programmer error.
package pipeline

import (
	"context"
	"fmt"

	"github.com/quillworks/scrivener/workflow"
)

// Node is a single pipeline stage. Validate must be pure and cheap; Execute
// may perform I/O against external clients. A node signals failure by
// returning a NodeResult with Success=false — the executor aborts the
// pipeline and the node's message becomes the workflow error.
type Node interface {
	// Name returns the node's plan name (e.g. "topic_proposal").
	Name() string

	// Validate reports whether the node is prepared to execute against the
	// given state. The executor treats false as a validation failure.
	Validate(s *workflow.State) bool

	// Execute runs the node against the shared pipeline state.
	Execute(ctx context.Context, s *workflow.State) workflow.NodeResult
}

// Registry maps node names to Node instances at build time.
type Registry struct {
	nodes map[string]Node
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]Node)}
}

// Register adds a node, keyed by its Name(). Re-registering a name replaces
// the previous instance.
func (r *Registry) Register(n Node) {
	r.nodes[n.Name()] = n
}

// Resolve returns the node for the given plan name. A missing node is a
// wiring bug, not a runtime condition.
func (r *Registry) Resolve(name string) (Node, error) {
	n, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("unknown node %q: not registered", name)
	}
	return n, nil
}

// failure builds a failed NodeResult with a formatted message.
func failure(format string, args ...any) workflow.NodeResult {
	return workflow.NodeResult{Success: false, Message: fmt.Sprintf(format, args...)}
}
