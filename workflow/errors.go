// ABOUTME: Sentinel errors shared across the workflow registry, dispatcher, and HTTP adapter.
// ABOUTME: Callers classify failures with errors.Is to pick the right HTTP status or recovery path.
package workflow

import "errors"

var (
	// ErrInvalidInput marks caller mistakes: empty prompt lists, whitespace-only
	// prompts. No durable record is created for these.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownWorkflowType is returned when no plan builder is registered for
	// the requested workflow type.
	ErrUnknownWorkflowType = errors.New("unknown workflow type")

	// ErrInvalidTransition marks an illegal workflow status change. This is a
	// programmer error in the core, never a normal runtime condition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound is returned by registry reads for unknown workflow ids.
	ErrNotFound = errors.New("workflow not found")
)
