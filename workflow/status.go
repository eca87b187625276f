// ABOUTME: Workflow status enum and the exhaustive lifecycle transition function.
// ABOUTME: PENDING -> RUNNING -> {COMPLETED, FAILED}, plus the defensive PENDING -> FAILED edge.
package workflow

import "fmt"

// Status is the lifecycle state of a workflow record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Event is a lifecycle event applied to a workflow record.
type Event string

const (
	EventStart   Event = "start"
	EventSucceed Event = "succeed"
	EventFail    Event = "fail"
)

// Transition returns the status that results from applying event to from.
// The state machine is:
//
//	PENDING --start--> RUNNING --succeed--> COMPLETED
//	   |                  |
//	   +------fail--------+--fail---------> FAILED
//
// The PENDING->FAILED edge exists so a dispatcher can fail a record whose
// async task never started work. Everything else is ErrInvalidTransition.
func Transition(from Status, event Event) (Status, error) {
	switch from {
	case StatusPending:
		switch event {
		case EventStart:
			return StatusRunning, nil
		case EventFail:
			return StatusFailed, nil
		}
	case StatusRunning:
		switch event {
		case EventSucceed:
			return StatusCompleted, nil
		case EventFail:
			return StatusFailed, nil
		}
	case StatusCompleted, StatusFailed:
		// Terminal states admit nothing.
	}
	return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
}
