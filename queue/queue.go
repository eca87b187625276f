// ABOUTME: JetStream-backed task queue: stream provisioning and async task publication.
// ABOUTME: Each published task carries a uuid correlation id alongside the workflow id.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// StreamName is the JetStream stream holding async workflow tasks.
	StreamName = "SCRIVENER_TASKS"
	// TaskSubject is the subject async run tasks are published on.
	TaskSubject = "scrivener.tasks.run"
	// ConsumerName is the durable consumer shared by worker processes.
	ConsumerName = "scrivener-worker"
)

// Task is the wire payload for an async workflow run.
type Task struct {
	TaskID     string `json:"task_id"`
	WorkflowID string `json:"workflow_id"`
}

// Queue publishes async tasks to JetStream.
type Queue struct {
	js nats.JetStreamContext
}

// New wraps a NATS connection and ensures the task stream exists.
func New(nc *nats.Conn) (*Queue, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureStream(js); err != nil {
		return nil, err
	}
	return &Queue{js: js}, nil
}

// ensureStream creates the task stream if it does not already exist.
func ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("stream info %s: %w", StreamName, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{TaskSubject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// Enqueue publishes a run task for the workflow and returns the task id.
func (q *Queue) Enqueue(ctx context.Context, workflowID string) (string, error) {
	task := Task{
		TaskID:     uuid.NewString(),
		WorkflowID: workflowID,
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}
	if _, err := q.js.Publish(TaskSubject, payload, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("publish task for %s: %w", workflowID, err)
	}
	return task.TaskID, nil
}
