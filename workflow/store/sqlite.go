// ABOUTME: SQLite-backed workflow registry, the sole custodian of durable workflow records.
// ABOUTME: Lifecycle writes are status-guarded UPDATEs so transitions stay atomic under concurrent reads.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quillworks/scrivener/workflow"
)

// timeLayout is the persisted timestamp format, always UTC. The fixed-width
// fractional part keeps lexicographic order equal to chronological order,
// which the created_at index relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the durable workflow registry. All lifecycle changes funnel
// through it; every mutating operation is atomic with respect to concurrent
// Get/List because each one is a single status-guarded statement (or a
// single transaction) against SQLite in WAL mode.
type Store struct {
	db *sql.DB

	// now is swappable for tests.
	now func() time.Time
}

// Open opens or creates the registry database at the given path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			prompts TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			branch_name TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			async_task_id TEXT NOT NULL DEFAULT '',
			progress_message TEXT NOT NULL DEFAULT '',
			progress_percent INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
		CREATE INDEX IF NOT EXISTS idx_workflows_created_at ON workflows(created_at DESC);`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create writes a new record in PENDING and returns its id.
func (s *Store) Create(ctx context.Context, wfType string, prompts []string, strategy string) (string, error) {
	promptsJSON, err := json.Marshal(prompts)
	if err != nil {
		return "", fmt.Errorf("marshal prompts: %w", err)
	}

	id := workflow.NewID()
	createdAt := s.now().Format(timeLayout)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, type, prompts, strategy, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, wfType, string(promptsJSON), strategy, string(workflow.StatusPending), createdAt)
	if err != nil {
		return "", fmt.Errorf("insert workflow: %w", err)
	}
	return id, nil
}

// MarkRunning transitions PENDING->RUNNING, stamping started_at and the
// async correlation id when one is given. Fails with ErrInvalidTransition if
// the record is not PENDING.
func (s *Store) MarkRunning(ctx context.Context, id, asyncTaskID string) error {
	startedAt := s.now().Format(timeLayout)

	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows
		 SET status = ?, started_at = ?,
		     async_task_id = CASE WHEN ? != '' THEN ? ELSE async_task_id END
		 WHERE id = ? AND status = ?`,
		string(workflow.StatusRunning), startedAt,
		asyncTaskID, asyncTaskID,
		id, string(workflow.StatusPending))
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return s.checkTransition(ctx, res, id, "mark running")
}

// ReportProgress persists the most recent progress beacon. Permitted only
// while the record is RUNNING; percent is clamped into [0,100] and the
// message truncated before persistence. Replaying the same beacon yields
// the same record state.
func (s *Store) ReportProgress(ctx context.Context, id, message string, percent int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET progress_message = ?, progress_percent = ?
		 WHERE id = ? AND status = ?`,
		workflow.TruncateProgressMessage(message), workflow.ClampPercent(percent),
		id, string(workflow.StatusRunning))
	if err != nil {
		return fmt.Errorf("report progress: %w", err)
	}
	return s.checkTransition(ctx, res, id, "report progress")
}

// MarkCompleted transitions RUNNING->COMPLETED: stamps completed_at, records
// the terminal branch name, pins progress to ("completed", 100), and merges
// the provided metadata into the record's metadata map. A second application
// to an already-terminal record is a no-op.
func (s *Store) MarkCompleted(ctx context.Context, id, branchName string, metadata map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark completed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status, existing, err := readStatusAndMetadata(ctx, tx, id)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return nil // idempotent under re-delivery
	}
	if status != workflow.StatusRunning {
		return fmt.Errorf("mark completed %s: %w: record is %s", id, workflow.ErrInvalidTransition, status)
	}

	merged := mergeMetadata(existing, metadata)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	completedAt := s.now().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`UPDATE workflows
		 SET status = ?, completed_at = ?, branch_name = ?,
		     progress_message = 'completed', progress_percent = 100, metadata = ?
		 WHERE id = ? AND status = ?`,
		string(workflow.StatusCompleted), completedAt, branchName, string(mergedJSON),
		id, string(workflow.StatusRunning)); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark completed: %w", err)
	}
	return nil
}

// MarkFailed transitions RUNNING->FAILED, or defensively PENDING->FAILED
// when an async task could not start work. Stamps completed_at (and
// started_at if the record never ran), records the error message, and pins
// progress to ("failed", 100). No-op on already-terminal records.
func (s *Store) MarkFailed(ctx context.Context, id, errorMessage string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status, _, err := readStatusAndMetadata(ctx, tx, id)
	if err != nil {
		return err
	}
	if status.Terminal() {
		return nil // idempotent under re-delivery
	}

	next, err := workflow.Transition(status, workflow.EventFail)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}

	completedAt := s.now().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`UPDATE workflows
		 SET status = ?, completed_at = ?, error_message = ?,
		     started_at = COALESCE(started_at, ?),
		     progress_message = 'failed', progress_percent = 100
		 WHERE id = ? AND status = ?`,
		string(next), completedAt, errorMessage, completedAt,
		id, string(status)); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark failed: %w", err)
	}
	return nil
}

// Get loads a workflow record by id.
func (s *Store) Get(ctx context.Context, id string) (*workflow.Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM workflows WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get %s: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

// List returns records ordered by created_at descending, optionally filtered
// by status, plus the total count matching the filter. The caller validates
// limit against its configured maximum; the store requires limit > 0 and
// offset >= 0.
func (s *Store) List(ctx context.Context, status workflow.Status, limit, offset int) ([]*workflow.Record, int, error) {
	if limit <= 0 {
		return nil, 0, fmt.Errorf("list: %w: limit must be positive", workflow.ErrInvalidInput)
	}
	if offset < 0 {
		return nil, 0, fmt.Errorf("list: %w: offset must not be negative", workflow.ErrInvalidInput)
	}

	where := ""
	args := []any{}
	if status != "" {
		if !status.Valid() {
			return nil, 0, fmt.Errorf("list: %w: unknown status %q", workflow.ErrInvalidInput, status)
		}
		where = " WHERE status = ?"
		args = append(args, string(status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflows"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count workflows: %w", err)
	}

	query := selectColumns + " FROM workflows" + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*workflow.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan workflow row: %w", err)
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

const selectColumns = `SELECT id, type, prompts, strategy, status, started_at, completed_at,
	branch_name, error_message, async_task_id, progress_message, progress_percent,
	metadata, created_at`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*workflow.Record, error) {
	var (
		rec          workflow.Record
		promptsJSON  string
		metadataJSON string
		status       string
		startedAt    sql.NullString
		completedAt  sql.NullString
		createdAt    string
	)
	if err := row.Scan(&rec.ID, &rec.Type, &promptsJSON, &rec.Strategy, &status,
		&startedAt, &completedAt, &rec.BranchName, &rec.ErrorMessage, &rec.AsyncTaskID,
		&rec.ProgressMessage, &rec.ProgressPercent, &metadataJSON, &createdAt); err != nil {
		return nil, err
	}

	rec.Status = workflow.Status(status)
	if err := json.Unmarshal([]byte(promptsJSON), &rec.Prompts); err != nil {
		return nil, fmt.Errorf("unmarshal prompts: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	var err error
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if startedAt.Valid {
		t, err := time.Parse(timeLayout, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		rec.StartedAt = &t
	}
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// checkTransition classifies a zero-rows-affected lifecycle update as either
// a missing record or an illegal transition.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM workflows WHERE id = ?", id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s %s: %w", op, id, workflow.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return fmt.Errorf("%s %s: %w: record is %s", op, id, workflow.ErrInvalidTransition, status)
}

// readStatusAndMetadata loads the status and metadata map of a record inside
// a transaction, for terminal writes that merge metadata.
func readStatusAndMetadata(ctx context.Context, tx *sql.Tx, id string) (workflow.Status, map[string]any, error) {
	var status, metadataJSON string
	err := tx.QueryRowContext(ctx, "SELECT status, metadata FROM workflows WHERE id = ?", id).Scan(&status, &metadataJSON)
	if err == sql.ErrNoRows {
		return "", nil, fmt.Errorf("load %s: %w", id, workflow.ErrNotFound)
	}
	if err != nil {
		return "", nil, fmt.Errorf("load %s: %w", id, err)
	}

	var metadata map[string]any
	if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
		return "", nil, fmt.Errorf("unmarshal metadata for %s: %w", id, err)
	}
	return workflow.Status(status), metadata, nil
}

// mergeMetadata merges updates into existing without mutating either map.
func mergeMetadata(existing, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}
