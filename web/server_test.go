// ABOUTME: HTTP surface tests driving the full dispatch-store-pipeline stack through httptest.
// ABOUTME: Covers dispatch responses, status lookup, list filtering, pagination bounds, and health.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/quillworks/scrivener/clients"
	"github.com/quillworks/scrivener/dispatch"
	"github.com/quillworks/scrivener/pipeline"
	"github.com/quillworks/scrivener/workflow/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	registry, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })

	reg := pipeline.DefaultNodeRegistry(
		&clients.MockLLMClient{Response: "A Test Topic"},
		&clients.MockResearchClient{},
		&clients.MockDraftBranchClient{},
	)
	dispatcher := dispatch.New(dispatch.Config{
		Registry: registry,
		Executor: pipeline.NewExecutor(reg, nil),
		Vault:    &clients.StaticVaultClient{Text: "vault"},
	})

	srv := NewServer(ServerConfig{
		Dispatcher:  dispatcher,
		Registry:    registry,
		MaxPageSize: 100,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, registry
}

func postRun(t *testing.T, ts *httptest.Server, wfType string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.URL+"/workflows/"+wfType+"/run", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestRunEndpointSyncSuccess(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := postRun(t, ts, "article-proposal", map[string]any{
		"prompts": []string{"write about indexes"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %v", resp.StatusCode, body)
	}
	if body["status"] != "COMPLETED" {
		t.Errorf("status = %v: %v", body["status"], body["message"])
	}
	if body["id"] == "" || body["id"] == nil {
		t.Error("no workflow id in response")
	}
}

func TestRunEndpointSyncFailureStill201(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := postRun(t, ts, "article-proposal", map[string]any{
		"prompts": []string{"please fail intentionally"},
	})
	// The record was created; its FAILED outcome is in the body.
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if body["status"] != "FAILED" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestRunEndpointValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		wfType string
		body   any
	}{
		{"unknown type", "no-such-type", map[string]any{"prompts": []string{"p"}}},
		{"empty prompts", "article-proposal", map[string]any{"prompts": []string{}}},
		{"blank prompt", "article-proposal", map[string]any{"prompts": []string{"  "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postRun(t, ts, tt.wfType, tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %v", resp.StatusCode, body)
			}
			if body["error"] == nil {
				t.Error("no error field in response")
			}
		})
	}
}

func TestRunEndpointMalformedBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/workflows/article-proposal/run", "application/json",
		bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetWorkflow(t *testing.T) {
	ts, _ := newTestServer(t)

	_, created := postRun(t, ts, "article-proposal", map[string]any{
		"prompts": []string{"write about sqlite"},
	})
	id := created["id"].(string)

	resp, body := getJSON(t, ts.URL+"/workflows/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["id"] != id {
		t.Errorf("id = %v", body["id"])
	}
	if body["status"] != "COMPLETED" {
		t.Errorf("status = %v", body["status"])
	}
	if body["started_at"] == nil || body["completed_at"] == nil {
		t.Error("terminal record missing timestamps")
	}
	if body["progress_percent"] != float64(100) {
		t.Errorf("progress_percent = %v", body["progress_percent"])
	}
	if body["branch_name"] == nil || body["branch_name"] == "" {
		t.Error("no branch_name")
	}
	meta, ok := body["metadata"].(map[string]any)
	if !ok || meta["total_changes"] == nil {
		t.Errorf("metadata = %v", body["metadata"])
	}
	// The record's string fields are always present on the wire, empty or not.
	for _, key := range []string{"error_message", "branch_name", "async_task_id"} {
		if _, present := body[key]; !present {
			t.Errorf("%s missing from response", key)
		}
	}
	if body["error_message"] != "" {
		t.Errorf("error_message = %v on a COMPLETED record", body["error_message"])
	}
	if body["async_task_id"] != "" {
		t.Errorf("async_task_id = %v on a sync record", body["async_task_id"])
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := getJSON(t, ts.URL+"/workflows/does-not-exist")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if body["error"] == nil {
		t.Error("no error field")
	}
}

func TestListWorkflows(t *testing.T) {
	ts, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		postRun(t, ts, "article-proposal", map[string]any{
			"prompts": []string{fmt.Sprintf("topic %d", i)},
		})
	}
	postRun(t, ts, "article-proposal", map[string]any{
		"prompts": []string{"please fail intentionally"},
	})

	resp, body := getJSON(t, ts.URL+"/workflows?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["total_count"] != float64(4) {
		t.Errorf("total_count = %v", body["total_count"])
	}
	workflows := body["workflows"].([]any)
	if len(workflows) != 2 {
		t.Errorf("page size = %d", len(workflows))
	}
	if body["limit"] != float64(2) || body["offset"] != float64(0) {
		t.Errorf("echo: limit=%v offset=%v", body["limit"], body["offset"])
	}

	// Status filter narrows both the page and the total.
	resp, body = getJSON(t, ts.URL+"/workflows?status=FAILED")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["total_count"] != float64(1) {
		t.Errorf("FAILED total_count = %v", body["total_count"])
	}

	// Offset past the end returns an empty page, not an error.
	resp, body = getJSON(t, ts.URL+"/workflows?offset=50")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(body["workflows"].([]any)) != 0 {
		t.Errorf("past-end page = %v", body["workflows"])
	}
}

func TestListWorkflowsValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, query := range []string{
		"?status=BOGUS",
		"?limit=0",
		"?limit=-1",
		"?limit=abc",
		"?limit=101", // above MaxPageSize
		"?offset=-1",
	} {
		resp, _ := getJSON(t, ts.URL+"/workflows"+query)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", query, resp.StatusCode)
		}
	}

	// The maximum itself is accepted; only values above it are rejected.
	resp, body := getJSON(t, ts.URL+"/workflows?limit=100")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("limit=100: status = %d, want 200", resp.StatusCode)
	}
	if body["limit"] != float64(100) {
		t.Errorf("limit echo = %v", body["limit"])
	}
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := getJSON(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestAsyncRunReturnsRunning(t *testing.T) {
	registry, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = registry.Close() })

	reg := pipeline.DefaultNodeRegistry(
		&clients.MockLLMClient{}, &clients.MockResearchClient{}, &clients.MockDraftBranchClient{},
	)
	dispatcher := dispatch.New(dispatch.Config{
		Registry: registry,
		Executor: pipeline.NewExecutor(reg, nil),
		Queue:    stubEnqueuer{},
	})
	srv := NewServer(ServerConfig{Dispatcher: dispatcher, Registry: registry})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, body := postRun(t, ts, "article-proposal", map[string]any{
		"prompts":         []string{"write about nats"},
		"async_execution": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if body["status"] != "RUNNING" {
		t.Errorf("status = %v", body["status"])
	}
	if body["async_task_id"] == nil || body["async_task_id"] == "" {
		t.Error("no async_task_id")
	}
}

type stubEnqueuer struct{}

func (stubEnqueuer) Enqueue(ctx context.Context, workflowID string) (string, error) {
	return "task-stub", nil
}
