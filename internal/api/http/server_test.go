package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdesk/agentdesk/internal/app"
	"github.com/agentdesk/agentdesk/internal/application/executor"
	"github.com/agentdesk/agentdesk/internal/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{
		StoreDriver:     config.StoreMemory,
		DispatchTimeout: 5 * time.Second,
		DispatchBatch:   1,
		ContentDir:      t.TempDir(),
		OTelServiceName: "agentdesk-test",
	}
	a, err := app.New(context.Background(), cfg, app.MemoryStores(), executor.Ports{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	srv := httptest.NewServer(NewServer(a.Tasks, a.Dispatcher, a.Workflows, a.Activity, a.Hub, zerolog.Nop()).Router())
	t.Cleanup(func() {
		srv.Close()
		_ = a.Close(context.Background())
	})
	return srv
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, created := doJSON(t, http.MethodPost, srv.URL+"/v1/tasks", map[string]string{"title": "Research competitor pricing"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "PENDING", created["status"])
	assert.Equal(t, "researcher", created["assignedAgent"])
	assert.Equal(t, "research", created["routedBy"])
	assert.Equal(t, "MEDIUM", created["priority"])
	id := created["id"].(string)

	resp, counts := doJSON(t, http.MethodGet, srv.URL+"/v1/tasks/counts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), counts["pending"])

	resp, dispatched := doJSON(t, http.MethodPost, srv.URL+"/v1/dispatch", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcome := dispatched["outcome"].(map[string]interface{})
	assert.Equal(t, true, outcome["found"])
	assert.Equal(t, true, outcome["success"])
	assert.Equal(t, id, outcome["taskId"])
	assert.Equal(t, float64(1), dispatched["counts"].(map[string]interface{})["completed"])

	resp, got := doJSON(t, http.MethodGet, srv.URL+"/v1/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "COMPLETED", got["status"])
	assert.NotNil(t, got["result"])
	assert.NotNil(t, got["completedAt"])

	resp, dispatched = doJSON(t, http.MethodPost, srv.URL+"/v1/dispatch", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, dispatched["outcome"].(map[string]interface{})["found"])

	resp, problem := doJSON(t, http.MethodPost, srv.URL+"/v1/tasks/"+id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_state", problem["type"])

	resp, list := doJSON(t, http.MethodGet, srv.URL+"/v1/tasks?status=COMPLETED", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list["tasks"], 1)

	resp, activity := doJSON(t, http.MethodGet, srv.URL+"/v1/activity", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := activity["activity"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "task.completed", entries[0].(map[string]interface{})["kind"])
}

func TestFailedTaskRetryOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp, created := doJSON(t, http.MethodPost, srv.URL+"/v1/tasks", map[string]string{"title": "Do a thing", "assignedAgent": "nobody"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Nil(t, created["routedBy"])
	id := created["id"].(string)

	_, dispatched := doJSON(t, http.MethodPost, srv.URL+"/v1/dispatch", nil)
	outcome := dispatched["outcome"].(map[string]interface{})
	assert.Equal(t, false, outcome["success"])
	assert.NotEmpty(t, outcome["error"])

	resp, retried := doJSON(t, http.MethodPost, srv.URL+"/v1/tasks/"+id+"/retry", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PENDING", retried["status"])
	assert.Nil(t, retried["error"])
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"empty title", http.MethodPost, "/v1/tasks", map[string]string{"title": "   "}, http.StatusBadRequest, "validation_error"},
		{"unknown field", http.MethodPost, "/v1/tasks", `{"title":"x","bogus":1}`, http.StatusBadRequest, "validation_error"},
		{"bad priority", http.MethodPost, "/v1/tasks", map[string]string{"title": "x", "priority": "URGENT"}, http.StatusBadRequest, "validation_error"},
		{"bad task id", http.MethodGet, "/v1/tasks/not-a-uuid", nil, http.StatusBadRequest, "validation_error"},
		{"bad status filter", http.MethodGet, "/v1/tasks?status=DONE", nil, http.StatusBadRequest, "validation_error"},
		{"missing task", http.MethodGet, "/v1/tasks/" + uuid.NewString(), nil, http.StatusNotFound, "task_not_found"},
		{"missing workflow", http.MethodGet, "/v1/workflows/" + uuid.NewString(), nil, http.StatusNotFound, "workflow_not_found"},
		{"run missing workflow", http.MethodPost, "/v1/workflows/" + uuid.NewString() + "/run", nil, http.StatusNotFound, "workflow_not_found"},
		{"no trigger", http.MethodPost, "/v1/workflows", `{"name":"x","nodes":[{"id":"a","type":"action"}]}`, http.StatusUnprocessableEntity, "no_trigger_node"},
		{"malformed workflow", http.MethodPost, "/v1/workflows", `{`, http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, problem := doJSON(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
			assert.Equal(t, tt.kind, problem["type"])
			assert.Equal(t, float64(tt.status), problem["status"])
		})
	}
}

func TestWorkflowRunOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	def := `{
		"name": "content pipeline",
		"nodes": [
			{"id": "start", "type": "trigger"},
			{"id": "draft", "type": "agent", "config": {"agentId": "writer", "title": "Draft launch post"}},
			{"id": "check", "type": "condition", "config": {"predicate": "[nodes.draft.success] == true"}},
			{"id": "ship", "type": "action", "config": {"action": "log:shipped"}},
			{"id": "alert", "type": "action", "config": {"action": "log:failed"}}
		],
		"edges": [
			{"from": "start", "to": "draft"},
			{"from": "draft", "to": "check"},
			{"from": "check", "to": "ship", "branch": "true"},
			{"from": "check", "to": "alert", "branch": "false"}
		]
	}`
	resp, created := doJSON(t, http.MethodPost, srv.URL+"/v1/workflows", def)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)

	resp, run := doJSON(t, http.MethodPost, srv.URL+"/v1/workflows/"+id+"/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := run["nodeResults"].([]interface{})
	var visited []string
	for _, r := range results {
		visited = append(visited, r.(map[string]interface{})["nodeId"].(string))
	}
	assert.Equal(t, []string{"start", "draft", "check", "ship"}, visited)

	resp, got := doJSON(t, http.MethodGet, srv.URL+"/v1/workflows/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, got["lastRunAt"])

	resp, list := doJSON(t, http.MethodGet, srv.URL+"/v1/workflows", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list["workflows"], 1)
}

func TestAgentsAndHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, agents := doJSON(t, http.MethodGet, srv.URL+"/v1/agents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, agents["agents"], 5)

	resp, health := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
}

func TestActivityStream(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/activity/stream?kinds=task.completed", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	select {
	case l := <-lines:
		require.True(t, strings.HasPrefix(l, ": connected"), l)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not open")
	}

	doJSON(t, http.MethodPost, srv.URL+"/v1/tasks", map[string]string{"title": "Write a blog post"})
	doJSON(t, http.MethodPost, srv.URL+"/v1/dispatch", nil)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case l, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if l == "event: task.completed" {
				return
			}
		case <-deadline:
			t.Fatal("no task.completed event received")
		}
	}
}
