package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"myhelper/internal/catalog"
	"myhelper/internal/failure"
	"myhelper/internal/mission"
	"myhelper/internal/queue"
	"myhelper/internal/store"
	"myhelper/internal/supervisor"
	"myhelper/internal/worker"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestServer(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return newServerWith(t, s, nil), s
}

func newServerWith(t *testing.T, s store.Store, workers Workers) *gin.Engine {
	t.Helper()
	cat, err := catalog.New([]catalog.Tool{{
		ID:      "echo_tool",
		Kind:    catalog.KindCommand,
		Command: &catalog.CommandSpec{Argv: []string{"echo", "hi"}},
	}}, []catalog.Task{{ID: "daily", Name: "Daily report", Tools: []string{"echo_tool"}}})
	if err != nil {
		t.Fatal(err)
	}
	svc := supervisor.NewService(s, queue.New(s, time.Second, nil), cat, nil)
	return New(svc, workers, nil)
}

var errRefused = errors.New("dial tcp: connection refused")

// downStore fails every read as an unreachable backend would.
type downStore struct{ store.Store }

func (downStore) Get(_ context.Context, kind, id string, _ any) error {
	return failure.Wrap(failure.KindStorage, errRefused, "get %s/%s", kind, id)
}

func (downStore) List(_ context.Context, kind string) ([]string, error) {
	return nil, failure.Wrap(failure.KindStorage, errRefused, "list %s", kind)
}

type fixedWorkers []worker.State

func (w fixedWorkers) States() []worker.State { return w }

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad json %q", method, path, rec.Body.String())
		}
	}
	return rec.Code, out
}

func TestTriggerAndQuery(t *testing.T) {
	h, _ := newTestServer(t)

	code, body := do(t, h, http.MethodPost, "/api/v1/hooks/daily", `{"trigger_context":{"branch":"main"}}`)
	if code != http.StatusAccepted || body["status"] != "queued" {
		t.Fatalf("trigger = %d %v", code, body)
	}
	id, _ := body["report_id"].(string)
	if id == "" {
		t.Fatalf("no report_id in %v", body)
	}

	code, body = do(t, h, http.MethodGet, "/api/v1/reports/"+id, "")
	if code != http.StatusOK || body["status"] != "queued" || body["task_id"] != "daily" {
		t.Errorf("report = %d %v", code, body)
	}
	if tc, _ := body["trigger_context"].(map[string]any); tc["branch"] != "main" {
		t.Errorf("trigger_context = %v", body["trigger_context"])
	}

	code, body = do(t, h, http.MethodGet, "/api/v1/reports/"+id+"/status", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if p, _ := body["progress"].(map[string]any); p == nil || p["total_steps"] != float64(0) {
		t.Errorf("progress = %v", body["progress"])
	}

	code, body = do(t, h, http.MethodGet, "/api/v1/reports/"+id+"/logs", "")
	if code != http.StatusOK || body["execution_log"] == nil {
		t.Errorf("logs = %d %v", code, body)
	}

	code, body = do(t, h, http.MethodGet, "/api/v1/queue", "")
	if code != http.StatusOK || body["pending"] != float64(1) {
		t.Errorf("queue = %d %v", code, body)
	}
}

func TestTriggerWithoutBody(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := do(t, h, http.MethodPost, "/api/v1/hooks/daily", "")
	if code != http.StatusAccepted {
		t.Fatalf("trigger = %d %v", code, body)
	}
}

func TestErrorResponses(t *testing.T) {
	h, _ := newTestServer(t)
	testCases := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantKind string
	}{
		{name: "unknown task", method: http.MethodPost, path: "/api/v1/hooks/nope", wantCode: http.StatusNotFound, wantKind: "not_found"},
		{name: "malformed body", method: http.MethodPost, path: "/api/v1/hooks/daily", body: `{"trigger_context":`, wantCode: http.StatusBadRequest, wantKind: "validation"},
		{name: "unknown report", method: http.MethodGet, path: "/api/v1/reports/missing", wantCode: http.StatusNotFound, wantKind: "not_found"},
		{name: "invalid report id", method: http.MethodGet, path: "/api/v1/reports/bad$id/status", wantCode: http.StatusBadRequest, wantKind: "validation"},
		{name: "bad status filter", method: http.MethodGet, path: "/api/v1/reports?status=paused", wantCode: http.StatusBadRequest, wantKind: "validation"},
		{name: "bad limit", method: http.MethodGet, path: "/api/v1/reports?limit=ten", wantCode: http.StatusBadRequest, wantKind: "validation"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, h, tc.method, tc.path, tc.body)
			if code != tc.wantCode || body["error"] != tc.wantKind {
				t.Errorf("%s %s = %d %v, want %d %s", tc.method, tc.path, code, body, tc.wantCode, tc.wantKind)
			}
		})
	}
}

func TestValidateHook(t *testing.T) {
	h, _ := newTestServer(t)
	code, body := do(t, h, http.MethodPost, "/api/v1/hooks/daily/validate", `{"trigger_context":{"env":"prod"}}`)
	if code != http.StatusOK || body["valid"] != true || body["task_name"] != "Daily report" {
		t.Errorf("validate = %d %v", code, body)
	}
	code, body = do(t, h, http.MethodPost, "/api/v1/hooks/nope/validate", "")
	if code != http.StatusNotFound || body["valid"] != false {
		t.Errorf("validate unknown = %d %v", code, body)
	}
	_, queued := do(t, h, http.MethodGet, "/api/v1/queue", "")
	if queued["pending"] != float64(0) {
		t.Errorf("validate created a mission: %v", queued)
	}
}

func TestListReports(t *testing.T) {
	h, s := newTestServer(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []mission.Status{mission.StatusCompleted, mission.StatusFailed, mission.StatusCompleted} {
		m := mission.New("daily", nil, base.Add(time.Duration(i)*time.Minute))
		m.ID = []string{"r1", "r2", "r3"}[i]
		m.Status = status
		if err := s.Put(context.Background(), store.KindMission, m.ID, m); err != nil {
			t.Fatal(err)
		}
	}

	code, body := do(t, h, http.MethodGet, "/api/v1/reports?status=completed&limit=1", "")
	if code != http.StatusOK {
		t.Fatalf("list = %d %v", code, body)
	}
	reports, _ := body["reports"].([]any)
	if len(reports) != 1 || body["total_count"] != float64(2) {
		t.Fatalf("reports = %v total = %v", reports, body["total_count"])
	}
	if first, _ := reports[0].(map[string]any); first["report_id"] != "r3" {
		t.Errorf("first report = %v, want newest r3", first)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)
	if code, body := do(t, h, http.MethodGet, "/healthz", ""); code != http.StatusOK || body["status"] != "ok" || body["queue_depth"] != float64(0) {
		t.Errorf("healthz = %d %v", code, body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "myhelper_queue_depth") {
		t.Errorf("metrics = %d, missing myhelper collectors", rec.Code)
	}
}

func TestHealthReportsQueueDepthAndStore(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	up := newServerWith(t, fs, nil)
	for range 2 {
		if code, body := do(t, up, http.MethodPost, "/api/v1/hooks/daily", ""); code != http.StatusAccepted {
			t.Fatalf("trigger = %d %v", code, body)
		}
	}
	testCases := []struct {
		name       string
		handler    http.Handler
		wantCode   int
		wantStatus string
		wantStore  string
	}{
		{name: "reachable", handler: up, wantCode: http.StatusOK, wantStatus: "ok", wantStore: "ok"},
		{name: "unreachable", handler: newServerWith(t, downStore{fs}, nil), wantCode: http.StatusServiceUnavailable, wantStatus: "unavailable", wantStore: "unreachable"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, tc.handler, http.MethodGet, "/healthz", "")
			if code != tc.wantCode || body["status"] != tc.wantStatus || body["store"] != tc.wantStore {
				t.Errorf("healthz = %d %v", code, body)
			}
			if tc.wantCode == http.StatusOK && body["queue_depth"] != float64(2) {
				t.Errorf("queue_depth = %v, want 2", body["queue_depth"])
			}
		})
	}
}

func TestStats(t *testing.T) {
	h, s := newTestServer(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		id     string
		task   string
		status mission.Status
	}{
		{"r1", "daily", mission.StatusCompleted},
		{"r2", "daily", mission.StatusFailed},
		{"r3", "weekly", mission.StatusCompleted},
	}
	for i, r := range seed {
		m := mission.New(r.task, nil, base.Add(time.Duration(i)*time.Minute))
		m.ID = r.id
		m.Status = r.status
		if err := s.Put(context.Background(), store.KindMission, m.ID, m); err != nil {
			t.Fatal(err)
		}
	}
	if code, body := do(t, h, http.MethodPost, "/api/v1/hooks/daily", ""); code != http.StatusAccepted {
		t.Fatalf("trigger = %d %v", code, body)
	}

	code, body := do(t, h, http.MethodGet, "/api/v1/stats", "")
	if code != http.StatusOK || body["total"] != float64(4) || body["pending"] != float64(1) {
		t.Fatalf("stats = %d %v", code, body)
	}
	byStatus, _ := body["by_status"].(map[string]any)
	if byStatus["completed"] != float64(2) || byStatus["failed"] != float64(1) || byStatus["queued"] != float64(1) {
		t.Errorf("by_status = %v", byStatus)
	}
	byTask, _ := body["by_task"].(map[string]any)
	if byTask["daily"] != float64(3) || byTask["weekly"] != float64(1) {
		t.Errorf("by_task = %v", byTask)
	}

	down := newServerWith(t, downStore{s}, nil)
	if code, body := do(t, down, http.MethodGet, "/api/v1/stats", ""); code != http.StatusInternalServerError || body["error"] != "storage" {
		t.Errorf("stats on a down store = %d %v", code, body)
	}
}

func TestWorkers(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testCases := []struct {
		name      string
		workers   Workers
		wantCount float64
		wantBusy  float64
	}{
		{name: "no pool", wantCount: 0, wantBusy: 0},
		{
			name:      "one busy of two",
			workers:   fixedWorkers{{ID: "worker-a-0", MissionID: "m-1"}, {ID: "worker-a-1"}},
			wantCount: 2,
			wantBusy:  1,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := do(t, newServerWith(t, s, tc.workers), http.MethodGet, "/api/v1/workers", "")
			if code != http.StatusOK || body["count"] != tc.wantCount || body["busy"] != tc.wantBusy {
				t.Fatalf("workers = %d %v", code, body)
			}
			list, _ := body["workers"].([]any)
			if len(list) != int(tc.wantCount) {
				t.Errorf("workers list = %v", list)
			}
			if len(list) > 0 {
				if first, _ := list[0].(map[string]any); first["worker_id"] != "worker-a-0" || first["mission_id"] != "m-1" {
					t.Errorf("first worker = %v", first)
				}
			}
		})
	}
}
