package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tealfork/tickline-core/internal/engine"
	"github.com/tealfork/tickline-core/internal/infrastructure/config"
	"github.com/tealfork/tickline-core/internal/infrastructure/logging"
	"github.com/tealfork/tickline-core/internal/rpc"
)

// testTickInterval keeps engine tests fast without busy-waiting.
const testTickInterval = 2 * time.Millisecond

// testHarness bundles the server with the live components behind it.
type testHarness struct {
	srv    *Server
	engine *engine.Engine
	store  *engine.Store
	repo   *engine.SQLiteRepository
}

// testServer creates a Server wired to a real engine, call table, and
// in-memory SQLite run history.
func testServer(t *testing.T) *testHarness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db := setupTestDB(t)
	repo := engine.NewSQLiteRepository(db)
	store := engine.NewStore()

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	wsCfg := config.WebSocketConfig{
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}

	hub := NewHub(wsCfg, log)
	go hub.Run(ctx)

	loop := engine.NewLoop(testTickInterval)
	eng := engine.New(loop, repo, hub, nil, log)

	// heartbeat: short delay, runs to completion quickly.
	if err := eng.Register(&engine.Script{
		Name: "heartbeat",
		Mode: engine.ModeParallel,
		Root: engine.Sequence("heartbeat",
			engine.Delay("pause", 5*time.Millisecond),
		),
	}); err != nil {
		t.Fatalf("Register(heartbeat): %v", err)
	}

	// hold: parks until the release flag is set; single mode so a second
	// invocation is refused while the first is parked.
	if err := eng.Register(&engine.Script{
		Name: "hold",
		Mode: engine.ModeSingle,
		Root: engine.Sequence("hold",
			engine.WaitUntil("wait-release", engine.FlagSet(store, "release"), 5*time.Second),
		),
	}); err != nil {
		t.Fatalf("Register(hold): %v", err)
	}

	if err := eng.Start(ctx, nil); err != nil {
		t.Fatalf("engine Start: %v", err)
	}

	registry := rpc.NewRegistry()
	if err := registry.Register(&rpc.Action{
		Name:     "echo",
		Args:     []rpc.Arg{{Name: "text", Type: rpc.TypeString}},
		Response: rpc.ResponseOptional,
		Handler: func(_ context.Context, call *rpc.Call) {
			result := rpc.Result{Success: true}
			if call.ReturnResponse() {
				result.Payload = map[string]any{"text": call.Args()["text"]}
			}
			//nolint:errcheck // test handler; late responses surface as timeouts
			call.Respond(result)
		},
	}); err != nil {
		t.Fatalf("Register(echo): %v", err)
	}
	if err := registry.Register(&rpc.Action{
		Name:     "stuck",
		Response: rpc.ResponseStatus,
		Handler:  func(_ context.Context, _ *rpc.Call) {},
	}); err != nil {
		t.Fatalf("Register(stuck): %v", err)
	}

	table := rpc.NewTable(registry, 100*time.Millisecond, hub, log)
	table.Start(ctx)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS:          wsCfg,
		Logger:      log,
		Engine:      eng,
		State:       store,
		Actions:     table,
		Registry:    registry,
		Runs:        repo,
		ExternalHub: hub,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testHarness{srv: srv, engine: eng, store: store, repo: repo}
}

// setupTestDB creates an in-memory SQLite database with the run history schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE script_runs (
			id           TEXT PRIMARY KEY,
			script       TEXT NOT NULL,
			trigger_type TEXT NOT NULL,
			args         TEXT,
			status       TEXT NOT NULL,
			started_at   TEXT NOT NULL,
			completed_at TEXT,
			duration_ms  INTEGER,
			error        TEXT
		);
		CREATE INDEX idx_script_runs_script ON script_runs(script, started_at DESC);
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// doJSON performs a request against the router and decodes the JSON response.
func doJSON(t *testing.T, router http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal %s %s response: %v (body %q)", method, path, err, w.Body.String())
		}
	}
	return w.Code, resp
}

// waitForRunCount polls the repository until the script has n persisted
// terminal runs or the deadline passes.
func (h *testHarness) waitForRunCount(t *testing.T, script string, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runs, err := h.repo.ListRuns(context.Background(), script, 50)
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		terminal := 0
		for _, r := range runs {
			if r.Status != "running" {
				terminal++
			}
		}
		if terminal >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("script %q never reached %d terminal runs", script, n)
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, resp := doJSON(t, router, http.MethodGet, "/api/v1/health", "")
	if code != http.StatusOK {
		t.Errorf("health status = %d, want %d", code, http.StatusOK)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

// ─── Script Endpoint Tests ─────────────────────────────────────────

func TestListScripts(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, resp := doJSON(t, router, http.MethodGet, "/api/v1/scripts/", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}

	names := make(map[string]bool)
	for _, raw := range resp["scripts"].([]any) {
		sc := raw.(map[string]any)
		names[sc["name"].(string)] = true
	}
	if !names["heartbeat"] || !names["hold"] {
		t.Errorf("scripts = %v, want heartbeat and hold", names)
	}
}

func TestExecuteScript(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/scripts/heartbeat/execute", `{"args":{"count":3}}`)
	if code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (resp %v)", code, http.StatusAccepted, resp)
	}
	if resp["status"] != "started" {
		t.Errorf("status = %v, want started", resp["status"])
	}
	if resp["run_id"] == "" || resp["run_id"] == nil {
		t.Error("expected run_id in response")
	}

	h.waitForRunCount(t, "heartbeat", 1)
}

func TestExecuteScript_NotFound(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/scripts/missing/execute", "")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", code, http.StatusNotFound)
	}
}

func TestExecuteScript_SingleModeConflict(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/scripts/hold/execute", "")
	if code != http.StatusAccepted {
		t.Fatalf("first execute status = %d, want %d", code, http.StatusAccepted)
	}

	code, _ = doJSON(t, router, http.MethodPost, "/api/v1/scripts/hold/execute", "")
	if code != http.StatusConflict {
		t.Errorf("re-entry status = %d, want %d", code, http.StatusConflict)
	}

	// Release the parked run so the engine settles before teardown.
	h.store.Set("release", true)
	h.waitForRunCount(t, "hold", 1)
}

func TestStopScript(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/scripts/hold/execute", "")
	if code != http.StatusAccepted {
		t.Fatalf("execute status = %d", code)
	}

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/scripts/hold/stop", "")
	if code != http.StatusOK {
		t.Fatalf("stop status = %d, want %d", code, http.StatusOK)
	}
	if resp["status"] != "stopped" {
		t.Errorf("status = %v, want stopped", resp["status"])
	}

	h.waitForRunCount(t, "hold", 1)

	runs, err := h.repo.ListRuns(context.Background(), "hold", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) == 0 || runs[0].Status != "cancelled" {
		t.Errorf("expected cancelled run, got %+v", runs)
	}
}

func TestStopScript_NotFound(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/scripts/missing/stop", "")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", code, http.StatusNotFound)
	}
}

func TestListScriptRuns(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	doJSON(t, router, http.MethodPost, "/api/v1/scripts/heartbeat/execute", "")
	h.waitForRunCount(t, "heartbeat", 1)

	code, resp := doJSON(t, router, http.MethodGet, "/api/v1/scripts/heartbeat/runs", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if resp["count"].(float64) < 1 {
		t.Errorf("count = %v, want >= 1", resp["count"])
	}

	run := resp["runs"].([]any)[0].(map[string]any)
	if run["script"] != "heartbeat" {
		t.Errorf("script = %v, want heartbeat", run["script"])
	}
	if run["trigger_type"] != "api" {
		t.Errorf("trigger_type = %v, want api", run["trigger_type"])
	}
}

func TestListRuns_InvalidLimit(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodGet, "/api/v1/runs/?limit=bogus", "")
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", code, http.StatusBadRequest)
	}
}

func TestActiveRuns(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	doJSON(t, router, http.MethodPost, "/api/v1/scripts/hold/execute", "")

	code, resp := doJSON(t, router, http.MethodGet, "/api/v1/runs/active", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if resp["count"].(float64) < 1 {
		t.Fatalf("count = %v, want >= 1", resp["count"])
	}

	run := resp["runs"].([]any)[0].(map[string]any)
	if run["script"] != "hold" {
		t.Errorf("script = %v, want hold", run["script"])
	}

	h.store.Set("release", true)
	h.waitForRunCount(t, "hold", 1)
}

func TestPruneRuns(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	doJSON(t, router, http.MethodPost, "/api/v1/scripts/heartbeat/execute", "")
	h.waitForRunCount(t, "heartbeat", 1)

	// A future cutoff removes everything recorded so far.
	cutoff := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/runs/prune",
		fmt.Sprintf(`{"before":%q}`, cutoff))
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d (resp %v)", code, http.StatusOK, resp)
	}
	if resp["deleted"].(float64) < 1 {
		t.Errorf("deleted = %v, want >= 1", resp["deleted"])
	}
}

func TestPruneRuns_BadRequest(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	tests := []struct {
		name string
		body string
	}{
		{"empty", `{}`},
		{"both", `{"before":"2026-01-01T00:00:00Z","retain_hours":24}`},
		{"bad timestamp", `{"before":"yesterday"}`},
		{"negative hours", `{"retain_hours":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := doJSON(t, router, http.MethodPost, "/api/v1/runs/prune", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", code, http.StatusBadRequest)
			}
		})
	}
}

// ─── Action Endpoint Tests ─────────────────────────────────────────

func TestListActions(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, resp := doJSON(t, router, http.MethodGet, "/api/v1/actions/", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestCallAction(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/actions/echo/call",
		`{"args":{"text":"hello"},"return_response":true}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d (resp %v)", code, http.StatusOK, resp)
	}
	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	payload := resp["payload"].(map[string]any)
	if payload["text"] != "hello" {
		t.Errorf("payload.text = %v, want hello", payload["text"])
	}
	if resp["call_id"] == "" || resp["call_id"] == nil {
		t.Error("expected call_id in response")
	}
}

func TestCallAction_NotFound(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/actions/missing/call", "")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", code, http.StatusNotFound)
	}
}

func TestCallAction_BadArgs(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/actions/echo/call",
		`{"args":{"text":42}}`)
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", code, http.StatusBadRequest)
	}
}

func TestCallAction_Timeout(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	// The stuck handler never responds; the table times the call out and
	// answers through the responder with a failure result.
	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/actions/stuck/call", "")
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d (resp %v)", code, http.StatusBadGateway, resp)
	}
	if resp["success"] != false {
		t.Errorf("success = %v, want false", resp["success"])
	}
}

// ─── State Endpoint Tests ──────────────────────────────────────────

func TestStateRoundtrip(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, resp := doJSON(t, router, http.MethodPut, "/api/v1/state/greenhouse_temp", `{"value":21.5}`)
	if code != http.StatusOK {
		t.Fatalf("put status = %d, want %d", code, http.StatusOK)
	}
	if resp["value"] != 21.5 {
		t.Errorf("value = %v, want 21.5", resp["value"])
	}

	code, resp = doJSON(t, router, http.MethodGet, "/api/v1/state/greenhouse_temp/", "")
	if code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", code, http.StatusOK)
	}
	if resp["value"] != 21.5 {
		t.Errorf("value = %v, want 21.5", resp["value"])
	}

	code, resp = doJSON(t, router, http.MethodGet, "/api/v1/state/", "")
	if code != http.StatusOK {
		t.Fatalf("snapshot status = %d", code)
	}
	state := resp["state"].(map[string]any)
	if state["greenhouse_temp"] != 21.5 {
		t.Errorf("snapshot value = %v, want 21.5", state["greenhouse_temp"])
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/state/greenhouse_temp/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}

	code, _ = doJSON(t, router, http.MethodGet, "/api/v1/state/greenhouse_temp/", "")
	if code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", code, http.StatusNotFound)
	}
}

func TestStateKey_NotFound(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodGet, "/api/v1/state/missing/", "")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", code, http.StatusNotFound)
	}
}

func TestStateSet_VisibleToConditions(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	doJSON(t, router, http.MethodPost, "/api/v1/scripts/hold/execute", "")

	// The parked run resumes once the flag lands in the store.
	code, _ := doJSON(t, router, http.MethodPut, "/api/v1/state/release", `{"value":true}`)
	if code != http.StatusOK {
		t.Fatalf("put status = %d", code)
	}

	h.waitForRunCount(t, "hold", 1)

	runs, err := h.repo.ListRuns(context.Background(), "hold", 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) == 0 || runs[0].Status != "completed" {
		t.Errorf("expected completed run, got %+v", runs)
	}
}

// ─── System Endpoint Tests ─────────────────────────────────────────

func TestSystemReset_RequiresConfirmation(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	code, _ := doJSON(t, router, http.MethodPost, "/api/v1/system/reset",
		`{"clear_state":true,"confirm":"yes please"}`)
	if code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", code, http.StatusBadRequest)
	}
}

func TestSystemReset_ClearsState(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	h.store.Set("a", 1)
	h.store.Set("b", 2)

	code, resp := doJSON(t, router, http.MethodPost, "/api/v1/system/reset",
		`{"clear_state":true,"confirm":"SYSTEM RESET"}`)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d (resp %v)", code, http.StatusOK, resp)
	}

	cleared := resp["cleared"].(map[string]any)
	if cleared["state_keys"] != float64(2) {
		t.Errorf("state_keys = %v, want 2", cleared["state_keys"])
	}
	if len(h.store.Snapshot()) != 0 {
		t.Errorf("store not empty after reset: %v", h.store.Snapshot())
	}
}

// ─── Metrics Endpoint Tests ────────────────────────────────────────

func TestMetrics(t *testing.T) {
	h := testServer(t)
	h.srv.startTime = time.Now()
	router := h.srv.buildRouter()

	code, resp := doJSON(t, router, http.MethodGet, "/api/v1/metrics", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}

	eng := resp["engine"].(map[string]any)
	if eng["registered_scripts"] != float64(2) {
		t.Errorf("registered_scripts = %v, want 2", eng["registered_scripts"])
	}

	rt := resp["runtime"].(map[string]any)
	if rt["goroutines"].(float64) < 1 {
		t.Error("expected at least one goroutine")
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	h := testServer(t)

	client := &WSClient{
		hub:           h.srv.hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{ChannelRuns: {}},
	}
	h.srv.hub.Register(client)
	defer h.srv.hub.Unregister(client)

	h.srv.hub.Broadcast(ChannelState, map[string]any{"key": "x"})
	h.srv.hub.Broadcast(ChannelRuns, map[string]any{"type": "run.started"})

	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.EventType != ChannelRuns {
			t.Errorf("event_type = %q, want %q", msg.EventType, ChannelRuns)
		}
	case <-time.After(time.Second):
		t.Fatal("expected broadcast on runs channel")
	}

	select {
	case data := <-client.send:
		t.Errorf("unexpected extra message: %s", data)
	default:
	}
}

func TestHub_RunEventsFromEngine(t *testing.T) {
	h := testServer(t)
	router := h.srv.buildRouter()

	client := &WSClient{
		hub:           h.srv.hub,
		send:          make(chan []byte, 16),
		subscriptions: map[string]struct{}{ChannelRuns: {}},
	}
	h.srv.hub.Register(client)
	defer h.srv.hub.Unregister(client)

	doJSON(t, router, http.MethodPost, "/api/v1/scripts/heartbeat/execute", "")
	h.waitForRunCount(t, "heartbeat", 1)

	types := make(map[string]bool)
	deadline := time.After(2 * time.Second)
	for len(types) < 2 {
		select {
		case data := <-client.send:
			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			payload := msg.Payload.(map[string]any)
			types[payload["type"].(string)] = true
		case <-deadline:
			t.Fatalf("missing run events, saw %v", types)
		}
	}

	if !types["run.started"] || !types["run.completed"] {
		t.Errorf("events = %v, want run.started and run.completed", types)
	}
}
