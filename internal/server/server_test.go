package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/sharpescan/internal/database"
	"github.com/aristath/sharpescan/internal/domain"
	"github.com/aristath/sharpescan/internal/evaluation/workers"
	"github.com/aristath/sharpescan/internal/events"
	"github.com/aristath/sharpescan/internal/metrics"
	"github.com/aristath/sharpescan/internal/modules/historical"
	"github.com/aristath/sharpescan/internal/modules/runs"
	"github.com/aristath/sharpescan/internal/modules/simulation"
	testingpkg "github.com/aristath/sharpescan/internal/testing"
)

var testTickers = []string{"AAA", "BBB", "CCC", "DDD"}

type staticLoader struct {
	series domain.PriceSeries
}

func (l staticLoader) LoadAll(_ context.Context, tickers []string, start, end time.Time, _ string) (domain.PriceSeries, error) {
	out := make(domain.PriceSeries, len(tickers))
	for _, t := range tickers {
		out[t] = historical.FilterRange(l.series[t], start, end)
	}
	return out, nil
}

type fakeQuota struct{}

func (fakeQuota) GetRemainingRequests() int { return 17 }
func (fakeQuota) BreakerState() string      { return "closed" }

type testServer struct {
	srv *Server
	svc *runs.Service
	bus *events.Bus
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dataDir := t.TempDir()
	db := testingpkg.NewTestDB(t, database.NameResults)

	loader := staticLoader{series: testingpkg.NewPriceFixtures(testTickers, testingpkg.Date("2024-08-01"), 60, 11)}
	engine := simulation.NewEngine(workers.NewWorkerPool(2), zerolog.Nop())
	svc := runs.NewService(runs.NewRepository(db.Conn(), zerolog.Nop()), loader, engine, dataDir+"/results", dataDir, zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	svc.SetEvents(events.NewManager(bus, zerolog.Nop()))
	t.Cleanup(svc.Shutdown)

	srv := New(Config{
		Log:       zerolog.Nop(),
		Port:      0,
		DevMode:   true,
		DataDir:   dataDir,
		Runs:      svc,
		EventBus:  bus,
		Metrics:   metrics.NewRegistry().Handler(),
		Databases: map[string]*database.DB{database.NameResults: db},
		Quota:     fakeQuota{},
	})
	return &testServer{srv: srv, svc: svc, bus: bus}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

const profileBody = `{
	"name": "api",
	"tickers": ["AAA", "BBB", "CCC", "DDD"],
	"in_sample": {"start": "2024-08-01", "end": "2024-10-31"},
	"out_of_sample": null,
	"combo_size": 2,
	"combo_limit": 6,
	"max_pct": 0.7,
	"trials_per_combination": 25,
	"seed": 3
}`

func createRun(t *testing.T, ts *testServer) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/runs", []byte(profileBody))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["id"])
	return resp["id"]
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"service":"sharpescan"`)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sharpescan_combinations_evaluated_total")
}

func TestSystemStatus(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/system", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Positive(t, resp.Goroutines)
	require.Len(t, resp.Databases, 1)
	assert.Equal(t, database.NameResults, resp.Databases[0].Name)
	require.NotNil(t, resp.Quota)
	assert.Equal(t, 17, resp.Quota.RemainingRequests)
	assert.Equal(t, "closed", resp.Quota.Breaker)
}

func TestRunLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := createRun(t, ts)
	ts.svc.Wait()

	rec := ts.do(t, http.MethodGet, "/api/runs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run runs.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, runs.StatusCompleted, run.Status)
	assert.Equal(t, 6, run.Combinations)
	require.NotNil(t, run.BestSharpe)
	require.NotNil(t, run.BestLine)
	assert.Nil(t, run.OOSSharpe)

	rec = ts.do(t, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []runs.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/runs/"+id+"/results?top=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []ResultView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 3)
	assert.Equal(t, *run.BestSharpe, views[0].Sharpe)
	assert.Equal(t, *run.BestLine, views[0].Line)
	assert.GreaterOrEqual(t, views[0].Sharpe, views[1].Sharpe)
	assert.GreaterOrEqual(t, views[1].Sharpe, views[2].Sharpe)
	for _, v := range views {
		assert.Len(t, v.Tickers, 2)
		assert.Len(t, v.Weights, 2)
		assert.Contains(t, v.Text, "Sharpe = ")
	}

	rec = ts.do(t, http.MethodGet, "/api/runs/"+id+"/results.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, views[0].Text, lines[*run.BestLine-1])

	rec = ts.do(t, http.MethodDelete, "/api/runs/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/runs/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRun_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"name":`},
		{"unknown field", `{"bogus": 1}`},
		{"invalid profile", `{"combo_size": 0}`},
		{"cap too small", `{"tickers": ["AAA","BBB"], "combo_size": 2, "combo_limit": 1, "max_pct": 0.2}`},
		{"absolute csv path", `{"in_sample": {"start": "2024-08-01", "end": "2024-10-31", "csv_path": "/etc/passwd"}}`},
		{"csv path escapes data dir", `{"out_of_sample": {"start": "2025-01-01", "end": "2025-03-31", "csv_path": "../../secret.csv"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/runs", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestRunNotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/runs/missing", "/api/runs/missing/results", "/api/runs/missing/results.csv"} {
		rec := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/api/runs/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/runs/missing/cancel", nil).Code)
}

func TestResults_InvalidTop(t *testing.T) {
	ts := newTestServer(t)
	id := createRun(t, ts)
	ts.svc.Wait()

	for _, top := range []string{"0", "-1", "abc", "10001"} {
		rec := ts.do(t, http.MethodGet, "/api/runs/"+id+"/results?top="+top, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, top)
	}
}

func TestRunStream_FinishedRunSendsSnapshot(t *testing.T) {
	ts := newTestServer(t)
	id := createRun(t, ts)
	ts.svc.Wait()

	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/runs/" + id + "/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg struct {
		Type string   `json:"type"`
		Run  runs.Run `json:"run"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, id, msg.Run.ID)
	assert.Equal(t, runs.StatusCompleted, msg.Run.Status)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestRunStream_ForwardsEventsUntilTerminal(t *testing.T) {
	ts := newTestServer(t)
	// A pending run with no worker behind it; events are published by hand.
	repo := ts.svc.Repository()
	run := &runs.Run{
		ID:        "manual",
		Name:      "manual",
		Status:    runs.StatusPending,
		Tickers:   testTickers,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(run))

	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/runs/manual/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var snapshot map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &snapshot))
	assert.Equal(t, "snapshot", snapshot["type"])

	manager := events.NewManager(ts.bus, zerolog.Nop())
	manager.EmitTyped("other", &events.RunProgressData{Current: 9, Total: 9})
	manager.EmitTyped("manual", &events.RunProgressData{Current: 1, Total: 2})
	manager.EmitTyped("manual", &events.RunCompletedData{BestSharpe: 1.5, BestLine: 2})

	var first, second map[string]interface{}
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Equal(t, string(events.RunProgress), first["type"])
	assert.Equal(t, "manual", first["run_id"])
	assert.Equal(t, string(events.RunCompleted), second["type"])

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestRunStream_UnknownRun(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/runs/missing/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
