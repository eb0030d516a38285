package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/engine"
	"github.com/shaiso/sdtmflow/internal/repo"
	"github.com/shaiso/sdtmflow/internal/table"
	"github.com/shaiso/sdtmflow/internal/telemetry"
)

// fakeStatus — StatusSource с заданным состоянием.
type fakeStatus struct {
	run      *domain.Run
	results  map[string]*table.Dataset
	failures map[string]*engine.Failure
}

func (f *fakeStatus) LastRun() *domain.Run { return f.run }

func (f *fakeStatus) Result(id string) (*table.Dataset, bool) {
	d, ok := f.results[id]
	return d, ok
}

func (f *fakeStatus) Failure(id string) (*engine.Failure, bool) {
	fl, ok := f.failures[id]
	return fl, ok
}

func (f *fakeStatus) CacheInfo() engine.CacheInfo {
	return engine.CacheInfo{Entries: len(f.results) + len(f.failures), Succeeded: len(f.results), Failed: len(f.failures)}
}

// fakeRuns — RunStore в памяти.
type fakeRuns struct {
	runs   []domain.Run
	filter repo.RunFilter
	err    error
}

func (f *fakeRuns) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	f.filter = filter
	return f.runs, f.err
}

func (f *fakeRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

func newTestServer(t *testing.T, status StatusSource, runs RunStore) *httptest.Server {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	metrics.ObserveRun("SUCCEEDED", 0)

	h := NewHandler(Config{
		Status:     status,
		Runs:       runs,
		Gatherer:   reg,
		Registerer: reg,
		Logger:     telemetry.Discard(),
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func testStatus() *fakeStatus {
	run := domain.NewRun("dm")
	run.Nodes = []domain.NodeResult{
		{NodeID: "src", Kind: domain.KindSource, Status: domain.NodeStatusSucceeded, Rows: 3, Columns: 1},
		{NodeID: "flt", Kind: domain.KindFilter, Status: domain.NodeStatusFailed, Category: "data", Error: "column AGE not found"},
	}
	run.Finish()

	return &fakeStatus{
		run: run,
		results: map[string]*table.Dataset{
			"src": table.MustNew([]string{"USUBJID"}, [][]any{{"S-001"}, {"S-002"}, {"S-003"}}),
		},
		failures: map[string]*engine.Failure{
			"flt": {Category: engine.CategoryData, Message: "column AGE not found"},
		},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, testStatus(), nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "sdtmflow_flow_runs_total") {
		t.Errorf("metrics should expose flow runs counter:\n%s", body)
	}
}

func TestGetLastRun(t *testing.T) {
	status := testStatus()
	srv := newTestServer(t, status, nil)

	var resp struct {
		Data RunResponse `json:"data"`
	}
	if code := get(t, srv.URL+"/api/v1/run", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	if resp.Data.ID != status.run.ID.String() || resp.Data.Status != "FAILED" {
		t.Errorf("run = %+v", resp.Data)
	}
	if resp.Data.Nodes != 2 || resp.Data.Failed != 1 || len(resp.Data.Results) != 2 {
		t.Errorf("node counts = %+v", resp.Data)
	}
}

func TestGetLastRun_NotYet(t *testing.T) {
	srv := newTestServer(t, &fakeStatus{}, nil)

	var resp Envelope
	if code := get(t, srv.URL+"/api/v1/run", &resp); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
	if resp.Error == nil || resp.Error.Code != CodeNoRun {
		t.Errorf("error = %+v, want code %s", resp.Error, CodeNoRun)
	}
}

func TestListNodes(t *testing.T) {
	srv := newTestServer(t, testStatus(), nil)

	var resp struct {
		Data  []NodeResult `json:"data"`
		Total int          `json:"total"`
	}
	get(t, srv.URL+"/api/v1/nodes", &resp)

	if resp.Total != 2 || resp.Data[1].NodeID != "flt" || resp.Data[1].Category != "data" {
		t.Errorf("nodes = %+v", resp)
	}
}

func TestGetNodeResult(t *testing.T) {
	srv := newTestServer(t, testStatus(), nil)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantRows  int
		truncated bool
	}{
		{"default limit", "", http.StatusOK, 3, false},
		{"limited", "?limit=2", http.StatusOK, 2, true},
		{"all", "?limit=0", http.StatusOK, 3, false},
		{"bad limit", "?limit=-1", http.StatusBadRequest, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp struct {
				Data DatasetResponse `json:"data"`
			}
			var target any = &resp
			if tt.wantCode != http.StatusOK {
				target = nil
			}

			code := get(t, srv.URL+"/api/v1/nodes/src/result"+tt.query, target)
			if code != tt.wantCode {
				t.Fatalf("status = %d, want %d", code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if resp.Data.Rows != 3 || resp.Data.Data.NumRows() != tt.wantRows || resp.Data.Truncated != tt.truncated {
				t.Errorf("rows=%d data=%d truncated=%v", resp.Data.Rows, resp.Data.Data.NumRows(), resp.Data.Truncated)
			}
		})
	}

	if code := get(t, srv.URL+"/api/v1/nodes/flt/result", nil); code != http.StatusNotFound {
		t.Errorf("failed node result status = %d, want 404", code)
	}
}

func TestGetNodeError(t *testing.T) {
	srv := newTestServer(t, testStatus(), nil)

	var resp struct {
		Data FailureResponse `json:"data"`
	}
	if code := get(t, srv.URL+"/api/v1/nodes/flt/error", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Data.Category != "data" || resp.Data.NodeID != "flt" {
		t.Errorf("failure = %+v", resp.Data)
	}

	if code := get(t, srv.URL+"/api/v1/nodes/src/error", nil); code != http.StatusNotFound {
		t.Errorf("succeeded node error status = %d, want 404", code)
	}
}

func TestGetCacheInfo(t *testing.T) {
	srv := newTestServer(t, testStatus(), nil)

	var resp struct {
		Data engine.CacheInfo `json:"data"`
	}
	get(t, srv.URL+"/api/v1/cache", &resp)

	if resp.Data.Entries != 2 || resp.Data.Succeeded != 1 || resp.Data.Failed != 1 {
		t.Errorf("cache = %+v", resp.Data)
	}
}

func TestRuns(t *testing.T) {
	stored := domain.NewRun("dm")
	stored.Finish()
	runs := &fakeRuns{runs: []domain.Run{*stored}}
	srv := newTestServer(t, testStatus(), runs)

	var list struct {
		Data  []RunResponse `json:"data"`
		Total int           `json:"total"`
	}
	if code := get(t, srv.URL+"/api/v1/runs?flow=dm&status=succeeded&limit=5", &list); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if list.Total != 1 || list.Data[0].ID != stored.ID.String() {
		t.Errorf("runs = %+v", list)
	}
	if runs.filter.FlowName != "dm" || runs.filter.Status != domain.RunStatusSucceeded || runs.filter.Limit != 5 {
		t.Errorf("filter = %+v", runs.filter)
	}

	var one struct {
		Data RunResponse `json:"data"`
	}
	if code := get(t, srv.URL+"/api/v1/runs/"+stored.ID.String(), &one); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	if code := get(t, srv.URL+"/api/v1/runs/"+uuid.NewString(), nil); code != http.StatusNotFound {
		t.Errorf("unknown run status = %d, want 404", code)
	}
	if code := get(t, srv.URL+"/api/v1/runs/not-a-uuid", nil); code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", code)
	}

	runs.err = errors.New("connection refused")
	if code := get(t, srv.URL+"/api/v1/runs", nil); code != http.StatusInternalServerError {
		t.Errorf("store error status = %d, want 500", code)
	}
}

func TestRuns_NotRegisteredWithoutStore(t *testing.T) {
	srv := newTestServer(t, testStatus(), nil)

	if code := get(t, srv.URL+"/api/v1/runs", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestRoute_RecoversPanicAndCountsRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewHandler(Config{Status: &fakeStatus{}, Registerer: reg, Logger: telemetry.Discard()})

	route := h.route("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	route.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var resp Envelope
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != CodeInternal {
		t.Errorf("error = %+v, want code %s", resp.Error, CodeInternal)
	}
	if got := testutil.ToFloat64(h.metrics.requests.WithLabelValues("/boom", "500")); got != 1 {
		t.Errorf("requests{/boom,500} = %v, want 1", got)
	}
}
