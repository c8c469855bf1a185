package router

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lm-bench/internal/config"
	"lm-bench/internal/db"
	"lm-bench/internal/experiment"
	"lm-bench/internal/model"
	"lm-bench/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) (*gin.Engine, *model.Experiment, *service.ServiceContext) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Planner: config.PlannerConfig{Driver: "true"},
		Experiment: config.ExperimentConfig{
			Name:      "api",
			TestSuite: []string{"depot:p01.pddl"},
			Dir:       t.TempDir(),
			Revisions: []string{"2281574db1275d8a931305aede788c062947fa6e"},
			Builds:    []string{"release"},
			Heuristics: []experiment.Token{
				{Value: "dalm_sum", Alias: "sum"},
			},
			LandmarkGenerators: []experiment.Token{
				{Value: "fact_translator(lm_rhw())", Alias: "rhw"},
				{Value: "lm_cut_landmarks()", Alias: "lm_cut"},
			},
		},
	}

	conn, err := db.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "api.db")})
	require.NoError(t, err)

	svc, err := service.NewServiceContext(cfg, conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	exp := &model.Experiment{
		UUID:           "7c0f6a3e-2d8b-4a51-9a51-0f3c2b1d4e5f",
		Name:           "api",
		Environment:    experiment.EnvironmentLocal,
		AlgorithmsJSON: `["2281574-sum-rhw","2281574-sum-lm_cut"]`,
		RunCount:       2,
	}
	require.NoError(t, conn.Create(exp).Error)

	zero, twelve := 0, 12
	runs := []model.Run{
		{ExperimentID: exp.ID, RunIndex: 0, Algorithm: "2281574-sum-rhw", Domain: "depot", Problem: "p01.pddl",
			Status: model.RunParsed, ExitCode: &zero, CommandJSON: `["fast-downward.py","--search-time-limit","30m"]`,
			MetricsJSON: `{"solution_found":"Solution found","landmarks":10,"orderings":42,"total_time":0.75}`},
		{ExperimentID: exp.ID, RunIndex: 1, Algorithm: "2281574-sum-lm_cut", Domain: "depot", Problem: "p01.pddl",
			Status: model.RunParsed, ExitCode: &twelve, MetricsJSON: `{"landmarks":7}`},
	}
	require.NoError(t, conn.Create(&runs).Error)

	return SetupRouter(svc), exp, svc
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestListExperiments(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/experiments?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	experiments := body["experiments"].([]any)
	require.Len(t, experiments, 1)
	assert.Equal(t, "api", experiments[0].(map[string]any)["name"])
}

func TestGetExperiment_ByIDAndUUID(t *testing.T) {
	r, exp, _ := setupTestRouter(t)

	for _, ref := range []string{"1", exp.UUID} {
		w := doRequest(r, http.MethodGet, "/api/experiments/"+ref, "")
		require.Equal(t, http.StatusOK, w.Code, ref)
		body := decode(t, w)
		assert.Equal(t, []any{"2281574-sum-rhw", "2281574-sum-lm_cut"}, body["algorithms"])
	}

	w := doRequest(r, http.MethodGet, "/api/experiments/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRuns_Filter(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/experiments/1/runs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["total"])

	w = doRequest(r, http.MethodGet, "/api/experiments/1/runs?algorithm=2281574-sum-lm_cut", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 1, body["total"])
	run := body["runs"].([]any)[0].(map[string]any)
	assert.EqualValues(t, 12, run["exit_code"])
}

func TestGetRun(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/runs/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 10, body["metrics"].(map[string]any)["landmarks"])
	assert.Equal(t, []any{"fast-downward.py", "--search-time-limit", "30m"}, body["command"])

	w = doRequest(r, http.MethodGet, "/api/runs/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodGet, "/api/runs/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetReport(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/experiments/1/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)["report"].(map[string]any)
	coverage := report["coverage"].(map[string]any)
	assert.EqualValues(t, 1, coverage["2281574-sum-rhw"].(map[string]any)["solved"])
	assert.EqualValues(t, 0, coverage["2281574-sum-lm_cut"].(map[string]any)["solved"])

	w = doRequest(r, http.MethodGet, "/api/experiments/1/report?format=markdown", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2281574-sum-rhw")
}

func TestListConfigs(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/configs", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["total"])
	first := body["configs"].([]any)[0].(map[string]any)
	assert.Equal(t, "sum-rhw", first["name"])
}

func TestExtractMetrics(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	text := "Landmark graph generation time: 0.25s\\nLandmark graph contains 10 landmarks.\\nSolution found!\\nPlan cost: 7\\n"
	w := doRequest(r, http.MethodPost, "/api/metrics/extract", `{"text":"`+text+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	metrics := decode(t, w)["metrics"].(map[string]any)
	assert.EqualValues(t, 10, metrics["landmarks"])
	assert.EqualValues(t, 0.25, metrics["lmgraph_generation_time"])
	assert.EqualValues(t, 7, metrics["cost"])
	assert.NotContains(t, metrics, "landmarks_disjunctive")
}

func TestExtractMetrics_Unparseable(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/metrics/extract", `{"text":"Landmark graph generation time: fasts"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "lmgraph_generation_time", decode(t, w)["field"])

	w = doRequest(r, http.MethodPost, "/api/metrics/extract", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunExperiment_MissingBenchmarks(t *testing.T) {
	r, _, _ := setupTestRouter(t)
	t.Setenv(experiment.BenchmarksEnv, "")

	w := doRequest(r, http.MethodPost, "/api/experiments/run", `{"test_run":true}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], experiment.BenchmarksEnv)
}

func TestCORSPreflight(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodOptions, "/api/experiments", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRunExperiment_Accepted(t *testing.T) {
	r, _, svc := setupTestRouter(t)

	benchmarks := t.TempDir()
	for _, f := range []string{"domain.pddl", "p01.pddl"} {
		path := filepath.Join(benchmarks, "depot", f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("(define)"), 0o644))
	}
	t.Setenv(experiment.BenchmarksEnv, benchmarks)

	w := doRequest(r, http.MethodPost, "/api/experiments/run", `{"name":"from-api","test_run":true}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	result := decode(t, w)["result"].(map[string]any)
	assert.EqualValues(t, 2, result["runs"])
	id := result["experiment_id"]

	svc.Runner.Wait()

	var runs []model.Run
	require.NoError(t, svc.DB.Where("experiment_id = ?", id).Find(&runs).Error)
	require.Len(t, runs, 2)
	for _, run := range runs {
		require.NotNil(t, run.ExitCode)
		assert.Equal(t, 0, *run.ExitCode)
	}
}

func TestRunExperiment_RejectsEscapingName(t *testing.T) {
	r, _, _ := setupTestRouter(t)
	t.Setenv(experiment.BenchmarksEnv, t.TempDir())

	w := doRequest(r, http.MethodPost, "/api/experiments/run", `{"name":"../../escaped","test_run":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
