package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicworks/capital-triage/internal/advisor"
	"github.com/civicworks/capital-triage/internal/briefing"
	"github.com/civicworks/capital-triage/internal/config"
	"github.com/civicworks/capital-triage/internal/gateway"
	"github.com/civicworks/capital-triage/internal/pipeline"
	"github.com/civicworks/capital-triage/internal/report"
	"github.com/civicworks/capital-triage/internal/repository"
	"github.com/civicworks/capital-triage/internal/retrieval"
	"github.com/civicworks/capital-triage/internal/scheduler"
	"github.com/civicworks/capital-triage/internal/seed"
	"github.com/civicworks/capital-triage/pkg/database"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Run())

	repos := pipeline.Repos{
		DB:         db,
		Issues:     repository.NewIssueRepository(db.DB, logger),
		Candidates: repository.NewCandidateRepository(db.DB, logger),
		Decisions:  repository.NewDecisionRepository(db.DB, logger),
		Schedule:   repository.NewScheduleRepository(db.DB, logger),
		Capacity:   repository.NewCapacityRepository(db.DB, logger),
		Audit:      repository.NewAuditRepository(db.DB, logger),
	}

	retriever := retrieval.NewCorpusRetriever(nil, logger)
	briefings := briefing.NewBuilder(retriever, nil, "", logger)
	gw := gateway.New(repos.Decisions, repos.Audit, gateway.Options{}, logger)
	sched := scheduler.New(scheduler.DefaultHorizonWeeks, logger)
	orchestrator := pipeline.New(repos, advisor.NewRuleAdvisor(), briefings, gw, sched, 75_000_000, logger)

	deps := Deps{
		Pipeline:  orchestrator,
		Gateway:   gw,
		Seeder:    seed.NewLoader(repos.Issues, repos.Capacity, logger),
		Issues:    repos.Issues,
		Report:    report.NewExcelWriter(logger),
		ReportDir: t.TempDir(),
	}
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, deps, logger)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.Equal(t, true, resp["success"])
}

func TestInitSeedsData(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/init", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 10, data["issues_seeded"])

	// Re-init replaces rather than duplicates.
	w = do(t, s, http.MethodPost, "/api/init", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 10, data["issues_seeded"])
}

func TestInitSetsBudget(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/init", map[string]any{"budget": 50_000_000})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	budget := data["budget"].(map[string]any)
	assert.EqualValues(t, 50_000_000, budget["total"])

	// The submitted budget governs the rest of the run.
	w = do(t, s, http.MethodGet, "/api/approvals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	approvals := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 50_000_000, approvals["budget"].(map[string]any)["total"])

	w = do(t, s, http.MethodPost, "/api/init", map[string]any{"budget": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPipelineOverHTTP(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/init", nil).Code)

	w := do(t, s, http.MethodPost, "/api/run-formation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	formation := decode(t, w)["data"].(map[string]any)
	assert.Len(t, formation["formed"], 9)

	w = do(t, s, http.MethodPost, "/api/run-governance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	governance := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 3, governance["escalated"])
	assert.EqualValues(t, 6, governance["auto_resolved"])

	// Scheduling is gated until every escalation is resolved.
	w = do(t, s, http.MethodPost, "/api/run-scheduling", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodGet, "/api/approvals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	approvals := decode(t, w)["data"].(map[string]any)
	pending := approvals["pending"].([]any)
	require.Len(t, pending, 3)

	verdicts := make([]map[string]any, 0, len(pending))
	for _, p := range pending {
		entry := p.(map[string]any)
		verdicts = append(verdicts, map[string]any{
			"project_id": entry["project_id"],
			"decision":   "APPROVE",
			"reason":     "Council approved",
		})
	}
	w = do(t, s, http.MethodPost, "/api/approvals", map[string]any{"decisions": verdicts})
	require.Equal(t, http.StatusOK, w.Code)
	submitted := decode(t, w)["data"].(map[string]any)
	assert.Len(t, submitted["applied"], 3)
	assert.EqualValues(t, 0, submitted["pending_remaining"])

	w = do(t, s, http.MethodPost, "/api/run-scheduling", nil)
	require.Equal(t, http.StatusOK, w.Code)
	scheduling := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 5, scheduling["scheduled"])
	assert.EqualValues(t, 4, scheduling["blocked"])

	w = do(t, s, http.MethodGet, "/api/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)["data"].(map[string]any)
	assert.Len(t, results["candidates"], 9)
	assert.Len(t, results["tasks"], 9)
}

func TestSubmitApprovalsValidation(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/approvals", map[string]any{"nope": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/approvals", map[string]any{
		"decisions": []map[string]any{
			{"project_id": "PRJ-404-MISSING", "decision": "APPROVE"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Empty(t, data["applied"])
	assert.Len(t, data["errors"], 1)
}

func TestDownloadReport(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/init", nil).Code)

	w := do(t, s, http.MethodGet, "/api/report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "triage-report-")
	assert.NotZero(t, w.Body.Len())
}

func TestUnknownRouteIs404(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodGet, fmt.Sprintf("/api/%s", "nope"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
