package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/runledger/runledger/internal/api/respond"
	"github.com/runledger/runledger/internal/middleware"
	"github.com/runledger/runledger/internal/services"
	"github.com/runledger/runledger/internal/services/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const runID = "770e8400-e29b-41d4-a716-446655440002"

func init() {
	gin.SetMode(gin.TestMode)
}

type runsFixture struct {
	store     *servicetest.Store
	router    *gin.Engine
	projectID string
}

// newRunsFixture mounts the handlers behind a stub that plays the role of
// TokenAuthMiddleware, authenticating every request as projectID.
func newRunsFixture(t *testing.T) *runsFixture {
	t.Helper()
	ctx := context.Background()
	store := servicetest.New()
	tenants := services.NewTenantService(store.Organizations(), store.Projects())
	org, err := tenants.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	project, err := tenants.CreateProject(ctx, org.ID, "API")
	require.NoError(t, err)

	h := NewHandlers(services.NewIngestionService(store.Runs()))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ProjectIDKey, c.GetHeader("X-Test-Project"))
		c.Next()
	})
	r.POST("/api/v1/test-runs", h.IngestHandler())
	r.GET("/api/v1/test-runs/:run_id", h.GetRunHandler())

	return &runsFixture{store: store, router: r, projectID: project.ID}
}

func (f *runsFixture) do(method, path, projectID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Project", projectID)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

type ingestResponse struct {
	Created bool           `json:"created"`
	TestRun map[string]any `json:"test_run"`
}

const scenarioBody = `{"run_id":"770e8400-e29b-41d4-a716-446655440002","status":"passed","duration_ms":1234,"timestamp":"2026-01-12T10:10:00.000Z"}`

func TestIngestHandler_CreatedThenExisting(t *testing.T) {
	f := newRunsFixture(t)

	w := f.do(http.MethodPost, "/api/v1/test-runs", f.projectID, scenarioBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.True(t, first.Created)
	assert.Equal(t, runID, first.TestRun["run_id"])
	assert.Equal(t, "passed", first.TestRun["status"])
	assert.Equal(t, float64(1234), first.TestRun["duration_ms"])
	assert.Equal(t, "2026-01-12T10:10:00.000Z", first.TestRun["timestamp"])
	assert.Equal(t, f.projectID, first.TestRun["project_id"])

	w = f.do(http.MethodPost, "/api/v1/test-runs", f.projectID, scenarioBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.False(t, second.Created)
	assert.Equal(t, first.TestRun, second.TestRun)
	assert.Equal(t, 1, f.store.RunCount(f.projectID))
}

func TestIngestHandler_ReplayReturnsFirstWriter(t *testing.T) {
	f := newRunsFixture(t)
	f.do(http.MethodPost, "/api/v1/test-runs", f.projectID, scenarioBody)

	w := f.do(http.MethodPost, "/api/v1/test-runs", f.projectID,
		`{"run_id":"770e8400-e29b-41d4-a716-446655440002","status":"failed","duration_ms":1,"timestamp":"2026-01-13T00:00:00.000Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp ingestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "passed", resp.TestRun["status"])
	assert.Equal(t, float64(1234), resp.TestRun["duration_ms"])
}

func TestIngestHandler_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"bad run_id", `{"run_id":"nope","status":"passed","duration_ms":1,"timestamp":"2026-01-12T10:10:00.000Z"}`, "run_id"},
		{"bad status", `{"run_id":"` + runID + `","status":"skipped","duration_ms":1,"timestamp":"2026-01-12T10:10:00.000Z"}`, "status"},
		{"negative duration", `{"run_id":"` + runID + `","status":"passed","duration_ms":-1,"timestamp":"2026-01-12T10:10:00.000Z"}`, "duration_ms"},
		{"fractional duration", `{"run_id":"` + runID + `","status":"passed","duration_ms":1.5,"timestamp":"2026-01-12T10:10:00.000Z"}`, "duration_ms"},
		{"non-canonical timestamp", `{"run_id":"` + runID + `","status":"passed","duration_ms":1,"timestamp":"2026-01-12T10:10:00Z"}`, "timestamp"},
		{"status wrong type", `{"run_id":"` + runID + `","status":1,"duration_ms":1,"timestamp":"2026-01-12T10:10:00.000Z"}`, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRunsFixture(t)
			w := f.do(http.MethodPost, "/api/v1/test-runs", f.projectID, tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			var body respond.ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "validation_failed", body.Error.Code)
			assert.Equal(t, tt.wantField, body.Error.Details["field"])
			assert.Equal(t, 0, f.store.RunCount(f.projectID))
		})
	}
}

func TestIngestHandler_MalformedBody(t *testing.T) {
	f := newRunsFixture(t)
	w := f.do(http.MethodPost, "/api/v1/test-runs", f.projectID, `{"run_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestHandler_StorageFailure(t *testing.T) {
	f := newRunsFixture(t)
	f.store.Err = errors.New("connection reset by peer")

	w := f.do(http.MethodPost, "/api/v1/test-runs", f.projectID, scenarioBody)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestGetRunHandler(t *testing.T) {
	f := newRunsFixture(t)
	f.do(http.MethodPost, "/api/v1/test-runs", f.projectID, scenarioBody)

	w := f.do(http.MethodGet, "/api/v1/test-runs/"+runID, f.projectID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		TestRun map[string]any `json:"test_run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, runID, body.TestRun["run_id"])

	w = f.do(http.MethodGet, "/api/v1/test-runs/"+runID, "00000000-0000-0000-0000-000000000000", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "another project must not see the run")

	w = f.do(http.MethodGet, "/api/v1/test-runs/not-a-uuid", f.projectID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
