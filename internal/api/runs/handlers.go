// Package runs implements the ingestion API used by CI systems. Requests are
// authenticated with a project token; the project is never taken from the body.
package runs

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/runledger/runledger/internal/api/respond"
	"github.com/runledger/runledger/internal/middleware"
	"github.com/runledger/runledger/internal/services"
)

// ingestRequest mirrors the wire payload. duration_ms stays a json.Number so
// fractional and out-of-range values reach validation instead of failing decode.
type ingestRequest struct {
	RunID      string      `json:"run_id"`
	Status     string      `json:"status"`
	DurationMs json.Number `json:"duration_ms"`
	Timestamp  string      `json:"timestamp"`
}

// Handlers serves test run ingestion and read-back.
type Handlers struct {
	ingestion *services.IngestionService
}

// NewHandlers creates the test run handlers.
func NewHandlers(ingestion *services.IngestionService) *Handlers {
	return &Handlers{ingestion: ingestion}
}

// IngestHandler records a test run for the authenticated project.
// 201 when the run was stored by this call, 200 when run_id already existed;
// both return the stored record.
// POST /api/v1/test-runs
func (h *Handlers) IngestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ingestRequest
		if err := respond.BindJSON(c, &req); err != nil {
			respond.Error(c, err)
			return
		}

		result, err := h.ingestion.Ingest(c.Request.Context(), middleware.ProjectID(c), services.IngestInput{
			RunID:      req.RunID,
			Status:     req.Status,
			DurationMs: req.DurationMs,
			Timestamp:  req.Timestamp,
		})
		if err != nil {
			respond.Error(c, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		c.JSON(status, result)
	}
}

// GetRunHandler returns one run of the authenticated project.
// GET /api/v1/test-runs/:run_id
func (h *Handlers) GetRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := h.ingestion.GetRun(c.Request.Context(), middleware.ProjectID(c), c.Param("run_id"))
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"test_run": run})
	}
}
