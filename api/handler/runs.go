package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/pipeline"
)

// Runner executes one pipeline job.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (*pipeline.Outcome, error)
}

// RunReader loads a persisted run.
type RunReader interface {
	ReadRun(runID string) (models.RunResult, error)
}

// PostRun returns a handler for POST /api/v1/runs.
//
// newRunner is called once per request; a pipeline runs one job at a time.
func PostRun(newRunner func() Runner, saveSnapshot bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err), models.TimingInfo{})
			return
		}
		renderReq, err := req.ToRenderRequest()
		if err != nil {
			respondError(c, err, models.TimingInfo{})
			return
		}

		out, err := newRunner().Run(c.Request.Context(), pipeline.Job{
			RunID:        req.RunID,
			Request:      renderReq,
			Schema:       req.Schema,
			Instruction:  req.Instruction,
			SaveSnapshot: req.SaveSnapshot || saveSnapshot,
			Scope:        req.Scope,
		})
		if err != nil {
			if errors.Is(err, pipeline.ErrBusy) {
				err = models.NewScrapeError(models.ErrCodeRateLimited, err.Error(), err)
			}
			respondError(c, err, models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()})
			return
		}

		cost := out.Cost
		c.JSON(http.StatusOK, models.RunResponse{
			Success:     true,
			RunID:       out.RunID,
			Records:     out.Records,
			Cost:        &cost,
			WrittenPath: out.WrittenPath,
			Dropped:     len(out.Dropped),
			Timing:      out.Timing,
		})
	}
}

// GetRun returns a handler for GET /api/v1/runs/:id.
func GetRun(runs RunReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		result, err := runs.ReadRun(c.Param("id"))
		if err != nil {
			respondError(c, err, models.TimingInfo{TotalMs: time.Since(start).Milliseconds()})
			return
		}

		cost := result.Cost
		c.JSON(http.StatusOK, models.RunResponse{
			Success:     true,
			RunID:       result.RunID,
			Records:     result.Records,
			Cost:        &cost,
			WrittenPath: result.WrittenPath,
			Timing:      models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
		})
	}
}
