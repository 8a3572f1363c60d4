package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/pipeline"
)

// respondError maps err to an HTTP status and writes a structured JSON error
// response. Step failures also report the run id and the failed state.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	resp := models.RunResponse{Success: false, Timing: timing}

	var stepErr *pipeline.StepError
	if errors.As(err, &stepErr) {
		resp.RunID = stepErr.RunID
		resp.FailedState = string(stepErr.State)
	}

	scrapeErr := models.AsScrapeError(err)
	resp.Error = scrapeErr.ToDetail()
	c.JSON(mapErrorToStatus(scrapeErr), resp)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeTimeout, models.ErrCodeContentNeverSettled:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeNavigation, models.ErrCodeBackendUnavailable, models.ErrCodeMalformedResponse:
		return http.StatusBadGateway // 502
	case models.ErrCodeSchemaViolation, models.ErrCodeUnknownModel:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
