package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/newswalk/jobs"
	"github.com/use-agent/newswalk/models"
)

// PostSearch returns a handler for POST /api/v1/search.
//
// The payload is validated up front so a request missing a key never
// reaches the queue. Valid requests are queued and walked one at a time;
// clients poll GET /api/v1/search/:id or wait for the webhook.
func PostSearch(q *jobs.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SearchJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		if _, err := jobs.ParsePayload(req.Payload()); err != nil {
			var missing *models.MissingFieldError
			if errors.As(err, &missing) {
				respondError(c, models.NewScrapeError(models.ErrCodeMissingField, err.Error(), err))
				return
			}
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		job, err := q.Submit(&req)
		if err != nil {
			respondError(c, err)
			return
		}

		slog.Info("search job queued",
			"id", job.ID(),
			"status", job.Status(),
			"queue_depth", q.Depth(),
		)
		c.JSON(http.StatusAccepted, models.SearchJobResponse{
			ID:     job.ID(),
			Status: job.Status(),
		})
	}
}

// GetSearch returns a handler for GET /api/v1/search/:id.
func GetSearch(q *jobs.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := q.Get(c.Param("id"))
		if !ok {
			respondError(c, models.NewScrapeError(models.ErrCodeNotFound, "search job not found", nil))
			return
		}
		c.JSON(http.StatusOK, job.Snapshot())
	}
}

// respondError maps an error to the correct HTTP status code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	switch {
	case errors.As(err, &scrapeErr):
	case errors.Is(err, jobs.ErrQueueFull):
		scrapeErr = models.NewScrapeError(models.ErrCodeRateLimited, "search queue is full, retry later", err)
	default:
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.ErrorResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput, models.ErrCodeMissingField:
		return http.StatusBadRequest // 400
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeRateLimited:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
