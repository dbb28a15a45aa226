package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leadgrab/leadgrab/dispatch"
	"github.com/leadgrab/leadgrab/models"
)

// Dispatch returns a handler for POST /api/v1/dispatch.
//
// The guard consumes a run slot (daily counter + in-progress check) before
// the workflow fires; a denied guard maps to 409. A successful dispatch
// returns 202: the workflow runs elsewhere and never reports back here.
func Dispatch(guard *dispatch.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.DispatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.DispatchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		runs, err := guard.Dispatch(c.Request.Context(), req.Query)
		if err != nil {
			status, code := http.StatusBadGateway, models.ErrCodeUpstream
			switch {
			case errors.Is(err, dispatch.ErrRunInProgress),
				errors.Is(err, dispatch.ErrDailyLimit),
				errors.Is(err, dispatch.ErrConflict):
				status, code = http.StatusConflict, models.ErrCodeConflict
			}
			slog.Warn("dispatch denied", "query", req.Query, "error", err)
			c.JSON(status, models.DispatchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    code,
					Message: err.Error(),
				},
			})
			return
		}

		c.JSON(http.StatusAccepted, models.DispatchResponse{
			Success:   true,
			Message:   "scrape workflow dispatched",
			RunsToday: runs,
		})
	}
}
