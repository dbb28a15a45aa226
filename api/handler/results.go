package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leadgrab/leadgrab/models"
	"github.com/leadgrab/leadgrab/store"
)

// ListResults returns a handler for GET /api/v1/results.
func ListResults(dataDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		files, err := store.List(dataDir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInternal,
					Message: "failed to list results",
				},
			})
			return
		}
		c.JSON(http.StatusOK, models.ResultsResponse{Success: true, Files: files})
	}
}

// GetResult returns a handler for GET /api/v1/results/:name, serving one
// run output file. The name is validated against path traversal.
func GetResult(dataDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if name != filepath.Base(name) || !strings.HasSuffix(name, ".json") {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "invalid result file name",
				},
			})
			return
		}
		c.File(filepath.Join(dataDir, name))
	}
}
