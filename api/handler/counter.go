package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadgrab/leadgrab/cache"
	"github.com/leadgrab/leadgrab/config"
	"github.com/leadgrab/leadgrab/models"
)

// Counter returns a handler for GET /api/v1/counter: a read-only JSON
// passthrough of the remotely hosted counter value. The upstream body is
// forwarded verbatim; a short cache keeps bursts off the upstream.
func Counter(cfg config.CounterConfig, cc *cache.Cache) gin.HandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(c *gin.Context) {
		if cfg.UpstreamURL == "" {
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeUpstream,
					Message: "counter upstream not configured",
				},
			})
			return
		}

		key := cache.Key(cfg.UpstreamURL)
		if cc != nil {
			if payload, hit := cc.Get(key, cfg.CacheTTL); hit {
				c.Data(http.StatusOK, "application/json", payload)
				return
			}
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, cfg.UpstreamURL, nil)
		if err != nil {
			respondUpstreamError(c, err)
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			respondUpstreamError(c, err)
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			respondUpstreamError(c, err)
			return
		}

		if resp.StatusCode != http.StatusOK {
			slog.Warn("counter upstream returned non-200", "status", resp.StatusCode)
			c.Data(resp.StatusCode, "application/json", body)
			return
		}

		if cc != nil {
			cc.Set(key, body)
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}

func respondUpstreamError(c *gin.Context, err error) {
	slog.Error("counter upstream request failed", "error", err)
	c.JSON(http.StatusBadGateway, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeUpstream,
			Message: "counter upstream request failed",
		},
	})
}
