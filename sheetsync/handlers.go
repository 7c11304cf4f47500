package sheetsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/daaty/dashboard-mobilidade-urbana-main/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handlers struct {
	sync        *workflow.SyncService
	logger      logrus.FieldLogger
	pushEnabled bool
}

func NewHandlers(sync *workflow.SyncService, logger logrus.FieldLogger, pushEnabled bool) *Handlers {
	return &Handlers{sync: sync, logger: logger, pushEnabled: pushEnabled}
}

// Register mounts the /api/sync routes on group.
func (h *Handlers) Register(group *gin.RouterGroup) {
	group.POST("/execute", h.ExecuteHandler())
	group.POST("/google-sheets", h.SheetsHandler())
	group.POST("/metrics/recalculate", h.RecalculateHandler())
	group.POST("/duplicates/resolve", h.ResolveDuplicatesHandler())
	group.GET("/status", h.StatusHandler())
	group.GET("/health", h.HealthHandler())
	group.GET("/runs", h.RunsHandler())
}

// bindSyncRequest accepts an empty body as force=false.
func bindSyncRequest(c *gin.Context) (SyncRequest, bool) {
	var req SyncRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return req, false
	}
	return req, true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, utils.ErrSourceNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) ExecuteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSyncRequest(c)
		if !ok {
			return
		}
		result := h.sync.SyncAll(c.Request.Context(), req.Force, models.SyncTriggeredManual)
		if !result.Success {
			c.JSON(errorStatus(result.Err), result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *Handlers) SheetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSyncRequest(c)
		if !ok {
			return
		}
		result, err := h.sync.SyncSource(c.Request.Context(), req.Force)
		if err != nil {
			c.JSON(errorStatus(err), gin.H{"success": false, "error": err.Error(), "result": result})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

func (h *Handlers) RecalculateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RecalculateRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}

		start := h.sync.DefaultMetricsStart()
		if strings.TrimSpace(req.StartDate) != "" {
			parsed, ok := utils.ParseDate(req.StartDate)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD or DD/MM/YYYY"})
				return
			}
			start = parsed
		}

		result, err := h.sync.RecomputeMetrics(c.Request.Context(), start)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

func (h *Handlers) ResolveDuplicatesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.sync.ResolveDuplicates(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	}
}

func (h *Handlers) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := h.sync.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

func (h *Handlers) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := h.sync.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		resp := HealthResponse{
			Status:    "healthy",
			Source:    status.Source,
			Timestamp: time.Now().UTC(),
		}
		if status.LastRun != nil {
			resp.LastRunAt = formatTime(&status.LastRun.StartedAt)
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (h *Handlers) RunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		runs, err := h.sync.Runs(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}
