package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/cache"
	"github.com/daaty/dashboard-mobilidade-urbana-main/config"
	"github.com/daaty/dashboard-mobilidade-urbana-main/models/reports"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultPeriodDays = 30
	maxPeriodDays     = 365
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func periodParam(c *gin.Context) int {
	return queryInt(c, "periodo", defaultPeriodDays, 1, maxPeriodDays)
}

func (h *apiHandlers) financeOverview(c *gin.Context) {
	period := periodParam(c)
	resp, err := h.reports.Overview(c.Request.Context(), period)
	if err != nil {
		config.LogError(h.logger, "reports.go", "financeOverview", "Overview", period, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build overview"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *apiHandlers) financeSuppliers(c *gin.Context) {
	period := periodParam(c)
	limit := queryInt(c, "limit", 20, 1, 100)
	resp, err := h.reports.Suppliers(c.Request.Context(), period, limit)
	if err != nil {
		config.LogError(h.logger, "reports.go", "financeSuppliers", "Suppliers", period, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build supplier ranking"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *apiHandlers) financeExport(c *gin.Context) {
	period := periodParam(c)
	grouping, err := h.reports.Grouping(c.Request.Context(), period)
	if err != nil {
		config.LogError(h.logger, "reports.go", "financeExport", "Grouping", period, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load expenses"})
		return
	}
	var buf bytes.Buffer
	if err := reports.ExportGroupedExpenses(&buf, grouping); err != nil {
		config.LogError(h.logger, "reports.go", "financeExport", "ExportGroupedExpenses", period, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build workbook"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="despesas_%dd.xlsx"`, period))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// dateQuery reads an optional YYYY-MM-DD or DD/MM/YYYY query parameter.
// It writes a 400 and returns false when the value does not parse.
func dateQuery(c *gin.Context, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, true
	}
	t, ok := utils.ParseDate(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be YYYY-MM-DD or DD/MM/YYYY"})
	}
	return t, ok
}

func (h *apiHandlers) dailyMetrics(c *gin.Context) {
	var filter reports.DailyMetricsFilter
	var ok bool
	if filter.From, ok = dateQuery(c, "from"); !ok {
		return
	}
	if filter.To, ok = dateQuery(c, "to"); !ok {
		return
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must not be after to"})
		return
	}
	filter.Region = strings.TrimSpace(c.Query("region"))

	resp, err := h.reports.DailyMetrics(c.Request.Context(), filter)
	if err != nil {
		config.LogError(h.logger, "reports.go", "dailyMetrics", "DailyMetrics", filter, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load metrics"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *apiHandlers) cacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, cache.Stats{Backend: "none"})
		return
	}
	c.JSON(http.StatusOK, h.cache.Stats(c.Request.Context()))
}

type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

// invalidateCache only touches dashboard keys; other patterns are rejected.
func (h *apiHandlers) invalidateCache(c *gin.Context) {
	req := invalidateRequest{Pattern: cache.KeyPrefix + ":*"}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	if !strings.HasPrefix(req.Pattern, cache.KeyPrefix+":") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern must start with " + cache.KeyPrefix + ":"})
		return
	}
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{"removed": 0, "pattern": req.Pattern})
		return
	}
	removed, err := h.cache.InvalidatePattern(c.Request.Context(), req.Pattern)
	if err != nil {
		config.LogError(h.logger, "reports.go", "invalidateCache", "InvalidatePattern", req.Pattern, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not invalidate cache"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed, "pattern": req.Pattern})
}
