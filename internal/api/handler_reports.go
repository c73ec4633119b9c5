package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"linemon-backend/internal/model"
)

const (
	alertLimit         = 20
	defaultAlertHours  = 12
	defaultMaintHours  = 24
	maxHours           = 168
	defaultRecentLimit = 60
	maxRecentLimit     = 1000
)

// GetHealth reports that the process is serving.
func GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetSummary returns the dashboard KPIs.
func (h *Handler) GetSummary(c *gin.Context) {
	summary, err := h.reports.Summary(c.Request.Context(), h.now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetSeries returns the chart series for ?range=, optionally starting at
// ?since= (RFC3339).
func (h *Handler) GetSeries(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			log.Debug().Str("since", raw).Msg("ignoring malformed since parameter")
		} else {
			since = parsed
		}
	}

	series, err := h.reports.Series(c.Request.Context(), h.now(), c.Query("range"), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, series)
}

// GetRecentMetrics returns the last ?limit= raw records, oldest first.
func (h *Handler) GetRecentMetrics(c *gin.Context) {
	limit := intParam(c.Query("limit"), defaultRecentLimit, 1, maxRecentLimit)
	metrics, err := h.store.RecentMetrics(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if metrics == nil {
		metrics = []model.Metric{}
	}
	c.JSON(http.StatusOK, gin.H{"items": metrics})
}

// GetAlerts returns the newest error events of the last ?hours=.
func (h *Handler) GetAlerts(c *gin.Context) {
	hours := intParam(c.Query("hours"), defaultAlertHours, 1, maxHours)
	events, err := h.reports.Alerts(c.Request.Context(), h.now(), time.Duration(hours)*time.Hour, alertLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetMaintenance returns the ERROR episodes of the last ?hours=.
func (h *Handler) GetMaintenance(c *gin.Context) {
	hours := intParam(c.Query("hours"), defaultMaintHours, 1, maxHours)
	windows, err := h.reports.Maintenance(c.Request.Context(), h.now(), time.Duration(hours)*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": windows})
}
