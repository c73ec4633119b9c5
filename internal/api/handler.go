package api

import (
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"linemon-backend/internal/report"
	"linemon-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	reports *report.Service
	webpush *webpush.Options
	now     func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, reports *report.Service, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		reports: reports,
		webpush: webpushOptions,
		now:     time.Now,
	}
}

// intParam parses raw and clamps it to [lo, hi]. Missing or malformed
// values give def.
func intParam(raw string, def, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return min(max(n, lo), hi)
}
