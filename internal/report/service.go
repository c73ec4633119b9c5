// Package report rebuilds daily totals, error events, maintenance windows and
// chart series from the stored metric records. It only reads.
package report

import (
	"time"

	"linemon-backend/config"
	"linemon-backend/internal/store"
)

// Service answers the read-side queries over a store.
type Service struct {
	store        store.Store
	loc          *time.Location
	fallbackRows int
}

// NewService creates a report service for the business clock in cfg.
func NewService(cfg *config.Config, s store.Store) *Service {
	loc := cfg.Business.Location
	if loc == nil {
		loc = time.FixedZone("UTC+8", 8*60*60)
	}
	rows := cfg.Series.FallbackRows
	if rows <= 0 {
		rows = 200
	}
	return &Service{store: s, loc: loc, fallbackRows: rows}
}
