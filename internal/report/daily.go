package report

import (
	"context"
	"math"
	"time"

	"linemon-backend/internal/sim"
	"linemon-backend/internal/store"
)

// Boundaries are the cumulative readings of one unit around the two day
// starts. A missing reading is 0.
type Boundaries struct {
	BeforeS      int // last value strictly before the business-day start
	LatestAfterS int // newest value at or after the business-day start
	BeforeU      int // last value strictly before storage-clock midnight
	LatestAfterU int // newest value at or after storage-clock midnight
}

// Contribution is the production of one unit since the business-day start.
// When storage-clock midnight falls after the business-day start the counter
// restarted in between, so the day is stitched from the two segments.
func Contribution(b Boundaries, crossed bool) int {
	if !crossed {
		return max(0, b.LatestAfterS-b.BeforeS)
	}
	return max(0, b.BeforeU-b.BeforeS) + max(0, b.LatestAfterU)
}

// DayCutoffs returns the business-day start S and storage-clock midnight U
// for now, both in UTC, and whether U lies after S.
func DayCutoffs(now time.Time, loc *time.Location) (s, u time.Time, crossed bool) {
	local := now.In(loc)
	s = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
	u = sim.StorageDayStart(now)
	return s, u, u.After(s)
}

// Daily is the production of the current business day.
type Daily struct {
	BusinessDayStart time.Time
	StorageDayStart  time.Time
	Crossed          bool
	Total            int
	ByEquipment      map[string]int
}

// DailyProduction sums every known unit's contribution for the business day
// containing now.
func (s *Service) DailyProduction(ctx context.Context, now time.Time) (Daily, error) {
	var d Daily
	err := s.store.ReadSnapshot(ctx, func(tx store.Store) error {
		var err error
		d, err = s.daily(ctx, tx, now)
		return err
	})
	return d, err
}

func (s *Service) daily(ctx context.Context, tx store.Store, now time.Time) (Daily, error) {
	start, midnight, crossed := DayCutoffs(now, s.loc)
	d := Daily{
		BusinessDayStart: start,
		StorageDayStart:  midnight,
		Crossed:          crossed,
		ByEquipment:      make(map[string]int),
	}

	ids, err := tx.ListEquipmentIDs(ctx)
	if err != nil {
		return d, err
	}
	beforeS, err := tx.LastProductionBefore(ctx, start)
	if err != nil {
		return d, err
	}

	var afterS, beforeU, afterU map[string]int
	if crossed {
		if beforeU, err = tx.LastProductionBefore(ctx, midnight); err != nil {
			return d, err
		}
		if afterU, err = tx.LatestProductionSince(ctx, midnight); err != nil {
			return d, err
		}
	} else {
		if afterS, err = tx.LatestProductionSince(ctx, start); err != nil {
			return d, err
		}
	}

	for _, id := range ids {
		c := Contribution(Boundaries{
			BeforeS:      beforeS[id],
			LatestAfterS: afterS[id],
			BeforeU:      beforeU[id],
			LatestAfterU: afterU[id],
		}, crossed)
		d.ByEquipment[id] = c
		d.Total += c
	}
	return d, nil
}

// Summary is the KPI snapshot shown on the dashboard header.
type Summary struct {
	DailyProduction int       `json:"dailyProduction"`
	Efficiency      float64   `json:"efficiency"`
	Status          string    `json:"status"`
	ActiveEquipment int       `json:"activeEquipment"`
	TotalEquipment  int64     `json:"totalEquipment"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Summary combines the daily total with the newest record.
func (s *Service) Summary(ctx context.Context, now time.Time) (Summary, error) {
	out := Summary{Status: "N/A", UpdatedAt: now.UTC()}
	err := s.store.ReadSnapshot(ctx, func(tx store.Store) error {
		d, err := s.daily(ctx, tx, now)
		if err != nil {
			return err
		}
		out.DailyProduction = d.Total

		latest, err := tx.LatestMetric(ctx)
		if err != nil {
			return err
		}
		if latest != nil {
			out.Efficiency = math.Round(latest.Efficiency*100) / 100
			out.Status = latest.Status
			out.UpdatedAt = latest.Ts.UTC()
			if latest.Status == string(sim.ModeRun) {
				out.ActiveEquipment = 1
			}
		}

		out.TotalEquipment, err = tx.CountEquipment(ctx)
		return err
	})
	return out, err
}
