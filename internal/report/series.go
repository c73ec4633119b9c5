package report

import (
	"context"
	"sort"
	"time"

	"linemon-backend/internal/model"
	"linemon-backend/internal/store"
)

// RangeRealtime is the live chart selector.
const RangeRealtime = "realtime"

var ranges = map[string]time.Duration{
	RangeRealtime: 5 * time.Minute,
	"5m":          5 * time.Minute,
	"15m":         15 * time.Minute,
	"30m":         30 * time.Minute,
	"1h":          time.Hour,
	"6h":          6 * time.Hour,
	"12h":         12 * time.Hour,
	"24h":         24 * time.Hour,
	"7d":          7 * 24 * time.Hour,
}

// RangeWindow maps a range selector to its look-back window. Unknown
// selectors become "5m".
func RangeWindow(sel string) (string, time.Duration) {
	if d, ok := ranges[sel]; ok {
		return sel, d
	}
	return "5m", ranges["5m"]
}

// Point is one cumulative production reading.
type Point struct {
	Ts         time.Time `json:"ts"`
	Production int       `json:"production"`
}

// EquipmentSeries is the series of one unit.
type EquipmentSeries struct {
	EquipmentID string  `json:"equipment_id"`
	Points      []Point `json:"points"`
}

// Series is the chart payload: the line total per timestamp and one series
// per unit.
type Series struct {
	Range       string            `json:"range"`
	Total       []Point           `json:"items_total"`
	ByEquipment []EquipmentSeries `json:"items_by_equipment"`
	Fallback    bool              `json:"fallback"`
}

// Series returns the records of the selected range. since, when non-zero,
// replaces the range start. An empty window falls back to the most recent
// rows, and an empty store answers a realtime request with a single zero
// point.
func (s *Service) Series(ctx context.Context, now time.Time, sel string, since time.Time) (Series, error) {
	sel, window := RangeWindow(sel)
	if since.IsZero() {
		since = now.Add(-window)
	}

	out := Series{Range: sel}
	var records []model.Metric
	err := s.store.ReadSnapshot(ctx, func(tx store.Store) error {
		var err error
		if records, err = tx.MetricsSince(ctx, since); err != nil {
			return err
		}
		if len(records) > 0 {
			return nil
		}
		out.Fallback = true
		records, err = tx.RecentMetrics(ctx, s.fallbackRows)
		return err
	})
	if err != nil {
		return Series{}, err
	}

	if len(records) == 0 && sel == RangeRealtime {
		out.Total = []Point{{Ts: now.UTC(), Production: 0}}
		out.ByEquipment = []EquipmentSeries{}
		return out, nil
	}

	out.Total, out.ByEquipment = buildSeries(records)
	return out, nil
}

func buildSeries(records []model.Metric) ([]Point, []EquipmentSeries) {
	totals := make(map[int64]*Point)
	byUnit := make(map[string][]Point)
	for _, r := range records {
		ts := r.Ts.UTC()
		key := ts.UnixNano()
		p, ok := totals[key]
		if !ok {
			p = &Point{Ts: ts}
			totals[key] = p
		}
		p.Production += r.Production
		byUnit[r.EquipmentID] = append(byUnit[r.EquipmentID], Point{Ts: ts, Production: r.Production})
	}

	total := make([]Point, 0, len(totals))
	for _, p := range totals {
		total = append(total, *p)
	}
	sort.Slice(total, func(i, j int) bool { return total[i].Ts.Before(total[j].Ts) })

	ids := make([]string, 0, len(byUnit))
	for id := range byUnit {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	series := make([]EquipmentSeries, 0, len(ids))
	for _, id := range ids {
		points := byUnit[id]
		sort.SliceStable(points, func(i, j int) bool { return points[i].Ts.Before(points[j].Ts) })
		series = append(series, EquipmentSeries{EquipmentID: id, Points: points})
	}
	return total, series
}
