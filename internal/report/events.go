package report

import (
	"context"
	"sort"
	"time"

	"linemon-backend/internal/model"
	"linemon-backend/internal/sim"
	"linemon-backend/internal/store"
)

// EventType is the kind of an error event.
type EventType string

const (
	ErrorStart EventType = "ERROR_START"
	ErrorEnd   EventType = "ERROR_END"
)

// Event marks the moment a unit entered or left ERROR.
type Event struct {
	EquipmentID string    `json:"equipment_id"`
	Type        EventType `json:"type"`
	Ts          time.Time `json:"ts"`
}

// Window is one ERROR episode. End is nil while the unit is still down.
type Window struct {
	EquipmentID string     `json:"equipment_id"`
	Start       time.Time  `json:"start_ts"`
	End         *time.Time `json:"end_ts"`
	DurationSec int64      `json:"duration_sec"`
	Ongoing     bool       `json:"ongoing"`
}

// Detect scans records at or after since and reports the ERROR transitions
// and episodes they contain.
//
// prior holds, per unit, the status of its last record before since. A unit
// already in ERROR then is treated as having failed at since. records must be
// ascending in time for each unit. Events come back newest first, windows by
// start newest first.
func Detect(since, now time.Time, prior map[string]string, records []model.Metric) ([]Event, []Window) {
	byUnit := make(map[string][]model.Metric)
	for _, r := range records {
		byUnit[r.EquipmentID] = append(byUnit[r.EquipmentID], r)
	}
	for id := range prior {
		if _, ok := byUnit[id]; !ok {
			byUnit[id] = nil
		}
	}

	events := []Event{}
	windows := []Window{}
	errorStatus := string(sim.ModeError)

	for id, rows := range byUnit {
		down := prior[id] == errorStatus
		var start time.Time
		if down {
			start = since
		}

		for _, r := range rows {
			switch {
			case r.Status == errorStatus && !down:
				down = true
				start = r.Ts
				events = append(events, Event{EquipmentID: id, Type: ErrorStart, Ts: r.Ts})
			case r.Status != errorStatus && down:
				down = false
				end := r.Ts
				events = append(events, Event{EquipmentID: id, Type: ErrorEnd, Ts: end})
				windows = append(windows, Window{
					EquipmentID: id,
					Start:       start,
					End:         &end,
					DurationSec: int64(end.Sub(start) / time.Second),
				})
			}
		}

		if down {
			windows = append(windows, Window{
				EquipmentID: id,
				Start:       start,
				DurationSec: int64(now.Sub(start) / time.Second),
				Ongoing:     true,
			})
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if !events[i].Ts.Equal(events[j].Ts) {
			return events[i].Ts.After(events[j].Ts)
		}
		return events[i].EquipmentID < events[j].EquipmentID
	})
	sort.Slice(windows, func(i, j int) bool {
		if !windows[i].Start.Equal(windows[j].Start) {
			return windows[i].Start.After(windows[j].Start)
		}
		return windows[i].EquipmentID < windows[j].EquipmentID
	})
	return events, windows
}

// detect loads the records for the last window of time and runs Detect.
func (s *Service) detect(ctx context.Context, now time.Time, window time.Duration) ([]Event, []Window, error) {
	since := now.Add(-window)
	var (
		prior   map[string]string
		records []model.Metric
	)
	err := s.store.ReadSnapshot(ctx, func(tx store.Store) error {
		var err error
		if prior, err = tx.LastStatusBefore(ctx, since); err != nil {
			return err
		}
		records, err = tx.MetricsSince(ctx, since)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	events, windows := Detect(since.UTC(), now.UTC(), prior, records)
	return events, windows, nil
}

// Alerts returns at most limit error events of the last window, newest first.
func (s *Service) Alerts(ctx context.Context, now time.Time, window time.Duration, limit int) ([]Event, error) {
	events, _, err := s.detect(ctx, now, window)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Maintenance returns the ERROR episodes of the last window, newest first.
func (s *Service) Maintenance(ctx context.Context, now time.Time, window time.Duration) ([]Window, error) {
	_, windows, err := s.detect(ctx, now, window)
	return windows, err
}
