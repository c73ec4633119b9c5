package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"linemon-backend/config"
	"linemon-backend/internal/model"
)

// Store is the persistence the tick engine needs.
type Store interface {
	EnsureEquipment(ctx context.Context, ids []string) error
	ListEquipmentIDs(ctx context.Context) ([]string, error)
	LatestProductionSince(ctx context.Context, since time.Time) (map[string]int, error)
	AppendTick(ctx context.Context, records []model.Metric) error
}

// Alerter is told when a unit enters ERROR.
type Alerter interface {
	NotifyError(equipmentID string, at time.Time)
}

// UnitReport is the outcome of one tick for one unit.
type UnitReport struct {
	EquipmentID string
	Output
	Total int
}

// TickReport is the outcome of one tick across the line.
type TickReport struct {
	At    time.Time
	Units []UnitReport
}

// String renders the report as one status line per tick.
func (r TickReport) String() string {
	parts := make([]string, 0, len(r.Units))
	for _, u := range r.Units {
		parts = append(parts, fmt.Sprintf("%s:%s +%d (eff=%.2f, total=%d)", u.EquipmentID, u.Mode, u.Produced, u.Efficiency, u.Total))
	}
	return strings.Join(parts, " | ")
}

// Engine advances every unit on a fixed cadence and appends the results to
// the metric store.
type Engine struct {
	cfg     config.SimulatorConfig
	fleet   *Fleet
	store   Store
	alerter Alerter
	now     func() time.Time
	metrics *engineMetrics
	seeded  bool

	// unalerted holds units whose move into ERROR happened on a tick that
	// was never stored. They alert on the next stored tick if still down.
	unalerted map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithAlerter sets the receiver of ERROR transitions.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRegisterer registers the engine's collectors with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = newEngineMetrics(reg) }
}

// NewEngine creates a tick engine over fleet and store.
func NewEngine(cfg config.SimulatorConfig, fleet *Fleet, store Store, opts ...Option) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	e := &Engine{
		cfg:   cfg,
		fleet: fleet,
		store: store,
		now:   time.Now,

		unalerted: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newEngineMetrics(nil)
	}
	return e
}

// Run ticks immediately and then once per interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	if !e.cfg.Enabled {
		log.Info().Msg("simulator is disabled; not starting")
		return
	}
	log.Info().Dur("interval", e.cfg.Interval).Strs("seed_ids", e.cfg.EquipmentIDs).Msg("starting tick engine")

	e.tickOnce(ctx)

	timer := time.NewTimer(e.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("tick engine shutting down")
			return
		case <-timer.C:
			e.tickOnce(ctx)
			timer.Reset(e.cfg.Interval)
		}
	}
}

func (e *Engine) tickOnce(ctx context.Context) {
	report, err := e.Step(ctx, e.now())
	if err != nil {
		log.Error().Err(err).Msg("tick failed")
		return
	}
	log.Info().Time("at", report.At).Int("units", len(report.Units)).Msg(report.String())
}

// Step runs a single tick at now. All records of the tick are appended in
// one batch.
func (e *Engine) Step(ctx context.Context, now time.Time) (TickReport, error) {
	start := time.Now()
	now = now.UTC()
	report := TickReport{At: now}

	if !e.seeded {
		if err := e.store.EnsureEquipment(ctx, e.cfg.EquipmentIDs); err != nil {
			e.metrics.failures.Inc()
			return report, fmt.Errorf("failed to seed equipment: %w", err)
		}
		e.seeded = true
	}

	ids, err := e.store.ListEquipmentIDs(ctx)
	if err != nil {
		e.metrics.failures.Inc()
		return report, fmt.Errorf("failed to list equipment: %w", err)
	}

	totals, err := e.store.LatestProductionSince(ctx, StorageDayStart(now))
	if err != nil {
		e.metrics.failures.Inc()
		return report, fmt.Errorf("failed to read today's production: %w", err)
	}

	records := make([]model.Metric, 0, len(ids))
	for _, id := range ids {
		out := e.fleet.Tick(id, now)
		total := totals[id] + out.Produced
		records = append(records, model.Metric{
			EquipmentID: id,
			Ts:          now,
			Status:      string(out.Mode),
			Production:  total,
			Efficiency:  out.Efficiency,
		})
		report.Units = append(report.Units, UnitReport{EquipmentID: id, Output: out, Total: total})
	}

	if len(records) > 0 {
		if err := e.store.AppendTick(ctx, records); err != nil {
			e.metrics.failures.Inc()
			for _, u := range report.Units {
				if u.EnteredError() {
					e.unalerted[u.EquipmentID] = true
				}
			}
			return report, fmt.Errorf("failed to append tick: %w", err)
		}
	}

	for _, u := range report.Units {
		e.metrics.observe(u)
		pending := e.unalerted[u.EquipmentID] && u.Mode == ModeError
		delete(e.unalerted, u.EquipmentID)
		if (u.EnteredError() || pending) && e.alerter != nil {
			e.alerter.NotifyError(u.EquipmentID, now)
		}
	}
	e.metrics.ticks.Inc()
	e.metrics.duration.Observe(time.Since(start).Seconds())
	return report, nil
}

// StorageDayStart is midnight of t's date on the storage clock (UTC). The
// cumulative production counters restart there.
func StorageDayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
