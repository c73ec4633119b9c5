// Package retention deletes metric rows older than the configured horizon
// on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"linemon-backend/config"
)

// Store is the part of the metric store the purger needs.
type Store interface {
	PurgeMetricsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Purger runs PurgeMetricsBefore on a schedule.
type Purger struct {
	cfg   config.RetentionConfig
	store Store
	now   func() time.Time
	cron  *cron.Cron
}

// NewPurger builds a purger. The schedule uses six fields, seconds first.
func NewPurger(cfg config.RetentionConfig, s Store) *Purger {
	return &Purger{
		cfg:   cfg,
		store: s,
		now:   time.Now,
		cron:  cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
	}
}

// Purge deletes every metric row older than the retention horizon.
func (p *Purger) Purge(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-time.Duration(p.cfg.Days) * 24 * time.Hour)
	n, err := p.store.PurgeMetricsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention purge before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	log.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("purged old metrics")
	return n, nil
}

// Start schedules the purge and returns once the scheduler runs. The
// scheduler stops when ctx is cancelled.
func (p *Purger) Start(ctx context.Context) error {
	if !p.cfg.Enabled {
		log.Info().Msg("metric retention is disabled")
		return nil
	}
	if p.cfg.Days <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", p.cfg.Days)
	}

	_, err := p.cron.AddFunc(p.cfg.Schedule, func() {
		if _, err := p.Purge(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled retention purge failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", p.cfg.Schedule, err)
	}

	p.cron.Start()
	log.Info().Str("schedule", p.cfg.Schedule).Int("days", p.cfg.Days).Msg("retention scheduler started")

	go func() {
		<-ctx.Done()
		<-p.cron.Stop().Done()
		log.Debug().Msg("retention scheduler stopped")
	}()
	return nil
}
