package sim

import (
	"time"

	"linemon-backend/config"
)

// Params are the tunables of the per-unit state machine.
type Params struct {
	MTBFRange         [2]time.Duration
	MTTRRange         [2]time.Duration
	IdleIntervalRange [2]time.Duration
	IdleSecondsRange  [2]int
	MinErrorDuration  time.Duration
	FactorRange       [2]float64

	BaseMeanUnits float64
	BaseStdUnits  float64
	IdleYield     float64
	RecoveryBoost float64
	ScrapRange    [2]float64

	RunEfficiency   [2]float64
	IdleEfficiency  [2]float64
	ErrorEfficiency [2]float64
}

// DefaultParams returns the reference line behaviour.
func DefaultParams() Params {
	return Params{
		MTBFRange:         [2]time.Duration{8 * time.Hour, 24 * time.Hour},
		MTTRRange:         [2]time.Duration{2 * time.Minute, 8 * time.Minute},
		IdleIntervalRange: [2]time.Duration{20 * time.Minute, 60 * time.Minute},
		IdleSecondsRange:  [2]int{20, 120},
		MinErrorDuration:  5 * time.Second,
		FactorRange:       [2]float64{0.85, 1.15},

		BaseMeanUnits: 10,
		BaseStdUnits:  3,
		IdleYield:     0.12,
		RecoveryBoost: 1.35,
		ScrapRange:    [2]float64{0.02, 0.10},

		RunEfficiency:   [2]float64{0.86, 0.98},
		IdleEfficiency:  [2]float64{0.45, 0.7},
		ErrorEfficiency: [2]float64{0.05, 0.2},
	}
}

// ParamsFromConfig overlays the non-zero simulator settings on DefaultParams.
func ParamsFromConfig(cfg config.SimulatorConfig) Params {
	p := DefaultParams()
	if r := cfg.MTBFHoursRange; validRange(r) {
		p.MTBFRange = [2]time.Duration{hours(r[0]), hours(r[1])}
	}
	if r := cfg.MTTRMinutesRange; validRange(r) {
		p.MTTRRange = [2]time.Duration{minutes(r[0]), minutes(r[1])}
	}
	if r := cfg.IdleIntervalMinutesRange; validRange(r) {
		p.IdleIntervalRange = [2]time.Duration{minutes(r[0]), minutes(r[1])}
	}
	if r := cfg.IdleDurationSecondsRange; r[0] > 0 && r[1] >= r[0] {
		p.IdleSecondsRange = r
	}
	if r := cfg.ScrapRateRange; r[1] > 0 && r[0] >= 0 && r[1] >= r[0] && r[1] < 1 {
		p.ScrapRange = r
	}
	if cfg.RecoveryBoost > 0 {
		p.RecoveryBoost = cfg.RecoveryBoost
	}
	return p
}

func validRange(r [2]float64) bool {
	return r[0] > 0 && r[1] >= r[0]
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
