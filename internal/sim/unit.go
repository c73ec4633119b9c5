package sim

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Mode is the operating state of a unit, as persisted in metric rows.
type Mode string

const (
	ModeRun   Mode = "RUN"
	ModeIdle  Mode = "IDLE"
	ModeError Mode = "ERROR"
)

// Unit is the scheduling state of one equipment unit. It lives only in
// memory; a restart draws a fresh schedule.
type Unit struct {
	ID string

	mode       Mode
	stateUntil time.Time // set only while IDLE or ERROR

	// Only consulted while RUN.
	nextFailureAt time.Time
	nextIdleAt    time.Time

	recoveryBoostPending bool

	factor           float64
	mtbf             time.Duration
	mttr             time.Duration
	idleMeanInterval time.Duration
}

// Output is the result of one tick of one unit.
type Output struct {
	Previous   Mode
	Mode       Mode
	Produced   int
	Efficiency float64
	Boosted    bool
}

// EnteredError reports whether this tick moved the unit into ERROR.
func (o Output) EnteredError() bool {
	return o.Mode == ModeError && o.Previous != ModeError
}

func newUnit(id string, now time.Time, p Params, s Sampler) *Unit {
	u := &Unit{
		ID:               id,
		mode:             ModeRun,
		mtbf:             uniformDuration(s, p.MTBFRange),
		mttr:             uniformDuration(s, p.MTTRRange),
		idleMeanInterval: uniformDuration(s, p.IdleIntervalRange),
	}
	u.factor = s.Uniform(p.FactorRange[0], p.FactorRange[1])
	u.nextFailureAt = now.Add(s.Exponential(u.mtbf))
	u.nextIdleAt = now.Add(s.Exponential(u.idleMeanInterval))
	return u
}

func uniformDuration(s Sampler, r [2]time.Duration) time.Duration {
	return time.Duration(s.Uniform(r[0].Seconds(), r[1].Seconds()) * float64(time.Second))
}

// Mode returns the current mode.
func (u *Unit) Mode() Mode { return u.mode }

// Tick advances the unit to now and computes this tick's production.
func (u *Unit) Tick(now time.Time, p Params, s Sampler) Output {
	out := Output{Previous: u.mode}
	u.transition(now, p, s)
	out.Mode = u.mode

	base := math.Max(0, math.Trunc(s.Gaussian(p.BaseMeanUnits, p.BaseStdUnits)))
	base *= ShiftMultiplier(now) * u.factor

	var produced int
	var eff float64
	switch u.mode {
	case ModeError:
		eff = s.Uniform(p.ErrorEfficiency[0], p.ErrorEfficiency[1])
	case ModeIdle:
		produced = int(math.Floor(base * p.IdleYield))
		eff = s.Uniform(p.IdleEfficiency[0], p.IdleEfficiency[1])
	default:
		produced = int(math.Floor(base))
		if u.recoveryBoostPending {
			produced = int(math.Floor(float64(produced) * p.RecoveryBoost))
			u.recoveryBoostPending = false
			out.Boosted = true
		}
		eff = s.Uniform(p.RunEfficiency[0], p.RunEfficiency[1])
	}

	scrap := s.Uniform(p.ScrapRange[0], p.ScrapRange[1])
	produced = int(math.Round(float64(produced) * (1 - scrap)))
	if produced < 0 {
		produced = 0
	}

	out.Produced = produced
	out.Efficiency = round2(eff)
	return out
}

// transition applies expiry, then failure/idle arbitration. Failure wins
// when both are due. nextIdleAt is only rescheduled when an idle episode
// starts, so an idle instant that passed during an ERROR episode fires on
// the first RUN tick after recovery.
func (u *Unit) transition(now time.Time, p Params, s Sampler) {
	if u.mode != ModeRun && !u.stateUntil.IsZero() && !now.Before(u.stateUntil) {
		u.mode = ModeRun
		u.stateUntil = time.Time{}
		u.recoveryBoostPending = true
	}
	if u.mode != ModeRun {
		return
	}

	switch {
	case !now.Before(u.nextFailureAt):
		dur := s.Exponential(u.mttr)
		if dur < p.MinErrorDuration {
			dur = p.MinErrorDuration
		}
		u.mode = ModeError
		u.stateUntil = now.Add(dur)
		u.nextFailureAt = u.stateUntil.Add(s.Exponential(u.mtbf))
	case !now.Before(u.nextIdleAt):
		dur := time.Duration(s.UniformInt(p.IdleSecondsRange[0], p.IdleSecondsRange[1])) * time.Second
		u.mode = ModeIdle
		u.stateUntil = now.Add(dur)
		u.nextIdleAt = u.stateUntil.Add(s.Exponential(u.idleMeanInterval))
	}
}

// Fleet owns the scheduling state of every unit the engine has seen.
type Fleet struct {
	mu      sync.Mutex
	units   map[string]*Unit
	params  Params
	sampler Sampler
}

// NewFleet creates an empty fleet.
func NewFleet(p Params, s Sampler) *Fleet {
	return &Fleet{
		units:   make(map[string]*Unit),
		params:  p,
		sampler: s,
	}
}

// GetOrCreate returns the unit for id, drawing its parameters and first
// schedule on first sight.
func (f *Fleet) GetOrCreate(id string, now time.Time) *Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateLocked(id, now)
}

func (f *Fleet) getOrCreateLocked(id string, now time.Time) *Unit {
	u, ok := f.units[id]
	if !ok {
		u = newUnit(id, now, f.params, f.sampler)
		f.units[id] = u
	}
	return u
}

// Tick advances the unit for id by one step.
func (f *Fleet) Tick(id string, now time.Time) Output {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateLocked(id, now).Tick(now, f.params, f.sampler)
}

// IDs returns the known unit ids in sorted order.
func (f *Fleet) IDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.units))
	for id := range f.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
