package sim

import "github.com/prometheus/client_golang/prometheus"

type engineMetrics struct {
	ticks      prometheus.Counter
	failures   prometheus.Counter
	duration   prometheus.Histogram
	produced   *prometheus.CounterVec
	mode       *prometheus.GaugeVec
	efficiency *prometheus.GaugeVec
}

// newEngineMetrics builds the collectors and registers them with reg when it
// is non-nil.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	m := &engineMetrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linemon_ticks_total",
			Help: "Completed simulator ticks.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linemon_tick_failures_total",
			Help: "Simulator ticks that failed before the batch was stored.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linemon_tick_duration_seconds",
			Help:    "Wall time spent in one simulator tick.",
			Buckets: prometheus.DefBuckets,
		}),
		produced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linemon_units_produced_total",
			Help: "Good units produced, after scrap.",
		}, []string{"equipment_id"}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linemon_equipment_mode",
			Help: "1 for the current mode of each unit, 0 otherwise.",
		}, []string{"equipment_id", "mode"}),
		efficiency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linemon_equipment_efficiency",
			Help: "Efficiency reported on the last tick.",
		}, []string{"equipment_id"}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.failures, m.duration, m.produced, m.mode, m.efficiency)
	}
	return m
}

func (m *engineMetrics) observe(u UnitReport) {
	m.produced.WithLabelValues(u.EquipmentID).Add(float64(u.Produced))
	m.efficiency.WithLabelValues(u.EquipmentID).Set(u.Efficiency)
	for _, mode := range []Mode{ModeRun, ModeIdle, ModeError} {
		v := 0.0
		if mode == u.Mode {
			v = 1
		}
		m.mode.WithLabelValues(u.EquipmentID, string(mode)).Set(v)
	}
}
