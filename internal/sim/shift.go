package sim

import "time"

// ShiftMultiplier scales production by the UTC hour of t: low overnight and
// over lunch, full during the day shifts, reduced in the evening.
func ShiftMultiplier(t time.Time) float64 {
	switch h := t.UTC().Hour(); {
	case h < 7:
		return 0.6
	case h < 12:
		return 1.0
	case h < 13:
		return 0.4
	case h < 18:
		return 1.0
	case h < 22:
		return 0.8
	default:
		return 0.6
	}
}
