package features

import (
	"math"
	"time"
)

// TemporalFeatures are the calendar/clock features derived from a
// transaction timestamp. One instance per request.
type TemporalFeatures struct {
	Hour             int     `json:"hour"`      // 0..23
	DayOfWeek        int     `json:"dayOfWeek"` // 0..6, 0 = Sunday
	IsWeekend        bool    `json:"isWeekend"`
	IsNight          bool    `json:"isNight"`
	IsBusinessHours  bool    `json:"isBusinessHours"`
	SecondsFromFirst float64 `json:"secondsFromFirst"`
}

// TemporalExtractor derives temporal features relative to a fixed
// reference instant, the same anchor the training data used.
type TemporalExtractor struct {
	reference time.Time
}

// NewTemporalExtractor creates an extractor anchored at the given reference.
func NewTemporalExtractor(reference time.Time) *TemporalExtractor {
	return &TemporalExtractor{reference: reference.UTC()}
}

// Extract derives the temporal feature group from a timestamp. The
// is_night boundaries are inclusive on both ends: hour 22 and hour 6 both
// count as night.
func (e *TemporalExtractor) Extract(ts time.Time) TemporalFeatures {
	ts = ts.UTC()
	hour := ts.Hour()
	dow := int(ts.Weekday()) // time.Sunday == 0

	weekend := dow == 0 || dow == 6
	night := hour >= 22 || hour <= 6
	business := !weekend && hour >= 9 && hour < 17

	return TemporalFeatures{
		Hour:             hour,
		DayOfWeek:        dow,
		IsWeekend:        weekend,
		IsNight:          night,
		IsBusinessHours:  business,
		SecondsFromFirst: math.Floor(ts.Sub(e.reference).Seconds()),
	}
}

// IsUnusualHour reports whether the hour falls in the early-morning window.
// The upper disjunct's bound of 24 can never exceed what hour >= 23 already
// covers; the historical condition is kept verbatim rather than silently
// rewritten.
func (e *TemporalExtractor) IsUnusualHour(ts time.Time) bool {
	hour := ts.UTC().Hour()
	return (hour >= 1 && hour <= 5) || (hour >= 23 && hour <= 24)
}

// Temporal risk weights. The score is a simple additive heuristic, not a
// learned function.
const (
	nightWeight       = 0.3
	weekendWeight     = 0.2
	offHoursWeight    = 0.2
	unusualHourWeight = 0.3
)

// RiskScore sums the weighted temporal indicator hits, capped at 1.0.
func (e *TemporalExtractor) RiskScore(ts time.Time) float64 {
	f := e.Extract(ts)

	var score float64
	if f.IsNight {
		score += nightWeight
	}
	if f.IsWeekend {
		score += weekendWeight
	}
	if !f.IsBusinessHours {
		score += offHoursWeight
	}
	if e.IsUnusualHour(ts) {
		score += unusualHourWeight
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
