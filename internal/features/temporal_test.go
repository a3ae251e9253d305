package features

import (
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestTemporalExtract(t *testing.T) {
	extractor := NewTemporalExtractor(domain.DefaultReferenceEpoch)

	t.Run("NightTransaction", func(t *testing.T) {
		// Monday 03:15 UTC.
		ts := time.Date(2024, time.January, 15, 3, 15, 0, 0, time.UTC)
		f := extractor.Extract(ts)

		if f.Hour != 3 {
			t.Errorf("hour = %d, want 3", f.Hour)
		}
		if f.DayOfWeek != 1 {
			t.Errorf("dayOfWeek = %d, want 1 (Monday)", f.DayOfWeek)
		}
		if f.IsWeekend {
			t.Error("Monday is not a weekend")
		}
		if !f.IsNight {
			t.Error("03:15 is night")
		}
		if f.IsBusinessHours {
			t.Error("03:15 is not business hours")
		}
	})

	t.Run("NightBoundsInclusive", func(t *testing.T) {
		cases := []struct {
			hour int
			want bool
		}{
			{21, false},
			{22, true},
			{23, true},
			{0, true},
			{6, true},
			{7, false},
		}
		for _, tc := range cases {
			ts := time.Date(2024, time.March, 6, tc.hour, 0, 0, 0, time.UTC)
			if got := extractor.Extract(ts).IsNight; got != tc.want {
				t.Errorf("hour %d: IsNight = %v, want %v", tc.hour, got, tc.want)
			}
		}
	})

	t.Run("BusinessHours", func(t *testing.T) {
		monday9 := time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)
		if !extractor.Extract(monday9).IsBusinessHours {
			t.Error("Monday 09:00 is business hours")
		}
		monday17 := time.Date(2024, time.June, 3, 17, 0, 0, 0, time.UTC)
		if extractor.Extract(monday17).IsBusinessHours {
			t.Error("17:00 is past business hours")
		}
		saturday10 := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
		if extractor.Extract(saturday10).IsBusinessHours {
			t.Error("weekends are never business hours")
		}
	})

	t.Run("SecondsFromFirstFloors", func(t *testing.T) {
		ts := domain.DefaultReferenceEpoch.Add(90*time.Second + 700*time.Millisecond)
		if got := extractor.Extract(ts).SecondsFromFirst; got != 90 {
			t.Errorf("SecondsFromFirst = %f, want 90", got)
		}
	})

	t.Run("SecondsFromFirstNegativeBeforeReference", func(t *testing.T) {
		ts := domain.DefaultReferenceEpoch.Add(-30*time.Second - 500*time.Millisecond)
		if got := extractor.Extract(ts).SecondsFromFirst; got != -31 {
			t.Errorf("SecondsFromFirst = %f, want -31 (floor, not truncate)", got)
		}
	})
}

func TestIsUnusualHour(t *testing.T) {
	extractor := NewTemporalExtractor(domain.DefaultReferenceEpoch)

	cases := []struct {
		hour int
		want bool
	}{
		{0, false},
		{1, true},
		{3, true},
		{5, true},
		{6, false},
		{22, false},
		{23, true},
	}
	for _, tc := range cases {
		ts := time.Date(2024, time.April, 10, tc.hour, 30, 0, 0, time.UTC)
		if got := extractor.IsUnusualHour(ts); got != tc.want {
			t.Errorf("hour %d: IsUnusualHour = %v, want %v", tc.hour, got, tc.want)
		}
	}
}

func TestTemporalRiskScore(t *testing.T) {
	extractor := NewTemporalExtractor(domain.DefaultReferenceEpoch)

	t.Run("BusinessHoursScoresZero", func(t *testing.T) {
		ts := time.Date(2024, time.June, 4, 11, 0, 0, 0, time.UTC)
		if got := extractor.RiskScore(ts); got != 0 {
			t.Errorf("weekday business hours should score 0, got %f", got)
		}
	})

	t.Run("WeekendNightUnusualCapped", func(t *testing.T) {
		// Sunday 03:00: night + weekend + off-hours + unusual = 1.0 after the cap.
		ts := time.Date(2024, time.June, 2, 3, 0, 0, 0, time.UTC)
		if got := extractor.RiskScore(ts); got != 1.0 {
			t.Errorf("expected capped score 1.0, got %f", got)
		}
	})
}
