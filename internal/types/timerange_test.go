package types

import (
	"testing"
	"time"
)

func TestRangeStart(t *testing.T) {
	now := time.Date(2024, 8, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		selector string
		want     time.Time
		ok       bool
	}{
		{RangeLast7Days, now.AddDate(0, 0, -7), true},
		{RangeLast14Days, now.AddDate(0, 0, -14), true},
		{RangeLast30Days, now.AddDate(0, 0, -30), true},
		{RangeLast90Days, now.AddDate(0, 0, -90), true},
		{RangeLast3Months, now.AddDate(0, 0, -90), true},
		{RangeLast6Months, now.AddDate(0, 0, -180), true},
		{RangeLast1Year, now.AddDate(0, 0, -365), true},
		{RangeThisYear, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{RangeAllTime, time.Time{}, true},
		{RangeSinceLastRun, time.Time{}, false},
		{"Last Fortnight", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := RangeStart(tt.selector, now)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("RangeStart(%q) = %v, %v; want %v, %v", tt.selector, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRangeStart_NormalizesToUTC(t *testing.T) {
	tz := time.FixedZone("UTC+10", 10*3600)
	// 2025-01-01 05:00 local is still 2024 in UTC.
	now := time.Date(2025, 1, 1, 5, 0, 0, 0, tz)

	got, ok := RangeStart(RangeThisYear, now)
	if !ok || got.Year() != 2024 {
		t.Errorf("expected This Year to resolve in UTC, got %v", got)
	}
}

func TestStatsPeriodsResolve(t *testing.T) {
	for _, p := range StatsPeriods {
		if _, ok := RangeStart(p, time.Now()); !ok {
			t.Errorf("stats period %q does not resolve", p)
		}
	}
}
