package types

import "time"

// Relative time-range selectors accepted by sync and stats.
const (
	RangeLast7Days    = "Last 7 Days"
	RangeLast14Days   = "Last 14 Days"
	RangeLast30Days   = "Last 30 Days"
	RangeLast90Days   = "Last 90 Days"
	RangeLast3Months  = "Last 3 Months"
	RangeLast6Months  = "Last 6 Months"
	RangeLast1Year    = "Last 1 Year"
	RangeThisYear     = "This Year"
	RangeSinceLastRun = "Since Last Sync"
	RangeAllTime      = "All Time"
)

// SyncRanges lists the selectors a sync accepts, in display order.
var SyncRanges = []string{
	RangeLast7Days, RangeLast14Days, RangeLast30Days, RangeLast90Days,
	RangeLast3Months, RangeLast6Months, RangeLast1Year, RangeThisYear,
	RangeSinceLastRun, RangeAllTime,
}

// StatsPeriods lists the periods the stats overview reports, in display
// order.
var StatsPeriods = []string{
	RangeLast7Days, RangeLast30Days, RangeLast3Months,
	RangeLast6Months, RangeLast1Year, RangeAllTime,
}

var lookbackDays = map[string]int{
	RangeLast7Days:   7,
	RangeLast14Days:  14,
	RangeLast30Days:  30,
	RangeLast90Days:  90,
	RangeLast3Months: 90,
	RangeLast6Months: 180,
	RangeLast1Year:   365,
}

// RangeStart resolves a selector that does not depend on stored state to
// its inclusive lower bound. All Time resolves to the zero time. ok is false
// for unknown selectors and for Since Last Sync.
func RangeStart(selector string, now time.Time) (start time.Time, ok bool) {
	now = now.UTC()
	if days, found := lookbackDays[selector]; found {
		return now.AddDate(0, 0, -days), true
	}
	switch selector {
	case RangeThisYear:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), true
	case RangeAllTime:
		return time.Time{}, true
	}
	return time.Time{}, false
}
