package ingest

import (
	"time"

	"runcoach/internal/types"
)

// DefaultRange is used when a sync request names no range.
const DefaultRange = types.RangeLast30Days

// TimeRange is a parsed sync selector.
type TimeRange struct {
	Selector string
	// Start is the inclusive cutoff. Zero means unbounded.
	Start time.Time
	// SinceLastSync defers Start to the newest stored activity.
	SinceLastSync bool
}

// ParseTimeRange resolves selector relative to now. Unknown selectors fail
// with ErrCodeValidationTimeRange.
func ParseTimeRange(selector string, now time.Time) (TimeRange, error) {
	if selector == types.RangeSinceLastRun {
		return TimeRange{Selector: selector, SinceLastSync: true}, nil
	}
	start, ok := types.RangeStart(selector, now)
	if !ok {
		return TimeRange{}, types.NewAppErrorWithDetails(types.ErrCodeValidationTimeRange,
			"invalid time range: "+selector, nil, map[string]any{"allowed": types.SyncRanges})
	}
	return TimeRange{Selector: selector, Start: start}, nil
}
