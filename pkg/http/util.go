package http

import (
	"time"

	xutil "RiskGate/pkg/util"
)

// TimeWindow resolves optional from/to query values. Missing values fall back
// to [to-lookback, now); an inverted range is a bad request.
func TimeWindow(fromRaw, toRaw string, now time.Time, lookback time.Duration) (time.Time, time.Time, *AppError) {
	to := xutil.ParseTimeDefault(toRaw, now)
	from := xutil.ParseTimeDefault(fromRaw, to.Add(-lookback))
	if fromRaw != "" {
		if _, ok := xutil.ParseTime(fromRaw); !ok {
			return time.Time{}, time.Time{}, BadRequestErrorf("invalid from: %q", fromRaw).WithParam("field", "from")
		}
	}
	if toRaw != "" {
		if _, ok := xutil.ParseTime(toRaw); !ok {
			return time.Time{}, time.Time{}, BadRequestErrorf("invalid to: %q", toRaw).WithParam("field", "to")
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, BadRequestError("from must be before to")
	}
	return from, to, nil
}

// QueryLimit parses a limit query value clamped to [1, max].
func QueryLimit(raw string, def, max int) int {
	n := xutil.ParseIntDefault(raw, def)
	if n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
