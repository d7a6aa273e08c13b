package projection

import (
	"time"

	"pitloader/internal/calendar"
)

// BusinessDaysSince counts the trading days in [reference, day). It is zero
// on the reference day itself and negative when reference falls after day.
// ok is false when reference is null.
func BusinessDaysSince(cal *calendar.Calendar, reference, day time.Time) (n int64, ok bool) {
	if reference.IsZero() {
		return 0, false
	}
	return int64(cal.BusinessDaysBetween(reference, day)), true
}
