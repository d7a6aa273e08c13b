package testutil

import (
	"time"

	"pitloader/internal/calendar"
	"pitloader/pkg/contracts/domain"
)

// Day parses a YYYY-MM-DD date and panics on malformed input
func Day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// January2014 returns every calendar day of January 2014 except the given
// ones, so announcements can be placed on non-trading days.
func January2014(closed ...string) *calendar.Calendar {
	skip := make(map[time.Time]bool, len(closed))
	for _, c := range closed {
		skip[Day(c)] = true
	}

	var days []time.Time
	for d := Day("2014-01-01"); d.Before(Day("2014-02-01")); d = d.AddDate(0, 0, 1) {
		if !skip[d] {
			days = append(days, d)
		}
	}
	return calendar.New(days)
}

// BuybackRow is one raw authorization in fixture form
type BuybackRow struct {
	Asset      domain.AssetID
	Knowledge  string
	Reference  string
	CashAmount any
	ShareCount any
}

// BuybackRows is the two-authorization history used across loader tests:
// asset 0 announces on 01-04 and 01-09 and each announcement becomes known
// the following day. Asset 1 has no events.
func BuybackRows() []BuybackRow {
	return []BuybackRow{
		{Asset: 0, Knowledge: "2014-01-05", Reference: "2014-01-04", CashAmount: 10.0, ShareCount: 1.0},
		{Asset: 0, Knowledge: "2014-01-10", Reference: "2014-01-09", CashAmount: 20.0, ShareCount: 15.0},
	}
}
