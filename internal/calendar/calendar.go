// Package calendar holds the ordered set of valid trading days used to align
// projected columns and to count business days.
package calendar

import (
	"fmt"
	"sort"
	"time"

	loaderrors "pitloader/internal/errors"
	"pitloader/pkg/contracts/domain"
)

// Calendar is an immutable, sorted, deduplicated sequence of trading days
type Calendar struct {
	days  []time.Time
	index map[time.Time]int
}

// New builds a calendar from trading days in any order. Time-of-day is
// discarded and duplicates collapse.
func New(days []time.Time) *Calendar {
	sorted := make([]time.Time, 0, len(days))
	for _, d := range days {
		if d.IsZero() {
			continue
		}
		sorted = append(sorted, domain.TruncateDay(d))
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	c := &Calendar{index: make(map[time.Time]int, len(sorted))}
	for _, d := range sorted {
		if n := len(c.days); n > 0 && c.days[n-1].Equal(d) {
			continue
		}
		c.index[d] = len(c.days)
		c.days = append(c.days, d)
	}
	return c
}

// Len returns the number of trading days
func (c *Calendar) Len() int { return len(c.days) }

// Days returns a copy of the trading days
func (c *Calendar) Days() []time.Time {
	out := make([]time.Time, len(c.days))
	copy(out, c.days)
	return out
}

// First returns the earliest trading day
func (c *Calendar) First() time.Time {
	if len(c.days) == 0 {
		return time.Time{}
	}
	return c.days[0]
}

// Last returns the latest trading day
func (c *Calendar) Last() time.Time {
	if len(c.days) == 0 {
		return time.Time{}
	}
	return c.days[len(c.days)-1]
}

// Contains reports whether day is a trading day
func (c *Calendar) Contains(day time.Time) bool {
	_, ok := c.index[domain.TruncateDay(day)]
	return ok
}

// Index returns the position of a trading day
func (c *Calendar) Index(day time.Time) (int, bool) {
	i, ok := c.index[domain.TruncateDay(day)]
	return i, ok
}

// SearchIndex returns the position of the first trading day on or after day.
// It returns Len() when day is after the last trading day.
func (c *Calendar) SearchIndex(day time.Time) int {
	day = domain.TruncateDay(day)
	return sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(day) })
}

// Range returns the trading days within [start, end]
func (c *Calendar) Range(start, end time.Time) []time.Time {
	lo := c.SearchIndex(start)
	hi := c.SearchIndex(domain.TruncateDay(end).AddDate(0, 0, 1))
	if lo >= hi {
		return []time.Time{}
	}
	out := make([]time.Time, hi-lo)
	copy(out, c.days[lo:hi])
	return out
}

// BusinessDaysBetween counts the trading days in [from, to). The result is
// negative when from is after to.
func (c *Calendar) BusinessDaysBetween(from, to time.Time) int {
	return c.SearchIndex(to) - c.SearchIndex(from)
}

// Validate checks that days is a strictly ascending subsequence of the
// calendar and returns the calendar position of every day.
func (c *Calendar) Validate(days []time.Time) ([]int, error) {
	positions := make([]int, len(days))
	for i, d := range days {
		pos, ok := c.Index(d)
		if !ok {
			return nil, loaderrors.NewCalendarRangeError(
				fmt.Sprintf("%s is not a trading day", d.Format(domain.DateLayout)),
			).WithContext("index", i)
		}
		if i > 0 && pos <= positions[i-1] {
			return nil, loaderrors.NewCalendarRangeError(
				fmt.Sprintf("trading days are not strictly ascending at %s", d.Format(domain.DateLayout)),
			).WithContext("index", i)
		}
		positions[i] = pos
	}
	return positions, nil
}
