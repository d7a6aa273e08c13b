package calendar

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"pitloader/pkg/contracts/domain"
)

// dateFormats are the layouts accepted for dates in text inputs
var dateFormats = []string{
	"2006-01-02",          // ISO format
	"2006/01/02",          // Alternative ISO
	"01/02/2006",          // US format
	"01-02-06",            // Excel default date display
	"2006-01-02 15:04:05", // With time
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339,
}

// ParseDate parses a date string in any accepted layout
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if date, err := time.Parse(format, s); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %q", s)
}

// Read builds a calendar from CSV input whose first column holds one trading
// day per row. A leading header row is skipped.
func Read(r io.Reader) (*Calendar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var days []time.Time
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read calendar line %d: %w", line, err)
		}
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}

		day, err := ParseDate(record[0])
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("parse calendar line %d: %w", line, err)
		}
		days = append(days, day)
	}

	if len(days) == 0 {
		return nil, fmt.Errorf("calendar contains no trading days")
	}
	return New(days), nil
}

// LoadFile reads a calendar file from disk
func LoadFile(path string) (*Calendar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calendar file: %w", err)
	}
	defer file.Close()

	return Read(file)
}

// Weekdays returns a calendar of every Monday through Friday in [start, end]
// minus the given holidays. Useful for fixtures and ad-hoc runs.
func Weekdays(start, end time.Time, holidays ...time.Time) *Calendar {
	skip := make(map[time.Time]bool, len(holidays))
	for _, h := range holidays {
		skip[domain.TruncateDay(h)] = true
	}

	var days []time.Time
	end = domain.TruncateDay(end)
	for d := domain.TruncateDay(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday || skip[d] {
			continue
		}
		days = append(days, d)
	}
	return New(days)
}
