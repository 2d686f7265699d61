package services

import (
	"fmt"
	"strings"
	"time"
)

type DateFilter string

const (
	RangeToday DateFilter = "today"
	RangeWeek  DateFilter = "week"
	RangeMonth DateFilter = "month"
	RangeAll   DateFilter = "all"
)

// DefaultDateFilter is what the dashboard shows before the bartender picks a range.
const DefaultDateFilter = RangeWeek

func ParseDateFilter(s string) (DateFilter, error) {
	switch f := DateFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return DefaultDateFilter, nil
	case RangeToday, RangeWeek, RangeMonth, RangeAll:
		return f, nil
	}
	return "", invalid("range", fmt.Sprintf("unknown date range %q", s))
}

// Bounds returns the inclusive creation-time window containing now, computed in loc.
// Weeks start on Monday. RangeAll returns nil bounds.
func (f DateFilter) Bounds(now time.Time, loc *time.Location) (from, to *time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var start, end time.Time
	switch f {
	case RangeToday:
		start, end = today, today.AddDate(0, 0, 1)
	case RangeWeek:
		sinceMonday := (int(today.Weekday()) + 6) % 7
		start = today.AddDate(0, 0, -sinceMonday)
		end = start.AddDate(0, 0, 7)
	case RangeMonth:
		start = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	default:
		return nil, nil
	}
	end = end.Add(-time.Nanosecond)
	return &start, &end
}

func (f DateFilter) Label() string {
	switch f {
	case RangeToday:
		return "Today"
	case RangeWeek:
		return "This Week"
	case RangeMonth:
		return "This Month"
	}
	return "All Time"
}

// ParseTimeBound accepts RFC 3339 or a YYYY-MM-DD date in loc. A bare date used as an
// upper bound covers the whole day.
func ParseTimeBound(s string, loc *time.Location, upper bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return nil, invalid("", fmt.Sprintf("%q is not a valid date", s))
	}
	if upper {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &d, nil
}
