package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/galkatzh/JAMD-events/internal/event"
)

var (
	sameMonthRange  = regexp.MustCompile(`^(\p{L}+)\s+(\d{1,2})\s*-\s*(\d{1,2})$`)
	crossMonthRange = regexp.MustCompile(`^(\p{L}+)\s+(\d{1,2})\s*-\s*(\p{L}+)\s+(\d{1,2})$`)
	wholeMonth      = regexp.MustCompile(`^(\p{L}+)$`)
)

const isoDate = "2006-01-02"

// ParseDateRange parses a date range relative to now.
//
// Supported formats:
//   - "Mar 1-15" or "March 1-15" - Same month, different days
//   - "March 1 - April 15" - Different months
//   - "March" - Entire month
//
// Hebrew month names ("מרץ", "במרץ") are accepted wherever an English one is.
// A month earlier than now's month is taken to be next year, and a range
// whose end month precedes its start month ends next year.
//
// Bounds are in now's location, from 00:00:00 to 23:59:59.
func ParseDateRange(input string, now time.Time) (*time.Time, *time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil, fmt.Errorf("date range cannot be empty")
	}
	loc := now.Location()

	if m := sameMonthRange.FindStringSubmatch(input); m != nil {
		month, err := parseMonth(m[1])
		if err != nil {
			return nil, nil, err
		}
		year := yearFor(month, now)
		from, err := day(year, month, m[2], loc, false)
		if err != nil {
			return nil, nil, err
		}
		to, err := day(year, month, m[3], loc, true)
		if err != nil {
			return nil, nil, err
		}
		return ordered(from, to)
	}

	if m := crossMonthRange.FindStringSubmatch(input); m != nil {
		month1, err := parseMonth(m[1])
		if err != nil {
			return nil, nil, err
		}
		month2, err := parseMonth(m[3])
		if err != nil {
			return nil, nil, err
		}
		year1 := yearFor(month1, now)
		year2 := year1
		if month2 < month1 {
			year2++
		}
		from, err := day(year1, month1, m[2], loc, false)
		if err != nil {
			return nil, nil, err
		}
		to, err := day(year2, month2, m[4], loc, true)
		if err != nil {
			return nil, nil, err
		}
		return ordered(from, to)
	}

	if m := wholeMonth.FindStringSubmatch(input); m != nil {
		month, err := parseMonth(m[1])
		if err != nil {
			return nil, nil, err
		}
		year := yearFor(month, now)
		from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		// day 0 of the next month is the last day of this one
		to := time.Date(year, month+1, 0, 23, 59, 59, 0, loc)
		return &from, &to, nil
	}

	return nil, nil, fmt.Errorf("invalid date range format. Use 'Mar 1-15', 'March 1 - April 15', or 'March'")
}

// ParseDate parses a YYYY-MM-DD date in loc. With endOfDay the result is
// the last second of that day, for use as an inclusive upper bound.
func ParseDate(input string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	t, err := time.ParseInLocation(isoDate, strings.TrimSpace(input), loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", input, err)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return &t, nil
}

var englishMonths = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

func parseMonth(name string) (time.Month, error) {
	if m, ok := englishMonths[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m, nil
	}
	if m, ok := event.LookupMonth(name); ok {
		return m, nil
	}
	return 0, fmt.Errorf("invalid month: %s", name)
}

func yearFor(month time.Month, now time.Time) int {
	if month < now.Month() {
		return now.Year() + 1
	}
	return now.Year()
}

// day builds a bound for a day of month, rejecting days the month lacks
func day(year int, month time.Month, s string, loc *time.Location, endOfDay bool) (time.Time, error) {
	d, err := strconv.Atoi(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day: %s", s)
	}
	t := time.Date(year, month, d, 0, 0, 0, 0, loc)
	if t.Month() != month || t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid day: %s %d", month, d)
	}
	if endOfDay {
		t = time.Date(year, month, d, 23, 59, 59, 0, loc)
	}
	return t, nil
}

func ordered(from, to time.Time) (*time.Time, *time.Time, error) {
	if from.After(to) {
		return nil, nil, fmt.Errorf("start date must be before end date")
	}
	return &from, &to, nil
}
