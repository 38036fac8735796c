// Package daterange turns relative terms such as "last-month" into concrete
// inclusive date ranges.
package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrUnknownTerm = errors.New("unknown date term")

// Range is an inclusive pair of dates at midnight in the reference
// location.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Terms lists every recognized term.
var Terms = []string{
	"today", "yesterday",
	"this-week", "last-week", "next-week",
	"this-month", "last-month", "next-month",
	"this-quarter", "last-quarter",
	"this-year", "last-year",
}

// Resolve maps term to a date range relative to ref. Matching ignores case
// and surrounding whitespace.
func Resolve(term string, ref time.Time) (Range, error) {
	day := truncate(ref)

	switch strings.ToLower(strings.TrimSpace(term)) {
	case "today":
		return Range{day, day}, nil
	case "yesterday":
		y := day.AddDate(0, 0, -1)
		return Range{y, y}, nil
	case "this-week":
		return week(day, 0), nil
	case "last-week":
		return week(day, -1), nil
	case "next-week":
		return week(day, 1), nil
	case "this-month":
		return month(day, 0), nil
	case "last-month":
		return month(day, -1), nil
	case "next-month":
		return month(day, 1), nil
	case "this-quarter":
		return quarter(day, 0), nil
	case "last-quarter":
		return quarter(day, -1), nil
	case "this-year":
		return year(day, 0), nil
	case "last-year":
		return year(day, -1), nil
	}
	return Range{}, fmt.Errorf("%w: %q", ErrUnknownTerm, term)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// week returns the Monday..Sunday window. Sunday belongs to the week that
// started the previous Monday.
func week(day time.Time, offset int) Range {
	diff := int(day.Weekday()) - int(time.Monday)
	if diff < 0 {
		diff += 7
	}
	monday := day.AddDate(0, 0, -diff+offset*7)
	return Range{monday, monday.AddDate(0, 0, 6)}
}

// monthRange normalizes month overflow through time.Date, so month 0 is
// December of the previous year and month 13 January of the next.
func monthRange(y int, m time.Month, n int, loc *time.Location) Range {
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	last := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
	return Range{first, last}
}

func month(day time.Time, offset int) Range {
	return monthRange(day.Year(), day.Month()+time.Month(offset), 1, day.Location())
}

func quarter(day time.Time, offset int) Range {
	q := (int(day.Month())-1)/3 + offset
	y := day.Year()
	for q < 0 {
		q += 4
		y--
	}
	y += q / 4
	q %= 4
	return monthRange(y, time.Month(q*3+1), 3, day.Location())
}

func year(day time.Time, offset int) Range {
	y := day.Year() + offset
	return Range{
		time.Date(y, time.January, 1, 0, 0, 0, 0, day.Location()),
		time.Date(y, time.December, 31, 0, 0, 0, 0, day.Location()),
	}
}
