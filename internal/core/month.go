package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthKey identifies a budget month as "YYYY-MM". The zero value means unset.
type MonthKey string

var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

func NewMonthKey(year, month int) MonthKey {
	t := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return MonthKey(t.Format("2006-01"))
}

// MonthKeyOf returns the month key of t in UTC.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.UTC().Format("2006-01"))
}

func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("parse month key %q: %w", s, ErrInvalidMonth)
	}
	return MonthKey(t.Format("2006-01")), nil
}

func (k MonthKey) IsZero() bool { return k == "" }

// YearMonth splits the key. It returns zeros for an unset or malformed key.
func (k MonthKey) YearMonth() (int, int) {
	t, err := time.Parse("2006-01", string(k))
	if err != nil {
		return 0, 0
	}
	return t.Year(), int(t.Month())
}

func (k MonthKey) AddMonths(n int) MonthKey {
	y, m := k.YearMonth()
	if y == 0 {
		return k
	}
	return NewMonthKey(y, m+n)
}

func (k MonthKey) Before(o MonthKey) bool {
	// "YYYY-MM" sorts lexically
	return string(k) < string(o)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDay builds a UTC date, moving day to the last day of the month when it
// does not exist there (31 in April becomes the 30th).
func ClampDay(year, month, day int) time.Time {
	last := DaysIn(year, month)
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped moves t by n calendar months keeping its day where possible.
// Jan 31 plus one month is Feb 28 (or 29).
func AddMonthsClamped(t time.Time, n int) time.Time {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	d := ClampDay(first.Year(), int(first.Month()), t.Day())
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// ParseMonth accepts 1-12, an English month name, or its three-letter prefix.
func ParseMonth(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, ErrInvalidMonth
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > 12 {
			return 0, ErrInvalidMonth
		}
		return n, nil
	}
	if n, ok := monthNames[s]; ok {
		return n, nil
	}
	if len(s) == 3 {
		for name, n := range monthNames {
			if strings.HasPrefix(name, s) {
				return n, nil
			}
		}
	}
	return 0, ErrInvalidMonth
}

// ValidMonth reports whether month is in 1-12.
func ValidMonth(month int) bool {
	return month >= 1 && month <= 12
}
