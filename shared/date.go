package shared

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the format layout for parsing reference dates.
	DateLayout = "2006-01-02"
)

// DayOf truncates the provided time to the start of its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays shifts the provided day by n calendar days.
func AddDays(day time.Time, n int) time.Time {
	return DayOf(day).AddDate(0, 0, n)
}

// ParseDate parses a reference date in the 2006-01-02 layout as a UTC day.
func ParseDate(s string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date '%s': %w", s, err)
	}

	return day, nil
}

// DaySpan returns the inclusive range of days [end-n+1, end] in ascending order.
func DaySpan(end time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}

	end = DayOf(end)
	days := make([]time.Time, n)
	for i := range n {
		days[i] = end.AddDate(0, 0, i-n+1)
	}

	return days
}
