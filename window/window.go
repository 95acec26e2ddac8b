package window

import (
	"fmt"
	"slices"
	"time"

	"github.com/dnldd/klinescope/shared"
)

// Window represents the candles of a symbol within a lookback range ending at a
// reference day.
type Window struct {
	Symbol        string
	ReferenceDate time.Time
	LookbackDays  int
	// Candles holds at most one candle per day, ascending by open time.
	Candles []shared.Candle
	// Rejected is the number of in-range candles excluded for failing validation.
	Rejected int
}

// Start returns the first day covered by the window.
func (w *Window) Start() time.Time {
	return shared.AddDays(w.ReferenceDate, -(w.LookbackDays - 1))
}

// IsEmpty returns whether the window holds no candles.
func (w *Window) IsEmpty() bool {
	return len(w.Candles) == 0
}

// IsComplete returns whether the window holds a candle for every day it covers.
func (w *Window) IsComplete() bool {
	return len(w.Candles) == w.LookbackDays
}

// Last returns the most recent candle of the window.
func (w *Window) Last() (*shared.Candle, bool) {
	if len(w.Candles) == 0 {
		return nil, false
	}

	return &w.Candles[len(w.Candles)-1], true
}

// ReferenceCandle returns the candle opened on the reference day.
func (w *Window) ReferenceCandle() (*shared.Candle, bool) {
	last, ok := w.Last()
	if !ok || !last.Day().Equal(w.ReferenceDate) {
		return nil, false
	}

	return last, true
}

// Tail returns the sub-window of the last n days ending at the reference day.
func (w *Window) Tail(n int) (*Window, error) {
	if n < 1 || n > w.LookbackDays {
		return nil, fmt.Errorf("%w: tail of %d days over a %d day window",
			shared.ErrInvalidLookback, n, w.LookbackDays)
	}

	start := shared.AddDays(w.ReferenceDate, -(n - 1))
	idx, _ := slices.BinarySearchFunc(w.Candles, start, func(c shared.Candle, day time.Time) int {
		return c.Day().Compare(day)
	})

	return &Window{
		Symbol:        w.Symbol,
		ReferenceDate: w.ReferenceDate,
		LookbackDays:  n,
		Candles:       w.Candles[idx:],
	}, nil
}

// Extract returns the window of candles whose day falls within
// [referenceDate - lookbackDays + 1, referenceDate].
//
// The window is anchored to the reference day, never the current time. The provided
// candles need not be sorted and are not modified. When several candles share a day the
// one appearing last in the input is kept. Candles failing validation are excluded and
// counted in the window's Rejected field.
func Extract(candles []shared.Candle, referenceDate time.Time, lookbackDays int) (*Window, error) {
	if lookbackDays < 1 {
		return nil, fmt.Errorf("%w: lookback of %d days", shared.ErrInvalidLookback, lookbackDays)
	}

	ref := shared.DayOf(referenceDate)
	start := shared.AddDays(ref, -(lookbackDays - 1))

	w := &Window{
		ReferenceDate: ref,
		LookbackDays:  lookbackDays,
	}
	if len(candles) > 0 {
		w.Symbol = candles[0].Symbol
	}

	inRange := make([]shared.Candle, 0, lookbackDays)
	for idx := range candles {
		day := candles[idx].Day()
		if day.Before(start) || day.After(ref) {
			continue
		}

		if err := candles[idx].Validate(); err != nil {
			w.Rejected++
			continue
		}

		inRange = append(inRange, candles[idx])
	}

	// A stable sort keeps same-day candles in input order so the last one written wins.
	slices.SortStableFunc(inRange, func(a, b shared.Candle) int {
		return a.Day().Compare(b.Day())
	})

	deduped := inRange[:0]
	for idx := range inRange {
		n := len(deduped)
		if n > 0 && deduped[n-1].Day().Equal(inRange[idx].Day()) {
			deduped[n-1] = inRange[idx]
			continue
		}

		deduped = append(deduped, inRange[idx])
	}

	w.Candles = deduped
	return w, nil
}
