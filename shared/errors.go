package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when a window holds fewer candles than required or
	// lacks the reference day candle.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateRange is returned when the highest and lowest prices of a window are equal.
	ErrDegenerateRange = errors.New("degenerate range")
	// ErrInvalidCandle is returned when a candle violates its price invariants.
	ErrInvalidCandle = errors.New("invalid candle")
	// ErrNonPositiveLow is returned when an amplitude is requested over a non-positive low.
	ErrNonPositiveLow = errors.New("non-positive low price")
	// ErrNoLocalData is returned by candle stores with no data for a symbol.
	ErrNoLocalData = errors.New("no local data")
	// ErrInvalidLookback is returned for lookback windows shorter than a day.
	ErrInvalidLookback = errors.New("invalid lookback")
	// ErrInvalidStreakLength is returned for streak lengths outside of the supported range.
	ErrInvalidStreakLength = errors.New("invalid streak length")
)

// Skip records a symbol left out of a batch computation and why.
type Skip struct {
	Symbol string
	Reason error
}

// String stringifies the provided skip.
func (s Skip) String() string {
	return fmt.Sprintf("%s: %v", s.Symbol, s.Reason)
}

// IsDataError returns whether the provided error is a per-symbol data quality condition
// rather than a caller contract violation.
func IsDataError(err error) bool {
	switch {
	case errors.Is(err, ErrInsufficientData),
		errors.Is(err, ErrDegenerateRange),
		errors.Is(err, ErrInvalidCandle),
		errors.Is(err, ErrNonPositiveLow),
		errors.Is(err, ErrNoLocalData):
		return true
	default:
		return false
	}
}
