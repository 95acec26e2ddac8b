package streak

import (
	"fmt"
	"time"

	"github.com/dnldd/klinescope/shared"
	"github.com/dnldd/klinescope/window"
)

const (
	// MaxLength is the longest supported streak length in days.
	MaxLength = 7
)

// Outcome represents the classification of a streak length ending at a day.
type Outcome int

const (
	// NotApplicable marks a length without a candle for every one of its days.
	NotApplicable Outcome = iota
	// Broken marks a length whose candles do not all share a direction.
	Broken
	// Rising marks a length where every candle closed at or above its open.
	Rising
	// Falling marks a length where every candle closed below its open.
	Falling
)

// String stringifies the provided outcome.
func (o Outcome) String() string {
	switch o {
	case NotApplicable:
		return "n/a"
	case Broken:
		return "broken"
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return "unknown"
	}
}

// Record represents whether a symbol's last n days ending at a reference day form an
// unbroken run of rises or falls.
type Record struct {
	Symbol        string
	ReferenceDate time.Time
	Length        int
	Outcome       Outcome
}

// IsApplicable returns whether the record had a candle for every day of its length.
func (r *Record) IsApplicable() bool {
	return r.Outcome != NotApplicable
}

// IsConsecutive returns whether the record is an unbroken run in the provided direction.
func (r *Record) IsConsecutive(direction shared.Direction) bool {
	switch direction {
	case shared.Rise:
		return r.Outcome == Rising
	case shared.Fall:
		return r.Outcome == Falling
	default:
		return false
	}
}

// Direction returns the direction of the run, if the record is one.
func (r *Record) Direction() (shared.Direction, bool) {
	switch r.Outcome {
	case Rising:
		return shared.Rise, true
	case Falling:
		return shared.Fall, true
	default:
		return 0, false
	}
}

// ValidateLength asserts the provided maximum streak length is supported.
func ValidateLength(maxLength int) error {
	if maxLength < 1 || maxLength > MaxLength {
		return fmt.Errorf("%w: %d, expected 1 to %d", shared.ErrInvalidStreakLength,
			maxLength, MaxLength)
	}

	return nil
}

// classify returns the outcome of the provided complete window.
func classify(w *window.Window) Outcome {
	if !w.IsComplete() {
		return NotApplicable
	}

	rises := 0
	for idx := range w.Candles {
		if w.Candles[idx].FetchDirection() == shared.Rise {
			rises++
		}
	}

	switch rises {
	case len(w.Candles):
		return Rising
	case 0:
		return Falling
	default:
		return Broken
	}
}

// Detect classifies each streak length from 1 to maxLength ending at the reference day.
//
// Every length is judged on its own days only: length n needs a candle for each day in
// [referenceDate - n + 1, referenceDate] and is Rising only when every one of those
// candles closed at or above its open. The returned records are ordered by length.
func Detect(symbol string, candles []shared.Candle, referenceDate time.Time, maxLength int) ([]Record, error) {
	err := ValidateLength(maxLength)
	if err != nil {
		return nil, err
	}

	full, err := window.Extract(candles, referenceDate, maxLength)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, maxLength)
	for length := 1; length <= maxLength; length++ {
		tail, err := full.Tail(length)
		if err != nil {
			return nil, err
		}

		records = append(records, Record{
			Symbol:        symbol,
			ReferenceDate: full.ReferenceDate,
			Length:        length,
			Outcome:       classify(tail),
		})
	}

	return records, nil
}
