package streak

import (
	"fmt"
	"slices"
	"time"

	"github.com/dnldd/klinescope/shared"
)

// LengthSummary aggregates the streaks of a single length across a symbol universe.
type LengthSummary struct {
	Length      int
	RiseCount   int
	FallCount   int
	RiseSymbols []string
	FallSymbols []string
}

// Summary aggregates streaks of every length across a symbol universe for a day.
type Summary struct {
	Date    time.Time
	Lengths []LengthSummary
}

// Length returns the summary for the provided streak length.
func (s *Summary) Length(length int) (*LengthSummary, bool) {
	if length < 1 || length > len(s.Lengths) {
		return nil, false
	}

	return &s.Lengths[length-1], true
}

// Summarize aggregates the provided per-symbol streak records for a day.
//
// Symbol lists are sorted ascending so identical inputs always produce identical
// summaries regardless of the order records were computed in.
func Summarize(date time.Time, maxLength int, records [][]Record) (*Summary, error) {
	err := ValidateLength(maxLength)
	if err != nil {
		return nil, err
	}

	day := shared.DayOf(date)
	summary := &Summary{
		Date:    day,
		Lengths: make([]LengthSummary, maxLength),
	}
	for idx := range summary.Lengths {
		summary.Lengths[idx] = LengthSummary{
			Length:      idx + 1,
			RiseSymbols: []string{},
			FallSymbols: []string{},
		}
	}

	for _, symbolRecords := range records {
		for idx := range symbolRecords {
			rec := &symbolRecords[idx]
			if !rec.ReferenceDate.Equal(day) {
				return nil, fmt.Errorf("record for %s dated %s does not match summary date %s",
					rec.Symbol, rec.ReferenceDate.Format(shared.DateLayout),
					day.Format(shared.DateLayout))
			}
			if rec.Length < 1 || rec.Length > maxLength {
				continue
			}

			ls := &summary.Lengths[rec.Length-1]
			switch rec.Outcome {
			case Rising:
				ls.RiseSymbols = append(ls.RiseSymbols, rec.Symbol)
			case Falling:
				ls.FallSymbols = append(ls.FallSymbols, rec.Symbol)
			}
		}
	}

	for idx := range summary.Lengths {
		ls := &summary.Lengths[idx]
		slices.Sort(ls.RiseSymbols)
		slices.Sort(ls.FallSymbols)
		ls.RiseCount = len(ls.RiseSymbols)
		ls.FallCount = len(ls.FallSymbols)
	}

	return summary, nil
}
