package aggregate

import (
	"slices"
	"strings"

	"github.com/dnldd/klinescope/position"
	"github.com/dnldd/klinescope/streak"
)

// Order represents a sort order.
type Order int

const (
	Descending Order = iota
	Ascending
)

// String stringifies the provided order.
func (o Order) String() string {
	switch o {
	case Descending:
		return "descending"
	case Ascending:
		return "ascending"
	default:
		return "unknown"
	}
}

// BucketPositions groups the provided position results by bucket.
//
// Grouping is stable: results keep their relative input order within a bucket. Every
// location bucket is present in the returned map, possibly empty. Degenerate results are
// grouped under position.NoRange.
func BucketPositions(results []position.PositionResult) map[position.Bucket][]position.PositionResult {
	groups := make(map[position.Bucket][]position.PositionResult, len(position.Buckets)+1)
	for _, b := range position.Buckets {
		groups[b] = []position.PositionResult{}
	}

	for idx := range results {
		b := results[idx].Bucket
		groups[b] = append(groups[b], results[idx])
	}

	if len(groups[position.NoRange]) == 0 {
		delete(groups, position.NoRange)
	}

	return groups
}

// BucketAmplitudes groups the provided amplitude results by bucket, preserving input order.
func BucketAmplitudes(results []position.AmplitudeResult) map[position.AmplitudeBucket][]position.AmplitudeResult {
	groups := make(map[position.AmplitudeBucket][]position.AmplitudeResult, len(position.AmplitudeBuckets))
	for _, b := range position.AmplitudeBuckets {
		groups[b] = []position.AmplitudeResult{}
	}

	for idx := range results {
		b := results[idx].Bucket
		groups[b] = append(groups[b], results[idx])
	}

	return groups
}

// RankAmplitudes returns a copy of the provided results sorted by amplitude, widest
// first, with ties broken by symbol. A positive limit truncates the ranking.
func RankAmplitudes(results []position.AmplitudeResult, limit int) []position.AmplitudeResult {
	ranked := slices.Clone(results)
	slices.SortStableFunc(ranked, func(a, b position.AmplitudeResult) int {
		if c := b.Amplitude.Cmp(a.Amplitude); c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return ranked
}

// RankPositions returns a copy of the provided results sorted by location ratio in the
// provided order, with ties broken by symbol. Degenerate results are placed last.
func RankPositions(results []position.PositionResult, order Order) []position.PositionResult {
	ranked := slices.Clone(results)
	slices.SortStableFunc(ranked, func(a, b position.PositionResult) int {
		switch {
		case a.Degenerate && !b.Degenerate:
			return 1
		case !a.Degenerate && b.Degenerate:
			return -1
		}

		c := a.LocationRatio.Cmp(b.LocationRatio)
		if order == Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.Symbol, b.Symbol)
	})

	return ranked
}

// BuildRollingStreakTable returns a copy of the provided daily summaries sorted by date.
func BuildRollingStreakTable(summaries []streak.Summary, order Order) []streak.Summary {
	table := slices.Clone(summaries)
	slices.SortStableFunc(table, func(a, b streak.Summary) int {
		if order == Descending {
			return b.Date.Compare(a.Date)
		}
		return a.Date.Compare(b.Date)
	})

	return table
}
