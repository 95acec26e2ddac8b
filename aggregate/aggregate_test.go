package aggregate

import (
	"testing"
	"time"

	"github.com/dnldd/klinescope/position"
	"github.com/dnldd/klinescope/streak"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

var day0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func positionResult(symbol string, ratio string, degenerate bool) position.PositionResult {
	r := decimal.RequireFromString(ratio)
	res := position.PositionResult{
		Symbol:        symbol,
		ReferenceDate: day0,
		LocationRatio: r,
		Degenerate:    degenerate,
		Bucket:        position.ClassifyLocation(r),
	}
	if degenerate {
		res.Bucket = position.NoRange
		res.LocationRatio = decimal.Zero
	}

	return res
}

func amplitudeResult(symbol string, amplitude string) position.AmplitudeResult {
	a := decimal.RequireFromString(amplitude)
	return position.AmplitudeResult{
		Symbol:    symbol,
		Amplitude: a,
		Bucket:    position.ClassifyAmplitude(a),
	}
}

func symbols[T any](results []T, symbol func(T) string) []string {
	out := make([]string, len(results))
	for idx := range results {
		out[idx] = symbol(results[idx])
	}

	return out
}

func positionSymbol(r position.PositionResult) string   { return r.Symbol }
func amplitudeSymbol(r position.AmplitudeResult) string { return r.Symbol }

func TestBucketPositions(t *testing.T) {
	results := []position.PositionResult{
		positionResult("ADAUSDT", "0.9", false),
		positionResult("BTCUSDT", "0.1", false),
		positionResult("DOGEUSDT", "0.95", false),
		positionResult("ETHUSDT", "0.25", false),
		positionResult("SOLUSDT", "0.6", false),
	}

	groups := BucketPositions(results)
	assert.Equal(t, len(groups), 4)

	tests := []struct {
		bucket position.Bucket
		want   []string
	}{
		{bucket: position.Low, want: []string{"BTCUSDT", "ETHUSDT"}},
		{bucket: position.MidLow, want: []string{}},
		{bucket: position.MidHigh, want: []string{"SOLUSDT"}},
		{bucket: position.High, want: []string{"ADAUSDT", "DOGEUSDT"}},
	}

	for _, test := range tests {
		got := symbols(groups[test.bucket], positionSymbol)
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("%s: mismatching symbols (-want +got):\n%s", test.bucket, diff)
		}
	}

	// Ensure degenerate results are grouped separately.
	groups = BucketPositions(append(results, positionResult("XRPUSDT", "0", true)))
	assert.Equal(t, len(groups), 5)
	assert.Equal(t, len(groups[position.NoRange]), 1)
}

func TestBucketAmplitudes(t *testing.T) {
	groups := BucketAmplitudes([]position.AmplitudeResult{
		amplitudeResult("BTCUSDT", "0.1"),
		amplitudeResult("ETHUSDT", "0.45"),
		amplitudeResult("ADAUSDT", "0.05"),
	})

	assert.Equal(t, len(groups), 4)
	assert.Equal(t, len(groups[position.UltraLow]), 2)
	assert.Equal(t, groups[position.UltraLow][0].Symbol, "BTCUSDT")
	assert.Equal(t, len(groups[position.MediumHigh]), 1)
	assert.Equal(t, len(groups[position.UltraHigh]), 0)
}

func TestRankAmplitudes(t *testing.T) {
	results := []position.AmplitudeResult{
		amplitudeResult("BTCUSDT", "0.1"),
		amplitudeResult("SOLUSDT", "0.7"),
		amplitudeResult("ETHUSDT", "0.7"),
		amplitudeResult("ADAUSDT", "0.3"),
	}

	ranked := RankAmplitudes(results, 0)
	want := []string{"ETHUSDT", "SOLUSDT", "ADAUSDT", "BTCUSDT"}
	if diff := cmp.Diff(want, symbols(ranked, amplitudeSymbol)); diff != "" {
		t.Errorf("mismatching ranking (-want +got):\n%s", diff)
	}

	// Ensure the input is untouched and the limit truncates.
	assert.Equal(t, results[0].Symbol, "BTCUSDT")
	assert.Equal(t, len(RankAmplitudes(results, 2)), 2)
}

func TestRankPositions(t *testing.T) {
	results := []position.PositionResult{
		positionResult("XRPUSDT", "0", true),
		positionResult("BTCUSDT", "0.2", false),
		positionResult("ETHUSDT", "0.8", false),
		positionResult("ADAUSDT", "0.2", false),
	}

	desc := RankPositions(results, Descending)
	if diff := cmp.Diff([]string{"ETHUSDT", "ADAUSDT", "BTCUSDT", "XRPUSDT"}, symbols(desc, positionSymbol)); diff != "" {
		t.Errorf("mismatching descending ranking (-want +got):\n%s", diff)
	}

	asc := RankPositions(results, Ascending)
	if diff := cmp.Diff([]string{"ADAUSDT", "BTCUSDT", "ETHUSDT", "XRPUSDT"}, symbols(asc, positionSymbol)); diff != "" {
		t.Errorf("mismatching ascending ranking (-want +got):\n%s", diff)
	}
}

func TestBuildRollingStreakTable(t *testing.T) {
	summaries := []streak.Summary{
		{Date: day0.AddDate(0, 0, 1)},
		{Date: day0},
		{Date: day0.AddDate(0, 0, 2)},
	}

	table := BuildRollingStreakTable(summaries, Descending)
	assert.Equal(t, len(table), 3)
	assert.Equal(t, table[0].Date, day0.AddDate(0, 0, 2))
	assert.Equal(t, table[2].Date, day0)

	table = BuildRollingStreakTable(summaries, Ascending)
	assert.Equal(t, table[0].Date, day0)

	// Ensure the input order is preserved.
	assert.Equal(t, summaries[0].Date, day0.AddDate(0, 0, 1))
}
