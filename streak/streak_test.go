package streak

import (
	"errors"
	"testing"
	"time"

	"github.com/dnldd/klinescope/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

var day0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// candle creates a candle on the provided day offset that moves from open to close.
func candle(symbol string, day int, open, close int64) shared.Candle {
	o := decimal.NewFromInt(open)
	c := decimal.NewFromInt(close)
	return shared.Candle{
		Symbol:   symbol,
		OpenTime: day0.AddDate(0, 0, day),
		Open:     o,
		High:     decimal.Max(o, c).Add(decimal.NewFromInt(1)),
		Low:      decimal.Min(o, c).Sub(decimal.NewFromInt(1)),
		Close:    c,
	}
}

// outcomes extracts the outcome of each record.
func outcomes(records []Record) []Outcome {
	out := make([]Outcome, len(records))
	for idx := range records {
		out[idx] = records[idx].Outcome
	}

	return out
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		candles   []shared.Candle
		ref       time.Time
		maxLength int
		want      []Outcome
	}{
		{
			name: "four rising days",
			candles: []shared.Candle{
				candle("BTCUSDT", 0, 10, 11), candle("BTCUSDT", 1, 11, 12),
				candle("BTCUSDT", 2, 12, 13), candle("BTCUSDT", 3, 13, 14),
			},
			ref:       day0.AddDate(0, 0, 3),
			maxLength: 4,
			want:      []Outcome{Rising, Rising, Rising, Rising},
		},
		{
			name: "flat day does not break a rise",
			candles: []shared.Candle{
				candle("BTCUSDT", 0, 10, 11), candle("BTCUSDT", 1, 11, 11),
				candle("BTCUSDT", 2, 11, 12),
			},
			ref:       day0.AddDate(0, 0, 2),
			maxLength: 3,
			want:      []Outcome{Rising, Rising, Rising},
		},
		{
			name: "three falling days after a rise",
			candles: []shared.Candle{
				candle("BTCUSDT", 0, 10, 11), candle("BTCUSDT", 1, 11, 10),
				candle("BTCUSDT", 2, 10, 9), candle("BTCUSDT", 3, 9, 8),
			},
			ref:       day0.AddDate(0, 0, 3),
			maxLength: 4,
			want:      []Outcome{Falling, Falling, Falling, Broken},
		},
		{
			name: "history shorter than the longest length",
			candles: []shared.Candle{
				candle("BTCUSDT", 0, 10, 11), candle("BTCUSDT", 1, 11, 12),
			},
			ref:       day0.AddDate(0, 0, 1),
			maxLength: 4,
			want:      []Outcome{Rising, Rising, NotApplicable, NotApplicable},
		},
		{
			name: "gap in history",
			candles: []shared.Candle{
				candle("BTCUSDT", 0, 10, 11), candle("BTCUSDT", 2, 11, 12),
				candle("BTCUSDT", 3, 12, 13),
			},
			ref:       day0.AddDate(0, 0, 3),
			maxLength: 4,
			want:      []Outcome{Rising, Rising, NotApplicable, NotApplicable},
		},
		{
			name: "missing reference day",
			candles: []shared.Candle{
				candle("BTCUSDT", 0, 10, 11), candle("BTCUSDT", 1, 11, 12),
			},
			ref:       day0.AddDate(0, 0, 2),
			maxLength: 2,
			want:      []Outcome{NotApplicable, NotApplicable},
		},
	}

	for _, test := range tests {
		records, err := Detect("BTCUSDT", test.candles, test.ref, test.maxLength)
		assert.NoError(t, err)
		assert.Equal(t, len(records), test.maxLength)
		if diff := cmp.Diff(test.want, outcomes(records)); diff != "" {
			t.Errorf("%s: mismatching outcomes (-want +got):\n%s", test.name, diff)
		}

		for idx := range records {
			assert.Equal(t, records[idx].Length, idx+1)
			assert.Equal(t, records[idx].ReferenceDate, shared.DayOf(test.ref))
			assert.Equal(t, records[idx].Symbol, "BTCUSDT")
		}
	}
}

func TestDetectInvalidLength(t *testing.T) {
	candles := []shared.Candle{candle("BTCUSDT", 0, 10, 11)}

	_, err := Detect("BTCUSDT", candles, day0, 0)
	assert.True(t, errors.Is(err, shared.ErrInvalidStreakLength))

	_, err = Detect("BTCUSDT", candles, day0, MaxLength+1)
	assert.True(t, errors.Is(err, shared.ErrInvalidStreakLength))
}

func TestRecordDirection(t *testing.T) {
	tests := []struct {
		name      string
		record    Record
		wantRise  bool
		wantFall  bool
		wantApply bool
	}{
		{name: "rising", record: Record{Outcome: Rising}, wantRise: true, wantApply: true},
		{name: "falling", record: Record{Outcome: Falling}, wantFall: true, wantApply: true},
		{name: "broken", record: Record{Outcome: Broken}, wantApply: true},
		{name: "not applicable", record: Record{Outcome: NotApplicable}},
	}

	for _, test := range tests {
		assert.Equal(t, test.record.IsConsecutive(shared.Rise), test.wantRise)
		assert.Equal(t, test.record.IsConsecutive(shared.Fall), test.wantFall)
		assert.Equal(t, test.record.IsApplicable(), test.wantApply)

		// Ensure a record is never both a rise and a fall.
		assert.False(t, test.record.IsConsecutive(shared.Rise) && test.record.IsConsecutive(shared.Fall))

		direction, ok := test.record.Direction()
		assert.Equal(t, ok, test.wantRise || test.wantFall)
		if ok {
			assert.Equal(t, direction == shared.Rise, test.wantRise)
		}
	}
}

func TestDetectPrefixConsistency(t *testing.T) {
	// Day directions: rise, fall, rise, rise, flat, rise, fall, fall.
	moves := [][2]int64{{1, 2}, {2, 1}, {1, 2}, {2, 3}, {3, 3}, {3, 4}, {4, 3}, {3, 2}}
	candles := make([]shared.Candle, 0, len(moves))
	for idx, m := range moves {
		candles = append(candles, candle("SOLUSDT", idx, m[0], m[1]))
	}

	// Ensure a run of length n implies a run of length n-1 in the same direction.
	for end := 0; end < len(moves); end++ {
		records, err := Detect("SOLUSDT", candles, day0.AddDate(0, 0, end), MaxLength)
		assert.NoError(t, err)
		for idx := 1; idx < len(records); idx++ {
			switch records[idx].Outcome {
			case Rising, Falling:
				if records[idx-1].Outcome != records[idx].Outcome {
					t.Errorf("day %d: length %d is %s but length %d is %s", end,
						records[idx].Length, records[idx].Outcome,
						records[idx-1].Length, records[idx-1].Outcome)
				}
			}
		}
	}
}
