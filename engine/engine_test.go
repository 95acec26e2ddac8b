package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dnldd/klinescope/cache"
	"github.com/dnldd/klinescope/position"
	"github.com/dnldd/klinescope/shared"
	"github.com/dnldd/klinescope/store"
	"github.com/dnldd/klinescope/streak"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var day0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func candle(symbol string, day int, open, high, low, close string) shared.Candle {
	return shared.Candle{
		Symbol:   symbol,
		OpenTime: day0.AddDate(0, 0, day),
		Open:     decimal.RequireFromString(open),
		High:     decimal.RequireFromString(high),
		Low:      decimal.RequireFromString(low),
		Close:    decimal.RequireFromString(close),
	}
}

// setupStore returns a store holding five days of BTCUSDT, the last three days of
// ETHUSDT rising and five days of SOLUSDT touching a zero low.
func setupStore(t *testing.T) *store.MemoryStore {
	st := store.NewMemoryStore()
	err := st.Put(context.Background(), []shared.Candle{
		candle("BTCUSDT", 0, "90", "110", "90", "100"),
		candle("BTCUSDT", 1, "100", "108", "95", "97"),
		candle("BTCUSDT", 2, "101", "105", "100", "102"),
		candle("BTCUSDT", 3, "102", "115", "85", "88"),
		candle("BTCUSDT", 4, "93", "98", "92", "96"),

		candle("ETHUSDT", 2, "10", "12", "9", "11"),
		candle("ETHUSDT", 3, "11", "13", "10", "12"),
		candle("ETHUSDT", 4, "12", "14", "11", "13"),

		candle("SOLUSDT", 0, "2", "3", "1", "2"),
		candle("SOLUSDT", 1, "2", "4", "1", "3"),
		candle("SOLUSDT", 2, "3", "5", "0", "4"),
		candle("SOLUSDT", 3, "4", "5", "3", "3"),
		candle("SOLUSDT", 4, "3", "4", "2", "2"),
	})
	assert.NoError(t, err)

	return st
}

func setupEngine(t *testing.T, st shared.CandleStore) *Engine {
	cfg := &EngineConfig{
		Store:   st,
		Workers: 2,
		Logger:  &log.Logger,
	}

	eng, err := NewEngine(cfg)
	assert.NoError(t, err)

	return eng
}

// skipSymbols returns the symbols of the provided skips.
func skipSymbols(skips []shared.Skip) []string {
	symbols := make([]string, 0, len(skips))
	for _, s := range skips {
		symbols = append(symbols, s.Symbol)
	}

	return symbols
}

func TestEngineConfigValidate(t *testing.T) {
	cfg := &EngineConfig{Workers: -1}
	err := cfg.Validate()
	assert.Error(t, err)

	_, err = NewEngine(cfg)
	assert.Error(t, err)

	eng := setupEngine(t, store.NewMemoryStore())
	assert.Equal(t, eng.cfg.Workers, 2)

	eng, err = NewEngine(&EngineConfig{Store: store.NewMemoryStore(), Logger: &log.Logger})
	assert.NoError(t, err)
	assert.Equal(t, eng.cfg.Workers, defaultWorkers)
}

func TestComputePositions(t *testing.T) {
	eng := setupEngine(t, setupStore(t))
	ref := day0.AddDate(0, 0, 4).Add(time.Hour * 13)

	batch, err := eng.ComputePositions(context.Background(),
		[]string{"solusdt", "BTCUSDT", "xrpusdt", "ethusdt", "btcusdt"}, ref, 5)
	assert.NoError(t, err)
	assert.Equal(t, batch.ReferenceDate, day0.AddDate(0, 0, 4))
	assert.Equal(t, batch.LookbackDays, 5)

	assert.Equal(t, len(batch.Results), 2)
	assert.Equal(t, batch.Results[0].Symbol, "BTCUSDT")
	assert.Equal(t, batch.Results[0].LocationRatio.StringFixed(4), "0.3667")
	assert.Equal(t, batch.Results[0].Bucket, position.MidLow)
	assert.Equal(t, batch.Results[1].Symbol, "SOLUSDT")

	if diff := cmp.Diff(skipSymbols(batch.Skipped), []string{"ETHUSDT", "XRPUSDT"}); diff != "" {
		t.Errorf("skipped symbols mismatch (-got +want):\n%s", diff)
	}
	for _, s := range batch.Skipped {
		assert.True(t, errors.Is(s.Reason, shared.ErrInsufficientData))
	}

	stats := eng.Stats()
	assert.Equal(t, stats.Processed, uint64(2))
	assert.Equal(t, stats.Skipped, uint64(2))

	// Ensure an invalid lookback aborts the batch.
	_, err = eng.ComputePositions(context.Background(), []string{"BTCUSDT"}, ref, 0)
	assert.True(t, errors.Is(err, shared.ErrInvalidLookback))

	// Ensure an empty universe yields an empty batch.
	batch, err = eng.ComputePositions(context.Background(), nil, ref, 5)
	assert.NoError(t, err)
	assert.Equal(t, len(batch.Results), 0)
	assert.Equal(t, len(batch.Skipped), 0)
}

func TestComputeAmplitudes(t *testing.T) {
	eng := setupEngine(t, setupStore(t))
	ref := day0.AddDate(0, 0, 4)

	batch, err := eng.ComputeAmplitudes(context.Background(),
		[]string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, ref, 5)
	assert.NoError(t, err)
	assert.Equal(t, len(batch.Results), 1)
	assert.Equal(t, batch.Results[0].Symbol, "BTCUSDT")
	assert.Equal(t, batch.Results[0].AmplitudePercent.StringFixed(2), "35.29")
	assert.Equal(t, batch.Results[0].Bucket, position.MediumLow)

	if diff := cmp.Diff(skipSymbols(batch.Skipped), []string{"ETHUSDT", "SOLUSDT"}); diff != "" {
		t.Errorf("skipped symbols mismatch (-got +want):\n%s", diff)
	}
	assert.True(t, errors.Is(batch.Skipped[0].Reason, shared.ErrInsufficientData))
	assert.True(t, errors.Is(batch.Skipped[1].Reason, shared.ErrNonPositiveLow))

	// A shorter lookback clears the zero low.
	batch, err = eng.ComputeAmplitudes(context.Background(), []string{"SOLUSDT"}, ref, 2)
	assert.NoError(t, err)
	assert.Equal(t, len(batch.Results), 1)
	assert.Equal(t, len(batch.Skipped), 0)
}

func TestResultCaches(t *testing.T) {
	st := setupStore(t)
	positions := cache.New[ResultKey, position.PositionResult]()
	amplitudes := cache.New[ResultKey, position.AmplitudeResult]()
	eng, err := NewEngine(&EngineConfig{
		Store:          st,
		PositionCache:  positions,
		AmplitudeCache: amplitudes,
		Logger:         &log.Logger,
	})
	assert.NoError(t, err)

	ref := day0.AddDate(0, 0, 4)
	_, err = eng.ComputePositions(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, ref, 5)
	assert.NoError(t, err)
	assert.Equal(t, positions.Len(), 1)

	_, err = eng.ComputeAmplitudes(context.Background(), []string{"BTCUSDT"}, ref, 5)
	assert.NoError(t, err)
	assert.Equal(t, amplitudes.Len(), 1)

	// Ensure cached results are served without consulting the store.
	key := ResultKey{Symbol: "DOGEUSDT", Date: ref, LookbackDays: 5}
	positions.Put(key, position.PositionResult{Symbol: "DOGEUSDT", Bucket: position.High})

	batch, err := eng.ComputePositions(context.Background(), []string{"DOGEUSDT"}, ref, 5)
	assert.NoError(t, err)
	assert.Equal(t, len(batch.Results), 1)
	assert.Equal(t, batch.Results[0].Bucket, position.High)
}

func TestDetectStreaks(t *testing.T) {
	eng := setupEngine(t, setupStore(t))
	ref := day0.AddDate(0, 0, 4)

	batch, err := eng.DetectStreaks(context.Background(),
		[]string{"BTCUSDT", "ETHUSDT", "XRPUSDT"}, ref, streak.MaxLength)
	assert.NoError(t, err)
	assert.Equal(t, batch.Summary.Date, ref)
	assert.Equal(t, len(batch.Summary.Lengths), streak.MaxLength)

	if diff := cmp.Diff(skipSymbols(batch.Skipped), []string{"XRPUSDT"}); diff != "" {
		t.Errorf("skipped symbols mismatch (-got +want):\n%s", diff)
	}

	tests := []struct {
		length int
		rise   []string
		fall   []string
	}{
		{length: 1, rise: []string{"BTCUSDT", "ETHUSDT"}, fall: []string{}},
		{length: 2, rise: []string{"ETHUSDT"}, fall: []string{}},
		{length: 3, rise: []string{"ETHUSDT"}, fall: []string{}},
		{length: 4, rise: []string{}, fall: []string{}},
		{length: 7, rise: []string{}, fall: []string{}},
	}

	for _, test := range tests {
		ls, ok := batch.Summary.Length(test.length)
		assert.True(t, ok)
		if diff := cmp.Diff(ls.RiseSymbols, test.rise); diff != "" {
			t.Errorf("length %d rise mismatch (-got +want):\n%s", test.length, diff)
		}
		if diff := cmp.Diff(ls.FallSymbols, test.fall); diff != "" {
			t.Errorf("length %d fall mismatch (-got +want):\n%s", test.length, diff)
		}
		assert.Equal(t, ls.RiseCount, len(test.rise))
		assert.Equal(t, ls.FallCount, len(test.fall))
	}

	// Ensure unsupported lengths abort the batch.
	_, err = eng.DetectStreaks(context.Background(), []string{"BTCUSDT"}, ref, 8)
	assert.True(t, errors.Is(err, shared.ErrInvalidStreakLength))
	_, err = eng.DetectStreaks(context.Background(), []string{"BTCUSDT"}, ref, 0)
	assert.True(t, errors.Is(err, shared.ErrInvalidStreakLength))
}

func TestDetectStreakHistory(t *testing.T) {
	eng := setupEngine(t, setupStore(t))
	end := day0.AddDate(0, 0, 4)

	history, err := eng.DetectStreakHistory(context.Background(),
		[]string{"BTCUSDT", "ETHUSDT", "XRPUSDT"}, end, 2, 3)
	assert.NoError(t, err)
	assert.Equal(t, len(history.Summaries), 2)
	assert.Equal(t, len(history.Skipped), 1)
	assert.Equal(t, history.Symbols, 2)
	assert.Equal(t, history.MaxLength, 3)

	first := history.Summaries[0]
	assert.Equal(t, first.Date, day0.AddDate(0, 0, 3))
	ls, _ := first.Length(1)
	if diff := cmp.Diff(ls.RiseSymbols, []string{"ETHUSDT"}); diff != "" {
		t.Errorf("rise mismatch (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(ls.FallSymbols, []string{"BTCUSDT"}); diff != "" {
		t.Errorf("fall mismatch (-got +want):\n%s", diff)
	}
	ls, _ = first.Length(3)
	assert.Equal(t, ls.RiseCount, 0)

	second := history.Summaries[1]
	assert.Equal(t, second.Date, end)
	ls, _ = second.Length(3)
	if diff := cmp.Diff(ls.RiseSymbols, []string{"ETHUSDT"}); diff != "" {
		t.Errorf("rise mismatch (-got +want):\n%s", diff)
	}

	_, err = eng.DetectStreakHistory(context.Background(), []string{"BTCUSDT"}, end, 0, 3)
	assert.True(t, errors.Is(err, shared.ErrInvalidLookback))
}

// failingStore errors on every fetch.
type failingStore struct{}

func (failingStore) FetchCandles(_ context.Context, symbol string) ([]shared.Candle, error) {
	return nil, errors.New("disk unavailable")
}

func TestStoreFailuresAreSkipped(t *testing.T) {
	eng := setupEngine(t, failingStore{})

	batch, err := eng.ComputePositions(context.Background(), []string{"BTCUSDT"}, day0, 1)
	assert.NoError(t, err)
	assert.Equal(t, len(batch.Results), 0)
	assert.Equal(t, len(batch.Skipped), 1)
	assert.False(t, shared.IsDataError(batch.Skipped[0].Reason))
}

func TestCancellation(t *testing.T) {
	eng := setupEngine(t, setupStore(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.ComputePositions(ctx, []string{"BTCUSDT", "ETHUSDT"}, day0.AddDate(0, 0, 4), 5)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = eng.ComputeAmplitudes(ctx, []string{"BTCUSDT"}, day0.AddDate(0, 0, 4), 5)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = eng.DetectStreaks(ctx, []string{"BTCUSDT"}, day0.AddDate(0, 0, 4), 3)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSkipDegeneratePositions(t *testing.T) {
	st := store.NewMemoryStore()
	err := st.Put(context.Background(), []shared.Candle{
		candle("BTCUSDT", 0, "100", "110", "90", "105"),
		candle("BTCUSDT", 1, "105", "108", "95", "97"),
		candle("USDCUSDT", 0, "1", "1", "1", "1"),
		candle("USDCUSDT", 1, "1", "1", "1", "1"),
	})
	assert.NoError(t, err)
	ref := day0.AddDate(0, 0, 1)

	// Ensure degenerate positions are returned with no range by default.
	eng := setupEngine(t, st)
	batch, err := eng.ComputePositions(context.Background(), []string{"BTCUSDT", "USDCUSDT"}, ref, 2)
	assert.NoError(t, err)
	assert.Equal(t, len(batch.Results), 2)
	assert.Equal(t, batch.Results[1].Bucket, position.NoRange)

	// Ensure degenerate positions are skipped when excluded, including cached ones.
	positions := cache.New[ResultKey, position.PositionResult]()
	eng, err = NewEngine(&EngineConfig{
		Store:          st,
		PositionCache:  positions,
		SkipDegenerate: true,
		Logger:         &log.Logger,
	})
	assert.NoError(t, err)

	for range 2 {
		batch, err = eng.ComputePositions(context.Background(), []string{"BTCUSDT", "USDCUSDT"}, ref, 2)
		assert.NoError(t, err)
		assert.Equal(t, len(batch.Results), 1)
		assert.Equal(t, batch.Results[0].Symbol, "BTCUSDT")
		assert.Equal(t, len(batch.Skipped), 1)
		assert.Equal(t, batch.Skipped[0].Symbol, "USDCUSDT")
		assert.True(t, errors.Is(batch.Skipped[0].Reason, shared.ErrDegenerateRange))
		assert.True(t, shared.IsDataError(batch.Skipped[0].Reason))
	}
	assert.Equal(t, positions.Len(), 2)
}
