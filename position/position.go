package position

import (
	"fmt"
	"time"

	"github.com/dnldd/klinescope/indicator"
	"github.com/dnldd/klinescope/shared"
	"github.com/dnldd/klinescope/window"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PositionResult represents where a symbol's close sits within its lookback range.
type PositionResult struct {
	Symbol        string
	ReferenceDate time.Time
	LookbackDays  int
	HighestPrice  decimal.Decimal
	LowestPrice   decimal.Decimal
	ClosePrice    decimal.Decimal
	PriceRange    decimal.Decimal
	// LocationRatio is (close - low) / range. It is only meaningful when Degenerate is false.
	LocationRatio decimal.Decimal
	// Degenerate is set when the window's highest and lowest prices are equal.
	Degenerate bool
	Bucket     Bucket
	// VWAP is the window's volume weighted average price, zero when it traded no volume.
	VWAP decimal.Decimal
}

// AmplitudeResult represents the spread of a symbol's prices over its lookback range.
type AmplitudeResult struct {
	Symbol        string
	ReferenceDate time.Time
	LookbackDays  int
	HighestPrice  decimal.Decimal
	LowestPrice   decimal.Decimal
	// Amplitude is (high - low) / low.
	Amplitude        decimal.Decimal
	AmplitudePercent decimal.Decimal
	Bucket           AmplitudeBucket
}

// extremes returns the highest high and lowest low of the provided window.
func extremes(w *window.Window) (decimal.Decimal, decimal.Decimal) {
	highest := w.Candles[0].High
	lowest := w.Candles[0].Low
	for idx := 1; idx < len(w.Candles); idx++ {
		highest = decimal.Max(highest, w.Candles[idx].High)
		lowest = decimal.Min(lowest, w.Candles[idx].Low)
	}

	return highest, lowest
}

// requireComplete asserts the window covers every one of its days.
func requireComplete(w *window.Window) error {
	if w == nil {
		return fmt.Errorf("%w: no window", shared.ErrInsufficientData)
	}
	if !w.IsComplete() {
		return fmt.Errorf("%w: %s has %d of %d candles for %d days ending %s",
			shared.ErrInsufficientData, w.Symbol, len(w.Candles), w.LookbackDays,
			w.LookbackDays, w.ReferenceDate.Format(shared.DateLayout))
	}

	return nil
}

// ComputePosition computes the location of the reference day's close within the
// window's high/low range.
//
// The window must hold a candle for each of its days, including the reference day,
// otherwise an error wrapping shared.ErrInsufficientData is returned. A zero-width range
// yields a degenerate result bucketed as NoRange instead of an error.
func ComputePosition(w *window.Window) (*PositionResult, error) {
	err := requireComplete(w)
	if err != nil {
		return nil, err
	}

	ref, ok := w.ReferenceCandle()
	if !ok {
		return nil, fmt.Errorf("%w: %s has no candle for %s", shared.ErrInsufficientData,
			w.Symbol, w.ReferenceDate.Format(shared.DateLayout))
	}

	highest, lowest := extremes(w)
	res := &PositionResult{
		Symbol:        w.Symbol,
		ReferenceDate: w.ReferenceDate,
		LookbackDays:  w.LookbackDays,
		HighestPrice:  highest,
		LowestPrice:   lowest,
		ClosePrice:    ref.Close,
		PriceRange:    highest.Sub(lowest),
	}
	if vwap, ok := indicator.SeriesVWAP(w.Candles); ok {
		res.VWAP = vwap
	}

	if !res.PriceRange.IsPositive() {
		res.Degenerate = true
		res.Bucket = NoRange
		return res, nil
	}

	res.LocationRatio = ref.Close.Sub(lowest).Div(res.PriceRange)
	res.Bucket = ClassifyLocation(res.LocationRatio)

	return res, nil
}

// ComputeAmplitude computes the amplitude of the window's high/low range relative to
// its low.
//
// The window must hold a candle for each of its days. A non-positive low yields an error
// wrapping shared.ErrNonPositiveLow.
func ComputeAmplitude(w *window.Window) (*AmplitudeResult, error) {
	err := requireComplete(w)
	if err != nil {
		return nil, err
	}

	highest, lowest := extremes(w)
	if !lowest.IsPositive() {
		return nil, fmt.Errorf("%w: %s low of %s over %d days ending %s",
			shared.ErrNonPositiveLow, w.Symbol, lowest, w.LookbackDays,
			w.ReferenceDate.Format(shared.DateLayout))
	}

	amplitude := highest.Sub(lowest).Div(lowest)
	return &AmplitudeResult{
		Symbol:           w.Symbol,
		ReferenceDate:    w.ReferenceDate,
		LookbackDays:     w.LookbackDays,
		HighestPrice:     highest,
		LowestPrice:      lowest,
		Amplitude:        amplitude,
		AmplitudePercent: amplitude.Mul(hundred),
		Bucket:           ClassifyAmplitude(amplitude),
	}, nil
}
