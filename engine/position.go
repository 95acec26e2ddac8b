package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dnldd/klinescope/position"
	"github.com/dnldd/klinescope/shared"
)

// PositionBatch represents the position results of a symbol universe for a day.
type PositionBatch struct {
	ReferenceDate time.Time
	LookbackDays  int
	// Results are ordered by symbol ascending.
	Results []position.PositionResult
	Skipped []shared.Skip
}

// AmplitudeBatch represents the amplitude results of a symbol universe for a day.
type AmplitudeBatch struct {
	ReferenceDate time.Time
	LookbackDays  int
	// Results are ordered by symbol ascending.
	Results []position.AmplitudeResult
	Skipped []shared.Skip
}

// validateLookback asserts the provided lookback covers at least a day.
func validateLookback(lookbackDays int) error {
	if lookbackDays < 1 {
		return fmt.Errorf("%w: lookback of %d days", shared.ErrInvalidLookback, lookbackDays)
	}

	return nil
}

// degenerateSkip returns the skip reason for a degenerate position when those are excluded.
func (e *Engine) degenerateSkip(res *position.PositionResult) error {
	if !e.cfg.SkipDegenerate || !res.Degenerate {
		return nil
	}

	return fmt.Errorf("%w: %s high and low are both %s over %d days", shared.ErrDegenerateRange,
		res.Symbol, res.HighestPrice, res.LookbackDays)
}

// ComputePositions computes the position of every provided symbol for the reference day.
//
// Symbols with insufficient or bad data are reported in the batch's skip list and never
// abort the batch. Only an invalid lookback or context cancellation returns an error.
func (e *Engine) ComputePositions(ctx context.Context, symbols []string, referenceDate time.Time, lookbackDays int) (*PositionBatch, error) {
	err := validateLookback(lookbackDays)
	if err != nil {
		return nil, err
	}

	ref := shared.DayOf(referenceDate)
	symbols = normalizeSymbols(symbols)
	slots := make([]slot[position.PositionResult], len(symbols))

	err = e.forEachSymbol(ctx, symbols, func(ctx context.Context, idx int, symbol string) error {
		key := ResultKey{Symbol: symbol, Date: ref, LookbackDays: lookbackDays}
		if e.cfg.PositionCache != nil {
			if res, ok := e.cfg.PositionCache.Get(key); ok {
				slots[idx].result = &res
				slots[idx].skip = e.degenerateSkip(&res)
				return nil
			}
		}

		w, err := e.extract(ctx, symbol, ref, lookbackDays)
		if err != nil {
			if isFatal(ctx, err) {
				return err
			}
			slots[idx].skip = err
			return nil
		}

		res, err := position.ComputePosition(w)
		if err != nil {
			slots[idx].skip = err
			return nil
		}

		if e.cfg.PositionCache != nil {
			e.cfg.PositionCache.Put(key, *res)
		}
		slots[idx].result = res
		slots[idx].skip = e.degenerateSkip(res)
		return nil
	})
	if err != nil {
		return nil, err
	}

	results, skipped := collect(e, symbols, slots)
	e.cfg.Logger.Info().Msgf("computed %d-day positions for %d symbols on %s, skipped %d",
		lookbackDays, len(results), ref.Format(shared.DateLayout), len(skipped))

	return &PositionBatch{
		ReferenceDate: ref,
		LookbackDays:  lookbackDays,
		Results:       results,
		Skipped:       skipped,
	}, nil
}

// ComputeAmplitudes computes the amplitude of every provided symbol for the reference day.
//
// Skips follow the same rules as ComputePositions; a non-positive low is reported as an
// anomalous skip.
func (e *Engine) ComputeAmplitudes(ctx context.Context, symbols []string, referenceDate time.Time, lookbackDays int) (*AmplitudeBatch, error) {
	err := validateLookback(lookbackDays)
	if err != nil {
		return nil, err
	}

	ref := shared.DayOf(referenceDate)
	symbols = normalizeSymbols(symbols)
	slots := make([]slot[position.AmplitudeResult], len(symbols))

	err = e.forEachSymbol(ctx, symbols, func(ctx context.Context, idx int, symbol string) error {
		key := ResultKey{Symbol: symbol, Date: ref, LookbackDays: lookbackDays}
		if e.cfg.AmplitudeCache != nil {
			if res, ok := e.cfg.AmplitudeCache.Get(key); ok {
				slots[idx].result = &res
				return nil
			}
		}

		w, err := e.extract(ctx, symbol, ref, lookbackDays)
		if err != nil {
			if isFatal(ctx, err) {
				return err
			}
			slots[idx].skip = err
			return nil
		}

		res, err := position.ComputeAmplitude(w)
		if err != nil {
			slots[idx].skip = err
			return nil
		}

		if e.cfg.AmplitudeCache != nil {
			e.cfg.AmplitudeCache.Put(key, *res)
		}
		slots[idx].result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	results, skipped := collect(e, symbols, slots)
	e.cfg.Logger.Info().Msgf("computed %d-day amplitudes for %d symbols on %s, skipped %d",
		lookbackDays, len(results), ref.Format(shared.DateLayout), len(skipped))

	return &AmplitudeBatch{
		ReferenceDate: ref,
		LookbackDays:  lookbackDays,
		Results:       results,
		Skipped:       skipped,
	}, nil
}
