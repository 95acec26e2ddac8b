package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dnldd/klinescope/shared"
	"github.com/dnldd/klinescope/streak"
)

// StreakBatch represents the streak summary of a symbol universe for a day.
type StreakBatch struct {
	Summary *streak.Summary
	Skipped []shared.Skip
}

// detectDays classifies the streaks of a symbol for each of the provided days.
func (e *Engine) detectDays(ctx context.Context, symbol string, days []time.Time, maxLength int) ([][]streak.Record, error) {
	candles, err := e.fetchCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}

	records := make([][]streak.Record, len(days))
	for idx, day := range days {
		records[idx], err = streak.Detect(symbol, candles, day, maxLength)
		if err != nil {
			return nil, err
		}
	}

	return records, nil
}

// DetectStreaks classifies the rise and fall streaks of every provided symbol ending at
// the reference day and aggregates them into a summary.
//
// Symbols without a candle on the reference day are reported as skipped. Symbol lists in
// the summary are sorted ascending.
func (e *Engine) DetectStreaks(ctx context.Context, symbols []string, referenceDate time.Time, maxLength int) (*StreakBatch, error) {
	history, err := e.DetectStreakHistory(ctx, symbols, referenceDate, 1, maxLength)
	if err != nil {
		return nil, err
	}

	return &StreakBatch{
		Summary: &history.Summaries[0],
		Skipped: history.Skipped,
	}, nil
}

// StreakHistory represents daily streak summaries over consecutive days.
type StreakHistory struct {
	// Summaries are ordered by date ascending.
	Summaries []streak.Summary
	// Symbols is the number of summarized symbols.
	Symbols int
	// MaxLength is the longest classified streak length.
	MaxLength int
	// Skipped lists symbols that could not be read at all or lacked a candle on the
	// latest day.
	Skipped []shared.Skip
}

// DetectStreakHistory summarizes the streaks of every provided symbol for each of the
// days ending at the provided day. Each symbol's candles are fetched once.
func (e *Engine) DetectStreakHistory(ctx context.Context, symbols []string, end time.Time, days int, maxLength int) (*StreakHistory, error) {
	err := streak.ValidateLength(maxLength)
	if err != nil {
		return nil, err
	}
	if days < 1 {
		return nil, fmt.Errorf("%w: history of %d days", shared.ErrInvalidLookback, days)
	}

	span := shared.DaySpan(end, days)
	symbols = normalizeSymbols(symbols)
	slots := make([]slot[[][]streak.Record], len(symbols))

	err = e.forEachSymbol(ctx, symbols, func(ctx context.Context, idx int, symbol string) error {
		records, err := e.detectDays(ctx, symbol, span, maxLength)
		if err != nil {
			if isFatal(ctx, err) {
				return err
			}
			slots[idx].skip = err
			return nil
		}

		latest := records[len(records)-1]
		if !latest[0].IsApplicable() {
			slots[idx].skip = fmt.Errorf("%w: %s has no candle for %s", shared.ErrInsufficientData,
				symbol, span[len(span)-1].Format(shared.DateLayout))
			return nil
		}

		slots[idx].result = &records
		return nil
	})
	if err != nil {
		return nil, err
	}

	perSymbol, skipped := collect(e, symbols, slots)

	summaries := make([]streak.Summary, 0, len(span))
	for dayIdx, day := range span {
		dayRecords := make([][]streak.Record, 0, len(perSymbol))
		for idx := range perSymbol {
			dayRecords = append(dayRecords, perSymbol[idx][dayIdx])
		}

		summary, err := streak.Summarize(day, maxLength, dayRecords)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, *summary)
	}

	e.cfg.Logger.Info().Msgf("detected streaks for %d symbols over %d days ending %s, skipped %d",
		len(perSymbol), days, span[len(span)-1].Format(shared.DateLayout), len(skipped))

	return &StreakHistory{
		Summaries: summaries,
		Symbols:   len(perSymbol),
		MaxLength: maxLength,
		Skipped:   skipped,
	}, nil
}
