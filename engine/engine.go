package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dnldd/klinescope/cache"
	"github.com/dnldd/klinescope/position"
	"github.com/dnldd/klinescope/shared"
	"github.com/dnldd/klinescope/window"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultWorkers is the default number of symbols processed concurrently.
	defaultWorkers = 8
)

// ResultKey identifies a cached per-symbol result.
type ResultKey struct {
	Symbol       string
	Date         time.Time
	LookbackDays int
}

// EngineConfig represents the analytics engine configuration.
type EngineConfig struct {
	// Store supplies the daily candles of each symbol.
	Store shared.CandleStore
	// Workers is the maximum number of symbols processed concurrently.
	Workers int
	// PositionCache optionally memoizes position results across batches.
	PositionCache *cache.Cache[ResultKey, position.PositionResult]
	// AmplitudeCache optionally memoizes amplitude results across batches.
	AmplitudeCache *cache.Cache[ResultKey, position.AmplitudeResult]
	// SkipDegenerate reports positions over a zero price range as skipped instead of
	// returning them with the no-range bucket.
	SkipDegenerate bool
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("candle store cannot be nil"))
	}
	if cfg.Workers < 0 {
		errs = errors.Join(errs, fmt.Errorf("workers cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Stats represents the running totals of an engine.
type Stats struct {
	Processed uint64
	Skipped   uint64
}

// Engine computes position, amplitude and streak analytics across a symbol universe.
type Engine struct {
	cfg       *EngineConfig
	processed atomic.Uint64
	skipped   atomic.Uint64
}

// NewEngine initializes a new analytics engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers
	}

	return &Engine{cfg: cfg}, nil
}

// Stats returns the number of symbols processed and skipped since the engine started.
func (e *Engine) Stats() Stats {
	return Stats{
		Processed: e.processed.Load(),
		Skipped:   e.skipped.Load(),
	}
}

// normalizeSymbols returns the provided symbols uppercased, deduplicated and sorted.
func normalizeSymbols(symbols []string) []string {
	set := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			set = append(set, s)
		}
	}
	slices.Sort(set)

	return slices.Compact(set)
}

// forEachSymbol runs the provided function for every symbol with bounded concurrency.
//
// Cancellation is checked once per symbol. The function only returns an error for
// conditions that must abort the batch.
func (e *Engine) forEachSymbol(ctx context.Context, symbols []string, fn func(ctx context.Context, idx int, symbol string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for idx, symbol := range symbols {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			return fn(gctx, idx, symbol)
		})
	}

	err := g.Wait()
	if err != nil {
		return err
	}

	return ctx.Err()
}

// fetchCandles fetches the candles of the provided symbol. A store with no data for the
// symbol yields an empty series.
func (e *Engine) fetchCandles(ctx context.Context, symbol string) ([]shared.Candle, error) {
	candles, err := e.cfg.Store.FetchCandles(ctx, symbol)
	switch {
	case err == nil:
		return candles, nil
	case errors.Is(err, shared.ErrNoLocalData):
		return nil, nil
	default:
		return nil, fmt.Errorf("fetching candles for %s: %w", symbol, err)
	}
}

// extract fetches the candles of the provided symbol and extracts its window.
func (e *Engine) extract(ctx context.Context, symbol string, ref time.Time, lookbackDays int) (*window.Window, error) {
	candles, err := e.fetchCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}

	w, err := window.Extract(candles, ref, lookbackDays)
	if err != nil {
		return nil, err
	}

	w.Symbol = symbol
	if w.Rejected > 0 {
		e.cfg.Logger.Warn().Msgf("excluded %d invalid candles for %s between %s and %s",
			w.Rejected, symbol, w.Start().Format(shared.DateLayout),
			w.ReferenceDate.Format(shared.DateLayout))
	}

	return w, nil
}

// recordSkip logs the provided skip reason and updates the skip count.
func (e *Engine) recordSkip(symbol string, reason error) shared.Skip {
	e.skipped.Inc()
	switch {
	case !shared.IsDataError(reason):
		e.cfg.Logger.Error().Msgf("unable to process %s: %v", symbol, reason)
	case errors.Is(reason, shared.ErrNonPositiveLow):
		e.cfg.Logger.Warn().Msgf("anomalous data, skipping %s: %v", symbol, reason)
	default:
		e.cfg.Logger.Debug().Msgf("skipping %s: %v", symbol, reason)
	}

	return shared.Skip{Symbol: symbol, Reason: reason}
}

// slot holds the outcome of a single symbol's computation.
type slot[T any] struct {
	result *T
	skip   error
}

// collect gathers the results and skips of the provided slots in symbol order.
func collect[T any](e *Engine, symbols []string, slots []slot[T]) ([]T, []shared.Skip) {
	results := make([]T, 0, len(slots))
	var skipped []shared.Skip
	for idx := range slots {
		switch {
		case slots[idx].skip != nil:
			skipped = append(skipped, e.recordSkip(symbols[idx], slots[idx].skip))
		case slots[idx].result != nil:
			e.processed.Inc()
			results = append(results, *slots[idx].result)
		}
	}

	return results, skipped
}

// isFatal returns whether the provided per-symbol error must abort a batch.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, shared.ErrInvalidLookback) ||
		errors.Is(err, shared.ErrInvalidStreakLength)
}
