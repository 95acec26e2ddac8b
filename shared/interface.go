package shared

import (
	"context"
	"time"
)

// CandleStore defines the requirements for reading locally cached daily candles.
type CandleStore interface {
	// FetchCandles returns the daily candles stored for the provided symbol. Stores with no
	// data for the symbol return an error wrapping ErrNoLocalData.
	FetchCandles(ctx context.Context, symbol string) ([]Candle, error)
}

// SymbolLister defines the requirements for listing the active symbol universe.
type SymbolLister interface {
	// ListActiveSymbols returns the currently tradable symbols.
	ListActiveSymbols(ctx context.Context) ([]string, error)
}

// CandleWriter defines the requirements for persisting daily candles.
type CandleWriter interface {
	// Put stores the provided candles, replacing any already held for the same symbol
	// and day.
	Put(ctx context.Context, candles []Candle) error
	// LatestDay returns the most recent day held for the provided symbol.
	LatestDay(ctx context.Context, symbol string) (time.Time, bool, error)
}

// KlineFetcher defines the requirements for fetching daily klines from an exchange.
type KlineFetcher interface {
	// FetchDailyKlines fetches the daily candles of the provided symbol opening within
	// [start, end].
	FetchDailyKlines(ctx context.Context, symbol string, start time.Time, end time.Time) ([]Candle, error)
}
