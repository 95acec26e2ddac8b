package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dnldd/klinescope/shared"
)

// MemoryStore is an in-memory candle store.
type MemoryStore struct {
	data    map[string][]shared.Candle
	dataMtx sync.RWMutex
}

// Ensure the memory store implements the CandleStore, SymbolLister and CandleWriter interfaces.
var _ shared.CandleStore = (*MemoryStore)(nil)
var _ shared.SymbolLister = (*MemoryStore)(nil)
var _ shared.CandleWriter = (*MemoryStore)(nil)

// NewMemoryStore initializes a new in-memory candle store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]shared.Candle)}
}

// Put adds the provided candles to their symbols' series. A candle for a day already
// held replaces the stored one. Nothing is stored when any candle is rejected.
func (s *MemoryStore) Put(_ context.Context, candles []shared.Candle) error {
	for idx := range candles {
		if candles[idx].Symbol == "" {
			return fmt.Errorf("candle %d has no symbol", idx)
		}
	}

	s.dataMtx.Lock()
	defer s.dataMtx.Unlock()

	for idx := range candles {
		c := candles[idx]
		c.Symbol = strings.ToUpper(c.Symbol)

		series := s.data[c.Symbol]
		pos, found := slices.BinarySearchFunc(series, c, func(a, b shared.Candle) int {
			return a.Day().Compare(b.Day())
		})
		if found {
			series[pos] = c
		} else {
			series = slices.Insert(series, pos, c)
		}

		s.data[c.Symbol] = series
	}

	return nil
}

// FetchCandles returns a copy of the series held for the provided symbol.
func (s *MemoryStore) FetchCandles(_ context.Context, symbol string) ([]shared.Candle, error) {
	s.dataMtx.RLock()
	defer s.dataMtx.RUnlock()

	series, ok := s.data[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoLocalData, symbol)
	}

	return slices.Clone(series), nil
}

// ListActiveSymbols returns every symbol held, sorted ascending.
func (s *MemoryStore) ListActiveSymbols(_ context.Context) ([]string, error) {
	s.dataMtx.RLock()
	defer s.dataMtx.RUnlock()

	symbols := make([]string, 0, len(s.data))
	for k := range s.data {
		symbols = append(symbols, k)
	}
	slices.Sort(symbols)

	return symbols, nil
}

// LatestDay returns the most recent day held for the provided symbol.
func (s *MemoryStore) LatestDay(_ context.Context, symbol string) (time.Time, bool, error) {
	s.dataMtx.RLock()
	defer s.dataMtx.RUnlock()

	series := s.data[strings.ToUpper(symbol)]
	if len(series) == 0 {
		return time.Time{}, false, nil
	}

	return series[len(series)-1].Day(), true, nil
}
