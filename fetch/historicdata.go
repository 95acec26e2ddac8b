package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dnldd/klinescope/shared"
	"github.com/rs/zerolog"
)

const (
	// klineFileExt is the extension of historic kline files.
	klineFileExt = ".json"
)

// HistoricDataConfig represents the historic data source configuration.
type HistoricDataConfig struct {
	// Dir is the directory holding one <SYMBOL>.json kline file per symbol.
	Dir string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *HistoricDataConfig) Validate() error {
	var errs error

	if cfg.Dir == "" {
		errs = errors.Join(errs, fmt.Errorf("historic data directory cannot be empty"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// HistoricData represents historic daily klines stored as json files.
type HistoricData struct {
	cfg *HistoricDataConfig
}

// Ensure HistoricData implements the CandleStore and SymbolLister interfaces.
var _ shared.CandleStore = (*HistoricData)(nil)
var _ shared.SymbolLister = (*HistoricData)(nil)

// NewHistoricData initializes a new historic data source.
func NewHistoricData(cfg *HistoricDataConfig) (*HistoricData, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("reading historic data directory '%s': %w", cfg.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("historic data path '%s' is not a directory", cfg.Dir)
	}

	return &HistoricData{cfg: cfg}, nil
}

// FetchCandles loads the candles of the provided symbol from its kline file.
func (h *HistoricData) FetchCandles(_ context.Context, symbol string) ([]shared.Candle, error) {
	symbol = strings.ToUpper(symbol)
	path := filepath.Join(h.cfg.Dir, symbol+klineFileExt)

	candles, err := shared.LoadKlines(path, symbol)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", shared.ErrNoLocalData, symbol)
		}
		return nil, err
	}

	return candles, nil
}

// ListActiveSymbols returns the symbols with a kline file, sorted ascending.
func (h *HistoricData) ListActiveSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(h.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("listing historic data directory '%s': %w", h.cfg.Dir, err)
	}

	symbols := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), klineFileExt) {
			continue
		}

		symbols = append(symbols, strings.ToUpper(strings.TrimSuffix(name, filepath.Ext(name))))
	}
	slices.Sort(symbols)

	return symbols, nil
}

// Import loads every kline file into the provided candle writer, returning the number
// of candles written.
func (h *HistoricData) Import(ctx context.Context, writer shared.CandleWriter) (int, error) {
	symbols, err := h.ListActiveSymbols(ctx)
	if err != nil {
		return 0, err
	}

	var total int
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		candles, err := h.FetchCandles(ctx, symbol)
		if err != nil {
			return total, fmt.Errorf("loading historic data for %s: %w", symbol, err)
		}
		if len(candles) == 0 {
			continue
		}

		err = writer.Put(ctx, candles)
		if err != nil {
			return total, fmt.Errorf("importing historic data for %s: %w", symbol, err)
		}

		first := candles[0].Day()
		last := candles[len(candles)-1].Day()
		h.cfg.Logger.Info().Msgf("imported %d candles for %s, from %s, to %s", len(candles),
			symbol, first.Format(shared.DateLayout), last.Format(shared.DateLayout))

		total += len(candles)
	}

	return total, nil
}
