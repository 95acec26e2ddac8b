package fetch

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/dnldd/klinescope/shared"
	"github.com/shopspring/decimal"
)

const (
	// dailyInterval is the binance kline interval for daily candles.
	dailyInterval = "1d"
	// maxKlinesPerRequest is the largest page binance serves for a kline request.
	maxKlinesPerRequest = 1500
	// perpetualContract is the contract type of perpetual futures.
	perpetualContract = "PERPETUAL"
	// tradingStatus is the status of symbols open for trading.
	tradingStatus = "TRADING"
)

// BinanceConfig represents the configuration for the binance futures client.
type BinanceConfig struct {
	// APIKey is the binance API key. Market data endpoints do not require one.
	APIKey string
	// SecretKey is the binance API secret.
	SecretKey string
	// BaseURL overrides the futures REST endpoint when set.
	BaseURL string
	// QuoteAsset restricts the listed symbols to the provided quote asset.
	QuoteAsset string
	// Timeout is the timeout for each request.
	Timeout time.Duration
}

// BinanceClient represents the binance USDⓈ-M futures market data client.
type BinanceClient struct {
	cfg    *BinanceConfig
	client *futures.Client
}

// Ensure the BinanceClient implements the KlineFetcher and SymbolLister interfaces.
var _ shared.KlineFetcher = (*BinanceClient)(nil)
var _ shared.SymbolLister = (*BinanceClient)(nil)

// NewBinanceClient instantiates a new binance futures client.
func NewBinanceClient(cfg *BinanceConfig) *BinanceClient {
	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &BinanceClient{
		cfg:    cfg,
		client: client,
	}
}

// parseDecimal parses the provided kline field.
func parseDecimal(field string, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing kline %s %q: %w", field, value, err)
	}

	return d, nil
}

// ParseKline converts the provided binance kline to a candle.
func ParseKline(symbol string, k *futures.Kline) (shared.Candle, error) {
	candle := shared.Candle{
		Symbol:   strings.ToUpper(symbol),
		OpenTime: time.UnixMilli(k.OpenTime).UTC(),
	}

	var err error
	for _, field := range []struct {
		name  string
		dst   *decimal.Decimal
		value string
	}{
		{"open", &candle.Open, k.Open},
		{"high", &candle.High, k.High},
		{"low", &candle.Low, k.Low},
		{"close", &candle.Close, k.Close},
		{"volume", &candle.Volume, k.Volume},
		{"quote volume", &candle.QuoteVolume, k.QuoteAssetVolume},
	} {
		*field.dst, err = parseDecimal(field.name, field.value)
		if err != nil {
			return shared.Candle{}, err
		}
	}

	return candle, nil
}

// FetchDailyKlines fetches the daily candles of the provided symbol opening within
// [start, end], paging through binance's per request limit.
func (c *BinanceClient) FetchDailyKlines(ctx context.Context, symbol string, start time.Time, end time.Time) ([]shared.Candle, error) {
	symbol = strings.ToUpper(symbol)
	from := shared.DayOf(start)
	to := shared.DayOf(end)
	if from.After(to) {
		return nil, fmt.Errorf("start %s is after end %s", from.Format(shared.DateLayout),
			to.Format(shared.DateLayout))
	}

	var candles []shared.Candle
	for !from.After(to) {
		klines, err := c.client.NewKlinesService().
			Symbol(symbol).
			Interval(dailyInterval).
			StartTime(from.UnixMilli()).
			EndTime(to.UnixMilli()).
			Limit(maxKlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching daily klines for %s from %s: %w", symbol,
				from.Format(shared.DateLayout), err)
		}
		if len(klines) == 0 {
			break
		}

		for idx := range klines {
			candle, err := ParseKline(symbol, klines[idx])
			if err != nil {
				return nil, fmt.Errorf("parsing %s kline: %w", symbol, err)
			}
			candles = append(candles, candle)
		}

		next := shared.AddDays(candles[len(candles)-1].Day(), 1)
		if !next.After(from) || len(klines) < maxKlinesPerRequest {
			break
		}
		from = next
	}

	return candles, nil
}

// ListActiveSymbols returns the perpetual contracts currently trading, sorted ascending.
func (c *BinanceClient) ListActiveSymbols(ctx context.Context) ([]string, error) {
	info, err := c.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching exchange info: %w", err)
	}

	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != tradingStatus || string(s.ContractType) != perpetualContract {
			continue
		}
		if c.cfg.QuoteAsset != "" && !strings.EqualFold(s.QuoteAsset, c.cfg.QuoteAsset) {
			continue
		}

		symbols = append(symbols, s.Symbol)
	}
	slices.Sort(symbols)

	return symbols, nil
}
