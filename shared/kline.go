package shared

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Binance kline array positions.
const (
	klineOpenTime    = 0
	klineOpen        = 1
	klineHigh        = 2
	klineLow         = 3
	klineClose       = 4
	klineVolume      = 5
	klineQuoteVolume = 7
	klineMinFields   = 6
)

// parseDecimal parses a decimal from a json string or number. A missing optional field
// parses as zero, a missing required field is an invalid candle.
func parseDecimal(res gjson.Result, field string, required bool) (decimal.Decimal, error) {
	if !res.Exists() || res.Type == gjson.Null {
		if required {
			return decimal.Zero, fmt.Errorf("kline missing %s: %w", field, ErrInvalidCandle)
		}
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(res.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s '%s': %w", field, res.String(), err)
	}

	return d, nil
}

// parseKline parses a single kline in either the binance array form or the object form.
func parseKline(data gjson.Result, symbol string) (Candle, error) {
	var openTime, open, high, low, closePrice, volume, quoteVolume gjson.Result
	switch {
	case data.IsArray():
		fields := data.Array()
		if len(fields) < klineMinFields {
			return Candle{}, fmt.Errorf("kline has %d fields, expected at least %d",
				len(fields), klineMinFields)
		}

		openTime = fields[klineOpenTime]
		open = fields[klineOpen]
		high = fields[klineHigh]
		low = fields[klineLow]
		closePrice = fields[klineClose]
		volume = fields[klineVolume]
		if len(fields) > klineQuoteVolume {
			quoteVolume = fields[klineQuoteVolume]
		}
	case data.IsObject():
		openTime = data.Get("openTime")
		open = data.Get("open")
		high = data.Get("high")
		low = data.Get("low")
		closePrice = data.Get("close")
		volume = data.Get("volume")
		quoteVolume = data.Get("quoteVolume")
	default:
		return Candle{}, fmt.Errorf("unexpected kline json: %s", data.Raw)
	}

	if !openTime.Exists() {
		return Candle{}, fmt.Errorf("kline missing open time")
	}

	candle := Candle{
		Symbol:   symbol,
		OpenTime: time.UnixMilli(openTime.Int()).UTC(),
	}

	var err error
	if candle.Open, err = parseDecimal(open, "open", true); err != nil {
		return Candle{}, err
	}
	if candle.High, err = parseDecimal(high, "high", true); err != nil {
		return Candle{}, err
	}
	if candle.Low, err = parseDecimal(low, "low", true); err != nil {
		return Candle{}, err
	}
	if candle.Close, err = parseDecimal(closePrice, "close", true); err != nil {
		return Candle{}, err
	}
	if candle.Volume, err = parseDecimal(volume, "volume", false); err != nil {
		return Candle{}, err
	}
	if candle.QuoteVolume, err = parseDecimal(quoteVolume, "quote volume", false); err != nil {
		return Candle{}, err
	}

	return candle, nil
}

// ParseKlines parses candles for the provided symbol from json kline data.
func ParseKlines(data []gjson.Result, symbol string) ([]Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	candles := make([]Candle, 0, len(data))
	for idx := range data {
		candle, err := parseKline(data[idx], symbol)
		if err != nil {
			return nil, fmt.Errorf("parsing kline %d for %s: %w", idx, symbol, err)
		}

		candles = append(candles, candle)
	}

	return candles, nil
}

// LoadKlines loads candles for the provided symbol from a json kline file.
//
// The file holds either a bare array of klines or an object with a "klines" array.
func LoadKlines(path string, symbol string) ([]Candle, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading klines from file with path '%s': %w", path, err)
	}

	if !gjson.ValidBytes(b) {
		return nil, fmt.Errorf("invalid kline json in '%s'", path)
	}

	root := gjson.ParseBytes(b)
	if root.IsObject() {
		if s := root.Get("symbol").String(); s != "" {
			symbol = s
		}
		root = root.Get("klines")
	}

	return ParseKlines(root.Array(), symbol)
}
