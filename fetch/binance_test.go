package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/peterldowns/testy/assert"
)

var day0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

const exchangeInfo = `{"symbols":[
	{"symbol":"ETHUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT"},
	{"symbol":"BTCUSDT","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDT"},
	{"symbol":"BTCUSDT_240628","status":"TRADING","contractType":"CURRENT_QUARTER","quoteAsset":"USDT"},
	{"symbol":"LUNAUSDT","status":"SETTLING","contractType":"PERPETUAL","quoteAsset":"USDT"},
	{"symbol":"BTCUSDC","status":"TRADING","contractType":"PERPETUAL","quoteAsset":"USDC"}
]}`

// klineRow returns a binance daily kline row for the provided day offset.
func klineRow(day int, open, high, low, close string) string {
	openTime := day0.AddDate(0, 0, day).UnixMilli()
	closeTime := openTime + int64(time.Hour*24/time.Millisecond) - 1
	return fmt.Sprintf(`[%d,"%s","%s","%s","%s","1000",%d,"100000.5",10,"500","50000","0"]`,
		openTime, open, high, low, close, closeTime)
}

// setupBinanceServer serves three daily klines and the exchange info.
func setupBinanceServer(t *testing.T) *httptest.Server {
	rows := []string{
		klineRow(0, "90", "110", "90", "100"),
		klineRow(1, "100", "108", "95", "97"),
		klineRow(2, "101", "105", "100", "102"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)

		body := "["
		for idx, row := range rows {
			openTime := day0.AddDate(0, 0, idx).UnixMilli()
			if openTime < start || openTime > end {
				continue
			}
			if body != "[" {
				body += ","
			}
			body += row
		}
		body += "]"

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	})
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, exchangeInfo)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestBinanceClient(t *testing.T) {
	server := setupBinanceServer(t)
	client := NewBinanceClient(&BinanceConfig{
		BaseURL:    server.URL,
		QuoteAsset: "USDT",
		Timeout:    time.Second * 5,
	})

	ctx := context.Background()

	// Ensure daily klines can be fetched and parsed.
	candles, err := client.FetchDailyKlines(ctx, "btcusdt", day0.Add(time.Hour*5), day0.AddDate(0, 0, 1))
	assert.NoError(t, err)
	assert.Equal(t, len(candles), 2)
	assert.Equal(t, candles[0].Symbol, "BTCUSDT")
	assert.Equal(t, candles[0].Day(), day0)
	assert.Equal(t, candles[1].Open.String(), "100")
	assert.Equal(t, candles[1].Low.String(), "95")
	assert.Equal(t, candles[1].QuoteVolume.String(), "100000.5")

	// Ensure an inverted range errors.
	_, err = client.FetchDailyKlines(ctx, "BTCUSDT", day0.AddDate(0, 0, 2), day0)
	assert.Error(t, err)

	// Ensure only trading perpetual contracts of the quote asset are listed.
	symbols, err := client.ListActiveSymbols(ctx)
	assert.NoError(t, err)
	assert.Equal(t, symbols, []string{"BTCUSDT", "ETHUSDT"})

	// Ensure fetching fails against an unreachable endpoint.
	unreachable := NewBinanceClient(&BinanceConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	_, err = unreachable.FetchDailyKlines(ctx, "BTCUSDT", day0, day0)
	assert.Error(t, err)
	_, err = unreachable.ListActiveSymbols(ctx)
	assert.Error(t, err)
}

func TestParseKline(t *testing.T) {
	k := &futures.Kline{
		OpenTime:         day0.UnixMilli(),
		Open:             "1.5",
		High:             "2",
		Low:              "1",
		Close:            "1.75",
		Volume:           "10",
		QuoteAssetVolume: "17.5",
	}

	candle, err := ParseKline("ethusdt", k)
	assert.NoError(t, err)
	assert.Equal(t, candle.Symbol, "ETHUSDT")
	assert.Equal(t, candle.OpenTime, day0)
	assert.Equal(t, candle.Close.String(), "1.75")

	k.High = "nan-ish"
	_, err = ParseKline("ethusdt", k)
	assert.Error(t, err)
}
