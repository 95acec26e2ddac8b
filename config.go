package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/klinescope/export"
	"github.com/dnldd/klinescope/shared"
	"github.com/dnldd/klinescope/streak"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	defaultLookback          = 20
	defaultStreakHistoryDays = 7
	defaultBackfillDays      = 400
	defaultQuoteAsset        = "USDT"
	defaultLogLevel          = "info"
)

// Config is the configuration struct for the service.
type Config struct {
	// Symbols restricts the analysed universe.
	Symbols []string
	// ReferenceDate is the report day, formatted as yyyy-mm-dd.
	ReferenceDate string
	// Lookbacks are the position and amplitude lookbacks in days.
	Lookbacks []int
	// StreakMaxLength is the longest streak length classified.
	StreakMaxLength int
	// StreakHistoryDays is the number of days of the rolling streak table.
	StreakHistoryDays int
	// RankLimit truncates the amplitude ranking when positive.
	RankLimit int
	// SkipDegenerate excludes symbols with a zero price range from position reports.
	SkipDegenerate bool
	// Workers is the number of symbols processed concurrently.
	Workers int
	// DBPath is the sqlite candle database path.
	DBPath string
	// DataDir is a directory of <SYMBOL>.json kline files to import.
	DataDir string
	// Sync enables fetching missing candles from binance.
	Sync bool
	// BackfillDays is the number of days fetched for symbols with no stored candles.
	BackfillDays int
	// BinanceAPIKey is the binance API key.
	BinanceAPIKey string
	// BinanceSecret is the binance API secret.
	BinanceSecret string
	// BinanceBaseURL overrides the binance futures endpoint.
	BinanceBaseURL string
	// QuoteAsset restricts synced symbols to the provided quote asset.
	QuoteAsset string
	// Daemon keeps the service running, syncing and reporting daily.
	Daemon bool
	// SyncTime is the UTC time of the daily sync.
	SyncTime string
	// ReportTime is the UTC time of the daily report.
	ReportTime string
	// RqliteEndpoint is the rqlite report database endpoint.
	RqliteEndpoint string
	// RqliteUser is the rqlite user.
	RqliteUser string
	// RqlitePass is the rqlite user pass.
	RqlitePass string
	// ExportDir is the directory report files are written to.
	ExportDir string
	// ExportFormat is the report file format.
	ExportFormat string
	// LogLevel is the minimum level logged.
	LogLevel string

	registeredFlags map[string]bool
}

// applyDefaults fills unset fields with their defaults.
func (cfg *Config) applyDefaults() {
	if len(cfg.Lookbacks) == 0 {
		cfg.Lookbacks = []int{defaultLookback}
	}
	if cfg.StreakMaxLength == 0 {
		cfg.StreakMaxLength = streak.MaxLength
	}
	if cfg.StreakHistoryDays == 0 {
		cfg.StreakHistoryDays = defaultStreakHistoryDays
	}
	if cfg.BackfillDays == 0 {
		cfg.BackfillDays = defaultBackfillDays
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = defaultQuoteAsset
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.DataDir == "" && cfg.DBPath == "" && !cfg.Sync {
		errs = errors.Join(errs, fmt.Errorf("no candle source provided, set a data dir, a db path or enable sync"))
	}
	if cfg.Daemon && !cfg.Sync {
		errs = errors.Join(errs, fmt.Errorf("daemon mode requires sync to be enabled"))
	}
	if cfg.ReferenceDate != "" {
		if _, err := shared.ParseDate(cfg.ReferenceDate); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	for _, lb := range cfg.Lookbacks {
		if lb < 1 {
			errs = errors.Join(errs, fmt.Errorf("lookback of %d days is not positive", lb))
		}
	}
	if cfg.StreakMaxLength != 0 {
		if err := streak.ValidateLength(cfg.StreakMaxLength); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if _, err := export.ParseFormat(cfg.ExportFormat); err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.LogLevel != "" {
		if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
			errs = errors.Join(errs, fmt.Errorf("invalid log level: %s", cfg.LogLevel))
		}
	}

	return errs
}

// fetchReferenceDate returns the parsed reference date, zero when unset.
func (cfg *Config) fetchReferenceDate() time.Time {
	if cfg.ReferenceDate == "" {
		return time.Time{}
	}

	day, _ := shared.ParseDate(cfg.ReferenceDate)
	return day
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			list = append(list, p)
		}
	}

	return list
}

// parseInts parses a comma separated list of integers.
func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	ints := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parsing integer %q: %w", p, err)
		}
		ints = append(ints, n)
	}

	return ints, nil
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Slice:
		switch val.Elem().Type().Elem().Kind() {
		case reflect.String:
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = splitList(s)
				return nil
			})
			// Set default if not provided via flag
			if defValue != "" {
				*value.(*[]string) = splitList(defValue)
			}
		case reflect.Int:
			flag.Func(name, usage, func(s string) error {
				ints, err := parseInts(s)
				if err != nil {
					return err
				}
				*value.(*[]int) = ints
				return nil
			})
			if defValue != "" {
				ints, err := parseInts(defValue)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				*value.(*[]int) = ints
			}
		default:
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"symbols", &cfg.Symbols, "the analysed symbols, all stored symbols when empty"},
		{"referencedate", &cfg.ReferenceDate, "the report day (yyyy-mm-dd), the last complete day when empty"},
		{"lookbacks", &cfg.Lookbacks, "the position and amplitude lookbacks in days"},
		{"streakmaxlength", &cfg.StreakMaxLength, "the longest streak length classified"},
		{"streakhistorydays", &cfg.StreakHistoryDays, "the number of days of the rolling streak table"},
		{"ranklimit", &cfg.RankLimit, "the number of top amplitudes reported, all when zero"},
		{"skipdegenerate", &cfg.SkipDegenerate, "the flag excluding zero range symbols from positions"},
		{"workers", &cfg.Workers, "the number of symbols processed concurrently"},
		{"dbpath", &cfg.DBPath, "the sqlite candle database path"},
		{"datadir", &cfg.DataDir, "the directory of json kline files to import"},
		{"sync", &cfg.Sync, "the binance sync flag"},
		{"backfilldays", &cfg.BackfillDays, "the number of days fetched for new symbols"},
		{"binanceapikey", &cfg.BinanceAPIKey, "the binance api key"},
		{"binancesecret", &cfg.BinanceSecret, "the binance api secret"},
		{"binancebaseurl", &cfg.BinanceBaseURL, "the binance futures endpoint override"},
		{"quoteasset", &cfg.QuoteAsset, "the quote asset of synced symbols"},
		{"daemon", &cfg.Daemon, "the daemon mode flag"},
		{"synctime", &cfg.SyncTime, "the utc time of the daily sync (hh:mm)"},
		{"reporttime", &cfg.ReportTime, "the utc time of the daily report (hh:mm)"},
		{"rqliteendpoint", &cfg.RqliteEndpoint, "the rqlite report database endpoint"},
		{"rqliteuser", &cfg.RqliteUser, "the rqlite user"},
		{"rqlitepass", &cfg.RqlitePass, "the rqlite user pass"},
		{"exportdir", &cfg.ExportDir, "the report export directory"},
		{"exportformat", &cfg.ExportFormat, "the report format: table, csv, json or parquet"},
		{"loglevel", &cfg.LogLevel, "the minimum log level"},
	}
	for _, f := range flags {
		err = cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.applyDefaults()

	return cfg.Validate()
}
