package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dnldd/klinescope/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStoreConfig represents the sqlite candle store configuration.
type SQLiteStoreConfig struct {
	// Path is the database file path. ":memory:" opens a private in-memory database.
	Path string
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SQLiteStoreConfig) Validate() error {
	var errs error

	if cfg.Path == "" {
		errs = errors.Join(errs, fmt.Errorf("database path cannot be empty"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// SQLiteStore persists daily candles to a sqlite database.
type SQLiteStore struct {
	cfg   *SQLiteStoreConfig
	db    *sql.DB
	dbMtx sync.Mutex
}

// Ensure the sqlite store implements the CandleStore, SymbolLister and CandleWriter interfaces.
var _ shared.CandleStore = (*SQLiteStore)(nil)
var _ shared.SymbolLister = (*SQLiteStore)(nil)
var _ shared.CandleWriter = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the sqlite database and runs its migrations.
func NewSQLiteStore(cfg *SQLiteStoreConfig) (*SQLiteStore, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// A single connection keeps in-memory databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	s := &SQLiteStore{cfg: cfg, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite database: %w", err)
	}

	cfg.Logger.Info().Msgf("sqlite candle store opened: %s", cfg.Path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol       TEXT    NOT NULL,
			open_time    INTEGER NOT NULL,
			open         TEXT    NOT NULL,
			high         TEXT    NOT NULL,
			low          TEXT    NOT NULL,
			close        TEXT    NOT NULL,
			volume       TEXT    NOT NULL,
			quote_volume TEXT    NOT NULL,
			PRIMARY KEY (symbol, open_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_symbol ON candles(symbol)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:32], err)
		}
	}

	return nil
}

// Put persists the provided candles. A candle for a day already held replaces the
// stored one.
func (s *SQLiteStore) Put(ctx context.Context, candles []shared.Candle) error {
	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO candles
		(symbol, open_time, open, high, low, close, volume, quote_volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing candle insert: %w", err)
	}
	defer stmt.Close()

	for idx := range candles {
		c := &candles[idx]
		symbol := strings.ToUpper(c.Symbol)
		if symbol == "" {
			tx.Rollback()
			return fmt.Errorf("candle %d has no symbol", idx)
		}

		_, err := stmt.ExecContext(ctx, symbol, c.Day().UnixMilli(), c.Open.String(),
			c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String(),
			c.QuoteVolume.String())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting %s candle for %s: %w", symbol,
				c.Day().Format(shared.DateLayout), err)
		}
	}

	return tx.Commit()
}

// FetchCandles returns the series held for the provided symbol in day order.
func (s *SQLiteStore) FetchCandles(ctx context.Context, symbol string) ([]shared.Candle, error) {
	symbol = strings.ToUpper(symbol)
	rows, err := s.db.QueryContext(ctx, `SELECT open_time, open, high, low, close, volume,
		quote_volume FROM candles WHERE symbol = ? ORDER BY open_time`, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying candles for %s: %w", symbol, err)
	}
	defer rows.Close()

	var candles []shared.Candle
	for rows.Next() {
		var openTime int64
		var open, high, low, closePrice, volume, quoteVolume string
		err := rows.Scan(&openTime, &open, &high, &low, &closePrice, &volume, &quoteVolume)
		if err != nil {
			return nil, fmt.Errorf("scanning candle for %s: %w", symbol, err)
		}

		c := shared.Candle{
			Symbol:   symbol,
			OpenTime: time.UnixMilli(openTime).UTC(),
		}
		for _, field := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&c.Open, open}, {&c.High, high}, {&c.Low, low}, {&c.Close, closePrice},
			{&c.Volume, volume}, {&c.QuoteVolume, quoteVolume},
		} {
			*field.dst, err = decimal.NewFromString(field.src)
			if err != nil {
				return nil, fmt.Errorf("parsing stored %s candle value %q: %w", symbol, field.src, err)
			}
		}

		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candles for %s: %w", symbol, err)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoLocalData, symbol)
	}

	return candles, nil
}

// ListActiveSymbols returns every symbol held, sorted ascending.
func (s *SQLiteStore) ListActiveSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM candles ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("querying symbols: %w", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// LatestDay returns the most recent day held for the provided symbol.
func (s *SQLiteStore) LatestDay(ctx context.Context, symbol string) (time.Time, bool, error) {
	var openTime sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(open_time) FROM candles WHERE symbol = ?`,
		strings.ToUpper(symbol)).Scan(&openTime)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying latest day for %s: %w", symbol, err)
	}
	if !openTime.Valid {
		return time.Time{}, false, nil
	}

	return time.UnixMilli(openTime.Int64).UTC(), true, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
