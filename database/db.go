package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/klinescope/engine"
	"github.com/dnldd/klinescope/shared"
	"github.com/google/uuid"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// SQL statements.
	createRunTableSQL       = "CREATE TABLE IF NOT EXISTS run (id TEXT PRIMARY KEY, kind TEXT, referencedate TEXT, lookback INTEGER, symbols INTEGER, skipped INTEGER, createdon INTEGER)"
	createPositionTableSQL  = "CREATE TABLE IF NOT EXISTS position (runid TEXT, symbol TEXT, highest TEXT, lowest TEXT, close TEXT, pricerange TEXT, ratio TEXT, degenerate INTEGER, bucket TEXT, PRIMARY KEY (runid, symbol))"
	createAmplitudeTableSQL = "CREATE TABLE IF NOT EXISTS amplitude (runid TEXT, symbol TEXT, highest TEXT, lowest TEXT, amplitudepercent TEXT, bucket TEXT, PRIMARY KEY (runid, symbol))"
	createStreakTableSQL    = "CREATE TABLE IF NOT EXISTS streak (runid TEXT, date TEXT, length INTEGER, risecount INTEGER, fallcount INTEGER, risesymbols TEXT, fallsymbols TEXT, PRIMARY KEY (runid, date, length))"
	createSkipTableSQL      = "CREATE TABLE IF NOT EXISTS skip (runid TEXT, symbol TEXT, reason TEXT)"
	persistRunSQL           = "INSERT INTO run(id, kind, referencedate, lookback, symbols, skipped, createdon) VALUES(?,?,?,?,?,?,?)"
	persistPositionSQL      = "INSERT INTO position(runid, symbol, highest, lowest, close, pricerange, ratio, degenerate, bucket) VALUES(?,?,?,?,?,?,?,?,?)"
	persistAmplitudeSQL     = "INSERT INTO amplitude(runid, symbol, highest, lowest, amplitudepercent, bucket) VALUES(?,?,?,?,?,?)"
	persistStreakSQL        = "INSERT INTO streak(runid, date, length, risecount, fallcount, risesymbols, fallsymbols) VALUES(?,?,?,?,?,?,?)"
	persistSkipSQL          = "INSERT INTO skip(runid, symbol, reason) VALUES(?,?,?)"

	// Run kinds.
	positionRun  = "position"
	amplitudeRun = "amplitude"
	streakRun    = "streak"

	// symbolSeparator joins symbol lists into a single column.
	symbolSeparator = ","
)

// ReportStorer defines the requirements for storing analytics reports.
type ReportStorer interface {
	// PersistPositions stores the provided position batch, returning its run id.
	PersistPositions(ctx context.Context, batch *engine.PositionBatch) (string, error)
	// PersistAmplitudes stores the provided amplitude batch, returning its run id.
	PersistAmplitudes(ctx context.Context, batch *engine.AmplitudeBatch) (string, error)
	// PersistStreakHistory stores the provided streak summaries, returning their run id.
	PersistStreakHistory(ctx context.Context, history *engine.StreakHistory) (string, error)
}

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Now returns the current time.
	Now func() time.Time
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("database endpoint cannot be empty"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database represents the database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the ReportStorer interface.
var _ ReportStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// execute runs the provided statements in a single transaction.
func (db *Database) execute(ctx context.Context, stmts rqlitehttp.SQLStatements) error {
	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("executing statement %d: %s", idx, errStr)
	}

	return nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	return db.execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createRunTableSQL},
		{SQL: createPositionTableSQL},
		{SQL: createAmplitudeTableSQL},
		{SQL: createStreakTableSQL},
		{SQL: createSkipTableSQL},
	})
}

// runStatements returns the statements recording a run and its skipped symbols.
func (db *Database) runStatements(id string, kind string, date time.Time, lookback int, symbols int, skipped []shared.Skip) rqlitehttp.SQLStatements {
	stmts := rqlitehttp.SQLStatements{
		{
			SQL: persistRunSQL,
			PositionalParams: []any{id, kind, date.Format(shared.DateLayout), lookback, symbols,
				len(skipped), db.cfg.Now().Unix()},
		},
	}
	for _, s := range skipped {
		stmts = append(stmts, rqlitehttp.SQLStatements{{
			SQL:              persistSkipSQL,
			PositionalParams: []any{id, s.Symbol, s.Reason.Error()},
		}}...)
	}

	return stmts
}

// PersistPositions stores the provided position batch, returning its run id.
func (db *Database) PersistPositions(ctx context.Context, batch *engine.PositionBatch) (string, error) {
	id := uuid.NewString()
	stmts := db.runStatements(id, positionRun, batch.ReferenceDate, batch.LookbackDays,
		len(batch.Results), batch.Skipped)

	for idx := range batch.Results {
		res := &batch.Results[idx]
		if res.Degenerate && !res.PriceRange.IsZero() {
			db.cfg.Logger.Error().Msgf("unexpected degenerate position state: %s", spew.Sdump(res))
		}

		stmts = append(stmts, rqlitehttp.SQLStatements{{
			SQL: persistPositionSQL,
			PositionalParams: []any{id, res.Symbol, res.HighestPrice.String(), res.LowestPrice.String(),
				res.ClosePrice.String(), res.PriceRange.String(), res.LocationRatio.String(),
				res.Degenerate, res.Bucket.String()},
		}}...)
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		return "", fmt.Errorf("persisting position run %s: %w", id, err)
	}

	return id, nil
}

// PersistAmplitudes stores the provided amplitude batch, returning its run id.
func (db *Database) PersistAmplitudes(ctx context.Context, batch *engine.AmplitudeBatch) (string, error) {
	id := uuid.NewString()
	stmts := db.runStatements(id, amplitudeRun, batch.ReferenceDate, batch.LookbackDays,
		len(batch.Results), batch.Skipped)

	for idx := range batch.Results {
		res := &batch.Results[idx]
		stmts = append(stmts, rqlitehttp.SQLStatements{{
			SQL: persistAmplitudeSQL,
			PositionalParams: []any{id, res.Symbol, res.HighestPrice.String(), res.LowestPrice.String(),
				res.AmplitudePercent.String(), res.Bucket.String()},
		}}...)
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		return "", fmt.Errorf("persisting amplitude run %s: %w", id, err)
	}

	return id, nil
}

// PersistStreakHistory stores the provided streak summaries, returning their run id. The
// run's lookback is the longest classified streak length.
func (db *Database) PersistStreakHistory(ctx context.Context, history *engine.StreakHistory) (string, error) {
	if len(history.Summaries) == 0 {
		return "", fmt.Errorf("no streak summaries to persist")
	}

	id := uuid.NewString()
	last := history.Summaries[len(history.Summaries)-1]
	stmts := db.runStatements(id, streakRun, last.Date, history.MaxLength, history.Symbols,
		history.Skipped)

	for _, summary := range history.Summaries {
		date := summary.Date.Format(shared.DateLayout)
		for _, ls := range summary.Lengths {
			stmts = append(stmts, rqlitehttp.SQLStatements{{
				SQL: persistStreakSQL,
				PositionalParams: []any{id, date, ls.Length, ls.RiseCount, ls.FallCount,
					strings.Join(ls.RiseSymbols, symbolSeparator),
					strings.Join(ls.FallSymbols, symbolSeparator)},
			}}...)
		}
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		return "", fmt.Errorf("persisting streak run %s: %w", id, err)
	}

	return id, nil
}
