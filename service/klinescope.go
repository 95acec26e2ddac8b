package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dnldd/klinescope/aggregate"
	"github.com/dnldd/klinescope/cache"
	"github.com/dnldd/klinescope/database"
	"github.com/dnldd/klinescope/engine"
	"github.com/dnldd/klinescope/export"
	"github.com/dnldd/klinescope/fetch"
	"github.com/dnldd/klinescope/position"
	"github.com/dnldd/klinescope/shared"
	"github.com/dnldd/klinescope/store"
	"github.com/dnldd/klinescope/streak"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

const (
	// defaultReportTime is the default UTC time of the daily report in daemon mode.
	defaultReportTime = "00:30"
)

// candleStore defines the requirements for the local candle store.
type candleStore interface {
	shared.CandleStore
	shared.SymbolLister
	shared.CandleWriter
}

// KlinescopeConfig represents the configuration struct for the klinescope service.
type KlinescopeConfig struct {
	// Symbols restricts the universe to the provided symbols. When empty every symbol
	// held locally is analysed and the exchange supplies the universe to sync.
	Symbols []string
	// ReferenceDate is the day reports are anchored to. The zero value selects the last
	// complete day.
	ReferenceDate time.Time
	// Lookbacks are the position and amplitude lookbacks in days.
	Lookbacks []int
	// StreakMaxLength is the longest streak length classified.
	StreakMaxLength int
	// StreakHistoryDays is the number of days of the rolling streak table.
	StreakHistoryDays int
	// RankLimit truncates the amplitude ranking when positive.
	RankLimit int
	// SkipDegenerate reports symbols with a zero price range as skipped instead of
	// listing them with the no-range bucket.
	SkipDegenerate bool
	// Workers is the number of symbols processed concurrently.
	Workers int
	// DBPath is the sqlite candle database path. An empty path keeps candles in memory.
	DBPath string
	// DataDir is a directory of <SYMBOL>.json kline files imported at startup.
	DataDir string
	// Sync enables fetching missing candles from binance.
	Sync bool
	// BackfillDays is the number of days fetched for symbols with no stored candles.
	BackfillDays int
	// Binance is the binance client configuration.
	Binance fetch.BinanceConfig
	// Daemon keeps the service running, syncing and reporting daily.
	Daemon bool
	// SyncTime is the UTC time of the daily sync in daemon mode.
	SyncTime string
	// ReportTime is the UTC time of the daily report in daemon mode.
	ReportTime string
	// RqliteEndpoint is the rqlite report database endpoint. Reports are not persisted
	// when empty.
	RqliteEndpoint string
	// RqliteUser is the rqlite user.
	RqliteUser string
	// RqlitePass is the rqlite user pass.
	RqlitePass string
	// ExportDir is the directory report files are written to. Table reports are
	// written to Output when empty.
	ExportDir string
	// ExportFormat is the report file format.
	ExportFormat export.Format
	// Output receives table reports when no export directory is set.
	Output io.Writer
	// Now returns the current time.
	Now func() time.Time
	// Cancel is the context cancellation function.
	Cancel context.CancelFunc
}

// Validate asserts the config sane inputs.
func (cfg *KlinescopeConfig) Validate() error {
	var errs error

	if len(cfg.Lookbacks) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no lookbacks provided"))
	}
	for _, lb := range cfg.Lookbacks {
		if lb < 1 {
			errs = errors.Join(errs, fmt.Errorf("lookback of %d days is not positive", lb))
		}
	}
	if err := streak.ValidateLength(cfg.StreakMaxLength); err != nil {
		errs = errors.Join(errs, err)
	}
	if cfg.StreakHistoryDays < 1 {
		errs = errors.Join(errs, fmt.Errorf("streak history days must be positive"))
	}
	if cfg.Sync && cfg.BackfillDays < 1 {
		errs = errors.Join(errs, fmt.Errorf("backfill days must be positive when syncing"))
	}
	if cfg.Daemon && !cfg.Sync {
		errs = errors.Join(errs, fmt.Errorf("daemon mode requires syncing"))
	}
	if cfg.ExportDir == "" && cfg.ExportFormat != export.Table {
		errs = errors.Join(errs, fmt.Errorf("%s exports require an export directory", cfg.ExportFormat))
	}
	if cfg.Cancel == nil {
		errs = errors.Join(errs, fmt.Errorf("context cancellation function cannot be nil"))
	}

	return errs
}

// LookbackReport represents the position and amplitude results for a lookback.
type LookbackReport struct {
	LookbackDays int
	Positions    *engine.PositionBatch
	Amplitudes   *engine.AmplitudeBatch
}

// Report represents a full analytics report for a reference day.
type Report struct {
	ReferenceDate time.Time
	Lookbacks     []LookbackReport
	Streaks       *engine.StreakHistory
	// RunIDs are the report database run ids, when reports are persisted.
	RunIDs []string
}

// Klinescope represents the historical futures analytics service.
type Klinescope struct {
	cfg          *KlinescopeConfig
	store        candleStore
	cachedStore  *cache.CandleStore
	historicData *fetch.HistoricData
	syncManager  *fetch.Manager
	jobScheduler *gocron.Scheduler
	engine       *engine.Engine
	positions    *cache.Cache[engine.ResultKey, position.PositionResult]
	amplitudes   *cache.Cache[engine.ResultKey, position.AmplitudeResult]
	db           database.ReportStorer
	logger       *zerolog.Logger
	reportMtx    sync.Mutex
	wg           sync.WaitGroup
}

// NewKlinescope initializes a new klinescope service.
func NewKlinescope(ctx context.Context, cfg *KlinescopeConfig) (*Klinescope, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating klinescope config: %w", err)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.ReportTime == "" {
		cfg.ReportTime = defaultReportTime
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	logger := log.With().Str("service", "klinescope").Logger()

	var st candleStore
	switch cfg.DBPath {
	case "":
		st = store.NewMemoryStore()
	default:
		storeLogger := logger.With().Str("component", "store").Logger()
		st, err = store.NewSQLiteStore(&store.SQLiteStoreConfig{
			Path:   cfg.DBPath,
			Logger: &storeLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating sqlite store: %w", err)
		}
	}

	svc := &Klinescope{
		cfg:          cfg,
		store:        st,
		cachedStore:  cache.NewCandleStore(st),
		jobScheduler: gocron.NewScheduler(time.UTC),
		positions:    cache.New[engine.ResultKey, position.PositionResult](),
		amplitudes:   cache.New[engine.ResultKey, position.AmplitudeResult](),
		logger:       &logger,
	}

	if cfg.DataDir != "" {
		historicDataLogger := logger.With().Str("component", "historicdata").Logger()
		svc.historicData, err = fetch.NewHistoricData(&fetch.HistoricDataConfig{
			Dir:    cfg.DataDir,
			Logger: &historicDataLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating historic data: %w", err)
		}
	}

	if cfg.Sync {
		binance := fetch.NewBinanceClient(&cfg.Binance)
		syncLogger := logger.With().Str("component", "syncmanager").Logger()
		svc.syncManager, err = fetch.NewManager(&fetch.ManagerConfig{
			Symbols:        cfg.Symbols,
			SymbolLister:   binance,
			ExchangeClient: binance,
			Store:          st,
			BackfillDays:   cfg.BackfillDays,
			SyncTime:       cfg.SyncTime,
			Workers:        cfg.Workers,
			NotifySynced:   svc.cachedStore.Invalidate,
			JobScheduler:   svc.jobScheduler,
			Now:            cfg.Now,
			Logger:         &syncLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating sync manager: %w", err)
		}
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	svc.engine, err = engine.NewEngine(&engine.EngineConfig{
		Store:          svc.cachedStore,
		Workers:        cfg.Workers,
		PositionCache:  svc.positions,
		AmplitudeCache: svc.amplitudes,
		SkipDegenerate: cfg.SkipDegenerate,
		Logger:         &engineLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	if cfg.RqliteEndpoint != "" {
		dbLogger := logger.With().Str("component", "database").Logger()
		svc.db, err = database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.RqliteEndpoint,
			User:     cfg.RqliteUser,
			Pass:     cfg.RqlitePass,
			Now:      cfg.Now,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating report database: %w", err)
		}
	}

	return svc, nil
}

// referenceDate returns the day reports are anchored to.
func (k *Klinescope) referenceDate() time.Time {
	if !k.cfg.ReferenceDate.IsZero() {
		return shared.DayOf(k.cfg.ReferenceDate)
	}

	return shared.AddDays(shared.DayOf(k.cfg.Now()), -1)
}

// fetchSymbols returns the symbol universe to analyse.
func (k *Klinescope) fetchSymbols(ctx context.Context) ([]string, error) {
	if len(k.cfg.Symbols) > 0 {
		return k.cfg.Symbols, nil
	}

	symbols, err := k.store.ListActiveSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored symbols: %w", err)
	}

	return symbols, nil
}

// Prepare loads historic data and, when enabled, syncs missing candles.
func (k *Klinescope) Prepare(ctx context.Context) error {
	if k.historicData != nil {
		n, err := k.historicData.Import(ctx, k.store)
		if err != nil {
			return fmt.Errorf("importing historic data: %w", err)
		}
		k.cachedStore.Purge()
		k.logger.Info().Msgf("imported %d historic candles", n)
	}

	if k.syncManager != nil {
		_, err := k.syncManager.Sync(ctx)
		if err != nil {
			return fmt.Errorf("syncing candles: %w", err)
		}
	}

	return nil
}

// BuildReport computes positions and amplitudes for every lookback and the rolling
// streak table for the reference day.
func (k *Klinescope) BuildReport(ctx context.Context) (*Report, error) {
	symbols, err := k.fetchSymbols(ctx)
	if err != nil {
		return nil, err
	}

	ref := k.referenceDate()
	report := &Report{ReferenceDate: ref}
	for _, lb := range k.cfg.Lookbacks {
		positions, err := k.engine.ComputePositions(ctx, symbols, ref, lb)
		if err != nil {
			return nil, fmt.Errorf("computing %d-day positions: %w", lb, err)
		}

		amplitudes, err := k.engine.ComputeAmplitudes(ctx, symbols, ref, lb)
		if err != nil {
			return nil, fmt.Errorf("computing %d-day amplitudes: %w", lb, err)
		}

		report.Lookbacks = append(report.Lookbacks, LookbackReport{
			LookbackDays: lb,
			Positions:    positions,
			Amplitudes:   amplitudes,
		})
	}

	report.Streaks, err = k.engine.DetectStreakHistory(ctx, symbols, ref,
		k.cfg.StreakHistoryDays, k.cfg.StreakMaxLength)
	if err != nil {
		return nil, fmt.Errorf("detecting streaks: %w", err)
	}

	return report, nil
}

// persistReport stores the provided report to the report database.
func (k *Klinescope) persistReport(ctx context.Context, report *Report) error {
	if k.db == nil {
		return nil
	}

	for _, lr := range report.Lookbacks {
		id, err := k.db.PersistPositions(ctx, lr.Positions)
		if err != nil {
			return err
		}
		report.RunIDs = append(report.RunIDs, id)

		id, err = k.db.PersistAmplitudes(ctx, lr.Amplitudes)
		if err != nil {
			return err
		}
		report.RunIDs = append(report.RunIDs, id)
	}

	id, err := k.db.PersistStreakHistory(ctx, report.Streaks)
	if err != nil {
		return err
	}
	report.RunIDs = append(report.RunIDs, id)

	return nil
}

// writeRows renders the provided rows either to the export directory or the output.
func writeRows[T export.Row](k *Klinescope, name string, title string, rows []T) error {
	if k.cfg.ExportDir == "" {
		return export.Write(k.cfg.Output, export.Table, title, rows)
	}

	path := filepath.Join(k.cfg.ExportDir, name+k.cfg.ExportFormat.Extension())
	return export.WriteFile(path, k.cfg.ExportFormat, title, rows)
}

// exportReport renders the provided report.
func (k *Klinescope) exportReport(report *Report) error {
	if k.cfg.ExportDir != "" {
		err := os.MkdirAll(k.cfg.ExportDir, 0o755)
		if err != nil {
			return fmt.Errorf("creating export directory: %w", err)
		}
	}

	date := report.ReferenceDate.Format(shared.DateLayout)
	var skipped []shared.Skip
	for _, lr := range report.Lookbacks {
		lb := lr.LookbackDays
		prefix := fmt.Sprintf("%s_%dd", date, lb)

		ranked := aggregate.RankPositions(lr.Positions.Results, aggregate.Descending)
		err := writeRows(k, prefix+"_positions",
			fmt.Sprintf("%d-day positions, %s", lb, date), export.PositionRows(ranked))
		if err != nil {
			return err
		}

		err = writeRows(k, prefix+"_position_buckets",
			fmt.Sprintf("%d-day position buckets, %s", lb, date),
			export.PositionBucketRows(aggregate.BucketPositions(lr.Positions.Results)))
		if err != nil {
			return err
		}

		top := aggregate.RankAmplitudes(lr.Amplitudes.Results, k.cfg.RankLimit)
		err = writeRows(k, prefix+"_amplitudes",
			fmt.Sprintf("%d-day amplitudes, %s", lb, date), export.AmplitudeRows(top))
		if err != nil {
			return err
		}

		err = writeRows(k, prefix+"_amplitude_buckets",
			fmt.Sprintf("%d-day amplitude buckets, %s", lb, date),
			export.AmplitudeBucketRows(aggregate.BucketAmplitudes(lr.Amplitudes.Results)))
		if err != nil {
			return err
		}

		skipped = append(skipped, lr.Positions.Skipped...)
		skipped = append(skipped, lr.Amplitudes.Skipped...)
	}

	table := aggregate.BuildRollingStreakTable(report.Streaks.Summaries, aggregate.Descending)
	err := writeRows(k, date+"_streaks", fmt.Sprintf("streaks, %d days to %s",
		len(table), date), export.StreakRows(table))
	if err != nil {
		return err
	}
	skipped = append(skipped, report.Streaks.Skipped...)

	return writeRows(k, date+"_skipped", fmt.Sprintf("skipped, %s", date),
		export.SkipRows(dedupeSkips(skipped)))
}

// dedupeSkips returns the provided skips with one entry per symbol and reason, sorted
// by symbol.
func dedupeSkips(skips []shared.Skip) []shared.Skip {
	slices.SortStableFunc(skips, func(a, b shared.Skip) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})

	return slices.CompactFunc(skips, func(a, b shared.Skip) bool {
		return a.Symbol == b.Symbol && a.Reason.Error() == b.Reason.Error()
	})
}

// evictResults drops cached results anchored before the provided day.
func (k *Klinescope) evictResults(ref time.Time) {
	stale := func(key engine.ResultKey) bool { return key.Date.Before(ref) }
	n := k.positions.InvalidateFunc(stale) + k.amplitudes.InvalidateFunc(stale)
	if n > 0 {
		k.logger.Debug().Msgf("evicted %d cached results before %s", n, ref.Format(shared.DateLayout))
	}
}

// requestSyncs signals the sync manager to fetch the candles of symbols that had no
// candle on the reference day.
func (k *Klinescope) requestSyncs(report *Report) {
	if !k.cfg.Daemon || k.syncManager == nil {
		return
	}

	for _, s := range report.Streaks.Skipped {
		if errors.Is(s.Reason, shared.ErrInsufficientData) {
			k.syncManager.SendSyncSignal(s.Symbol)
		}
	}
}

// Report builds, persists and renders a report for the reference day.
func (k *Klinescope) Report(ctx context.Context) (*Report, error) {
	k.reportMtx.Lock()
	defer k.reportMtx.Unlock()

	report, err := k.BuildReport(ctx)
	if err != nil {
		return nil, err
	}

	err = k.persistReport(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("persisting report: %w", err)
	}

	err = k.exportReport(report)
	if err != nil {
		return nil, fmt.Errorf("exporting report: %w", err)
	}

	k.evictResults(report.ReferenceDate)
	k.requestSyncs(report)

	stats := k.engine.Stats()
	k.logger.Info().Msgf("report for %s done, %d results computed, %d skips recorded",
		report.ReferenceDate.Format(shared.DateLayout), stats.Processed, stats.Skipped)
	if k.syncManager != nil {
		k.logger.Info().Msgf("%d candles synced since startup", k.syncManager.SyncedCandles())
	}

	return report, nil
}

// reportJob runs the scheduled daily report.
func (k *Klinescope) reportJob(ctx context.Context) {
	_, err := k.Report(ctx)
	if err != nil {
		k.logger.Error().Msgf("running daily report: %v", err)
	}
}

// Run handles the lifecycle processes of the klinescope service.
func (k *Klinescope) Run(ctx context.Context) error {
	err := k.Prepare(ctx)
	if err != nil {
		k.cfg.Cancel()
		return err
	}

	if !k.cfg.Daemon {
		defer k.cfg.Cancel()
		_, err := k.Report(ctx)
		return err
	}

	_, err = k.jobScheduler.Every(1).Day().At(k.cfg.ReportTime).Do(k.reportJob, ctx)
	if err != nil {
		k.cfg.Cancel()
		return fmt.Errorf("scheduling daily report: %w", err)
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		err := k.syncManager.Run(ctx)
		if err != nil {
			k.logger.Error().Msgf("running sync manager: %v", err)
			k.cfg.Cancel()
		}
	}()

	k.wg.Wait()
	return nil
}

// Close releases the resources held by the service.
func (k *Klinescope) Close() error {
	if closer, ok := k.store.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}
