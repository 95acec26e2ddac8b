package fetch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dnldd/klinescope/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	// bufferSize is the default buffer size for channels.
	bufferSize = 64
	// maxWorkers is the default number of concurrent symbol syncs.
	maxWorkers = 8
	// defaultSyncTime is the default UTC time of the daily sync, shortly after the daily
	// candle closes.
	defaultSyncTime = "00:05"
)

// ManagerConfig represents the configuration for the sync manager.
type ManagerConfig struct {
	// Symbols restricts syncing to the provided symbols. When empty the symbol lister
	// supplies the universe on every sync.
	Symbols []string
	// SymbolLister lists the active symbol universe.
	SymbolLister shared.SymbolLister
	// ExchangeClient fetches daily klines from the exchange.
	ExchangeClient shared.KlineFetcher
	// Store persists the synced candles.
	Store shared.CandleWriter
	// BackfillDays is the number of days fetched for a symbol with no stored candles.
	BackfillDays int
	// SyncTime is the UTC time of day, formatted as hh:mm, the daily sync runs at.
	SyncTime string
	// Workers is the maximum number of symbols synced concurrently.
	Workers int
	// NotifySynced is called with each symbol that received new candles.
	NotifySynced func(symbol string)
	// JobScheduler represents the job scheduler.
	JobScheduler *gocron.Scheduler
	// Now returns the current time.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Symbols) == 0 && cfg.SymbolLister == nil {
		errs = errors.Join(errs, fmt.Errorf("no symbols or symbol lister provided"))
	}
	if cfg.ExchangeClient == nil {
		errs = errors.Join(errs, fmt.Errorf("exchange client cannot be nil"))
	}
	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("candle store cannot be nil"))
	}
	if cfg.BackfillDays < 1 {
		errs = errors.Join(errs, fmt.Errorf("backfill days must be positive"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// SyncReport summarizes a sync run.
type SyncReport struct {
	// Through is the last complete day synced.
	Through time.Time
	// Symbols is the number of symbols considered.
	Symbols int
	// Candles is the number of candles written.
	Candles int
	// Failed lists the symbols that could not be synced.
	Failed []shared.Skip
}

// Manager represents the candle sync manager.
type Manager struct {
	cfg         *ManagerConfig
	syncSignals chan string
	synced      atomic.Uint64
	syncMtx     sync.Mutex
}

// NewManager initializes the sync manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating manager config: %w", err)
	}

	if cfg.SyncTime == "" {
		cfg.SyncTime = defaultSyncTime
	}
	if cfg.Workers <= 0 {
		cfg.Workers = maxWorkers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	mgr := &Manager{
		cfg:         cfg,
		syncSignals: make(chan string, bufferSize),
	}

	return mgr, nil
}

// SyncedCandles returns the number of candles written since the manager started.
func (m *Manager) SyncedCandles() uint64 {
	return m.synced.Load()
}

// lastCompleteDay returns the most recent day whose daily candle has closed.
func (m *Manager) lastCompleteDay() time.Time {
	return shared.AddDays(shared.DayOf(m.cfg.Now()), -1)
}

// fetchSymbols returns the symbol universe to sync.
func (m *Manager) fetchSymbols(ctx context.Context) ([]string, error) {
	if len(m.cfg.Symbols) > 0 {
		symbols := make([]string, 0, len(m.cfg.Symbols))
		for _, s := range m.cfg.Symbols {
			symbols = append(symbols, strings.ToUpper(s))
		}
		slices.Sort(symbols)
		return slices.Compact(symbols), nil
	}

	symbols, err := m.cfg.SymbolLister.ListActiveSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active symbols: %w", err)
	}

	return symbols, nil
}

// syncSymbol fetches and stores the candles of the provided symbol missing up to and
// including the provided day.
func (m *Manager) syncSymbol(ctx context.Context, symbol string, through time.Time) (int, error) {
	latest, ok, err := m.cfg.Store.LatestDay(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("fetching latest stored day: %w", err)
	}

	start := shared.AddDays(through, -(m.cfg.BackfillDays - 1))
	if ok {
		start = shared.AddDays(latest, 1)
	}
	if start.After(through) {
		return 0, nil
	}

	candles, err := m.cfg.ExchangeClient.FetchDailyKlines(ctx, symbol, start, through)
	if err != nil {
		return 0, err
	}

	// Drop anything past the last complete day, the current day's candle is still open.
	complete := candles[:0]
	for idx := range candles {
		if !candles[idx].Day().After(through) {
			complete = append(complete, candles[idx])
		}
	}
	if len(complete) == 0 {
		return 0, nil
	}

	err = m.cfg.Store.Put(ctx, complete)
	if err != nil {
		return 0, fmt.Errorf("storing candles: %w", err)
	}

	m.synced.Add(uint64(len(complete)))
	if m.cfg.NotifySynced != nil {
		m.cfg.NotifySynced(symbol)
	}

	return len(complete), nil
}

// syncSymbols syncs the provided symbols through the last complete day.
func (m *Manager) syncSymbols(ctx context.Context, symbols []string) (*SyncReport, error) {
	m.syncMtx.Lock()
	defer m.syncMtx.Unlock()

	through := m.lastCompleteDay()
	counts := make([]int, len(symbols))
	failures := make([]error, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Workers)
	for idx, symbol := range symbols {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			n, err := m.syncSymbol(gctx, symbol, through)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures[idx] = err
				return nil
			}

			counts[idx] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &SyncReport{Through: through, Symbols: len(symbols)}
	for idx := range symbols {
		report.Candles += counts[idx]
		if failures[idx] != nil {
			m.cfg.Logger.Error().Msgf("syncing %s: %v", symbols[idx], failures[idx])
			report.Failed = append(report.Failed, shared.Skip{Symbol: symbols[idx], Reason: failures[idx]})
		}
	}

	m.cfg.Logger.Info().Msgf("synced %d candles for %d symbols through %s, %d failed",
		report.Candles, report.Symbols, through.Format(shared.DateLayout), len(report.Failed))

	return report, nil
}

// Sync syncs every symbol of the universe through the last complete day. Failures of
// individual symbols are reported rather than returned.
func (m *Manager) Sync(ctx context.Context) (*SyncReport, error) {
	symbols, err := m.fetchSymbols(ctx)
	if err != nil {
		return nil, err
	}

	return m.syncSymbols(ctx, symbols)
}

// SendSyncSignal relays the provided symbol for an out of schedule sync.
func (m *Manager) SendSyncSignal(symbol string) {
	select {
	case m.syncSignals <- strings.ToUpper(symbol):
		// do nothing.
	default:
		m.cfg.Logger.Error().Msgf("sync signal channel at capacity: %d/%d",
			len(m.syncSignals), bufferSize)
	}
}

// syncJob runs the scheduled daily sync.
func (m *Manager) syncJob(ctx context.Context) {
	_, err := m.Sync(ctx)
	if err != nil {
		m.cfg.Logger.Error().Msgf("running daily sync: %v", err)
	}
}

// Run manages the lifecycle processes of the sync manager.
func (m *Manager) Run(ctx context.Context) error {
	_, err := m.cfg.JobScheduler.Every(1).Day().At(m.cfg.SyncTime).Do(m.syncJob, ctx)
	if err != nil {
		return fmt.Errorf("scheduling daily sync: %w", err)
	}

	m.cfg.JobScheduler.StartAsync()
	defer m.cfg.JobScheduler.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case symbol := <-m.syncSignals:
			_, err := m.syncSymbols(ctx, []string{symbol})
			if err != nil && ctx.Err() == nil {
				m.cfg.Logger.Error().Msgf("syncing %s: %v", symbol, err)
			}
		}
	}
}
