package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/service"
	"github.com/stock-tracker/internal/valuation"
)

// Portfolio is the part of the portfolio service a refresh cycle drives
type Portfolio interface {
	Holdings() []models.Holding
	SetRefreshing(refreshing bool)
	CommitRefresh(ctx context.Context, result service.RefreshResult)
}

// RefreshWorker re-prices the portfolio on a fixed interval. Cycles never
// overlap: the next one is scheduled only after the previous one commits.
type RefreshWorker struct {
	portfolio Portfolio
	quotes    valuation.QuoteSource
	interval  time.Duration
	gather    valuation.GatherOptions
	logger    *logging.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cancel  context.CancelFunc

	// cycleMu keeps RunOnce callers outside the loop from overlapping it
	cycleMu   sync.Mutex
	triggerCh chan struct{}

	statsMu sync.RWMutex
	stats   RefreshStats
}

// RefreshWorkerConfig holds configuration for a refresh worker
type RefreshWorkerConfig struct {
	Portfolio            Portfolio
	Quotes               valuation.QuoteSource
	Interval             time.Duration
	LookupTimeout        time.Duration
	MaxConcurrentLookups int
	Logger               *logging.Logger
}

// RefreshStats describes the worker's recent activity
type RefreshStats struct {
	Running      bool          `json:"running"`
	Interval     time.Duration `json:"interval"`
	Cycles       int64         `json:"cycles"`
	LastCycleID  string        `json:"lastCycleId,omitempty"`
	LastCycleAt  *time.Time    `json:"lastCycleAt,omitempty"`
	LastDuration time.Duration `json:"lastDuration"`
	LastFailed   []string      `json:"lastFailed,omitempty"`
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(cfg *RefreshWorkerConfig) (*RefreshWorker, error) {
	if cfg.Portfolio == nil {
		return nil, fmt.Errorf("portfolio cannot be nil")
	}
	if cfg.Quotes == nil {
		return nil, fmt.Errorf("quote source cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %v", cfg.Interval)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &RefreshWorker{
		portfolio: cfg.Portfolio,
		quotes:    cfg.Quotes,
		interval:  cfg.Interval,
		gather: valuation.GatherOptions{
			MaxConcurrent: cfg.MaxConcurrentLookups,
			LookupTimeout: cfg.LookupTimeout,
		},
		logger:    logger.WithField("component", "refresh"),
		triggerCh: make(chan struct{}, 1),
		stats:     RefreshStats{Interval: cfg.Interval},
	}, nil
}

// Start runs one cycle immediately and then one per interval until Stop
func (w *RefreshWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("refresh worker is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	w.logger.WithField("interval", w.interval.String()).Info("Starting refresh worker")

	go w.loop(loopCtx, w.stopCh, w.doneCh)
	return nil
}

// Stop cancels the schedule and any in-flight cycle, then waits for the loop
// to exit. Stopping a worker that is not running is a no-op.
func (w *RefreshWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh, cancel := w.stopCh, w.doneCh, w.cancel
	w.mu.Unlock()

	w.logger.Info("Stopping refresh worker")
	close(stopCh)
	cancel()

	select {
	case <-doneCh:
		w.logger.Info("Refresh worker stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("Refresh worker stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the schedule is active
func (w *RefreshWorker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Trigger asks for a cycle as soon as the current one, if any, commits.
// Triggers that arrive while one is pending collapse into it.
func (w *RefreshWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *RefreshWorker) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	w.runScheduled(ctx, "start")

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-timer.C:
			w.runScheduled(ctx, "interval")
		case <-w.triggerCh:
			w.runScheduled(ctx, "trigger")
		}
		// the interval counts from the end of the last cycle
		timer.Reset(w.interval)
	}
}

func (w *RefreshWorker) runScheduled(ctx context.Context, reason string) {
	if _, err := w.RunOnce(ctx); err != nil {
		w.logger.WithField("reason", reason).WithError(err).Warn("Refresh cycle abandoned")
	}
}

// RunOnce performs one refresh cycle: snapshot the holdings, look every
// symbol up concurrently, valuate and commit atomically. An empty portfolio
// is a no-op. A cycle whose context ends before the lookups settle commits
// nothing.
func (w *RefreshWorker) RunOnce(ctx context.Context) (*service.RefreshResult, error) {
	w.cycleMu.Lock()
	defer w.cycleMu.Unlock()

	holdings := w.portfolio.Holdings()
	if len(holdings) == 0 {
		w.logger.Debug("Portfolio is empty, skipping refresh")
		return nil, nil
	}

	cycleID := uuid.NewString()
	logger := w.logger.WithField("cycleId", cycleID)
	ctx = logging.WithLogger(ctx, logger)
	started := time.Now()

	w.portfolio.SetRefreshing(true)

	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}
	outcomes := valuation.Gather(ctx, w.quotes, symbols, w.gather)

	if err := ctx.Err(); err != nil {
		w.portfolio.SetRefreshing(false)
		return nil, err
	}

	valued, totals := valuation.ValuatePortfolio(holdings, outcomes)
	result := service.RefreshResult{
		CycleID:    cycleID,
		Holdings:   valued,
		Attempted:  len(holdings),
		Failed:     valuation.Failed(outcomes),
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	w.portfolio.CommitRefresh(ctx, result)

	duration := result.FinishedAt.Sub(result.StartedAt)
	w.statsMu.Lock()
	w.stats.Cycles++
	w.stats.LastCycleID = cycleID
	w.stats.LastCycleAt = &result.FinishedAt
	w.stats.LastDuration = duration
	w.stats.LastFailed = result.Failed
	w.statsMu.Unlock()

	logger.WithFields(map[string]interface{}{
		"holdings":   len(holdings),
		"failed":     len(result.Failed),
		"totalValue": totals.TotalValue,
		"duration":   duration.String(),
	}).Info("Refresh cycle complete")

	return &result, nil
}

// Stats returns a copy of the worker's activity counters
func (w *RefreshWorker) Stats() RefreshStats {
	w.statsMu.RLock()
	stats := w.stats
	w.statsMu.RUnlock()

	stats.Running = w.IsRunning()
	stats.LastFailed = append([]string(nil), stats.LastFailed...)
	if stats.LastCycleAt != nil {
		t := *stats.LastCycleAt
		stats.LastCycleAt = &t
	}
	return stats
}
