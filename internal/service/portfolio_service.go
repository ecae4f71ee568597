package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stock-tracker/internal/adapter"
	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/retry"
	"github.com/stock-tracker/internal/storage"
	"github.com/stock-tracker/internal/types"
	"github.com/stock-tracker/internal/valuation"
)

// RefreshTrigger requests an out-of-band refresh cycle
type RefreshTrigger interface {
	Trigger()
}

// PortfolioService owns the holding list and everything derived from it.
// The in-memory state is authoritative; the store is a write-through copy.
type PortfolioService struct {
	store    storage.KeyValueStore
	quotes   adapter.QuoteProvider
	logger   *logging.Logger
	retryCfg *retry.RetryConfig
	now      func() time.Time

	mu            sync.RWMutex
	holdings      []models.Holding
	totals        models.Totals
	refreshing    bool
	warnings      []Warning
	lastRefreshAt *time.Time
	selected      string
	version       uint64
	subscribers   map[int]chan PortfolioState
	nextSubID     int
	trigger       RefreshTrigger

	// persistMu serializes writes so the last snapshot taken is the last written
	persistMu sync.Mutex
	pending   sync.WaitGroup
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(store storage.KeyValueStore, quotes adapter.QuoteProvider, logger *logging.Logger) *PortfolioService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &PortfolioService{
		store:       store,
		quotes:      quotes,
		logger:      logger.WithField("component", "portfolio"),
		retryCfg:    retry.StoreWriteConfig(),
		now:         func() time.Time { return time.Now().UTC() },
		holdings:    []models.Holding{},
		subscribers: make(map[int]chan PortfolioState),
	}
}

// SetRefreshTrigger wires the scheduler that AddHolding and RemoveHolding nudge
func (s *PortfolioService) SetRefreshTrigger(t RefreshTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trigger = t
}

// AddHoldingInput represents input for adding a holding
type AddHoldingInput struct {
	Symbol        string  `json:"symbol"`
	CompanyName   string  `json:"companyName,omitempty"`
	Shares        float64 `json:"shares"`
	PurchasePrice float64 `json:"purchasePrice"`
}

// AddHolding validates the input, confirms the symbol resolves to a live
// quote and appends the priced holding.
func (s *PortfolioService) AddHolding(ctx context.Context, input *AddHoldingInput) (*models.Holding, error) {
	if input == nil {
		return nil, &types.ServiceError{Code: "INVALID_REQUEST", Message: "Request body is required"}
	}

	holding := models.Holding{
		Symbol:        types.NormalizeSymbol(input.Symbol),
		CompanyName:   input.CompanyName,
		Shares:        input.Shares,
		PurchasePrice: input.PurchasePrice,
	}
	if err := validateHolding(holding); err != nil {
		return nil, err
	}
	if holding.CompanyName == "" {
		holding.CompanyName = holding.Symbol
	}

	if s.contains(holding.Symbol) {
		return nil, duplicateHoldingError(holding.Symbol)
	}

	quote, err := s.quotes.GetQuote(ctx, holding.Symbol)
	outcome := valuation.Outcome{Symbol: holding.Symbol, Quote: quote, Err: err}
	if !outcome.OK() {
		kind := types.FailureMalformedResponse
		if err != nil {
			kind = apperrors.LookupFailureKind(err)
		}
		s.logger.WithField("symbol", holding.Symbol).WithField("kind", kind).WithError(err).Warn("Symbol did not resolve")
		return nil, &types.ServiceError{
			Code:    "SYMBOL_NOT_RESOLVED",
			Message: fmt.Sprintf("Could not get a quote for %s", holding.Symbol),
			Details: map[string]interface{}{
				"symbol": holding.Symbol,
				"kind":   kind,
			},
		}
	}

	holding = valuation.Valuate(holding, outcome)

	s.mu.Lock()
	// the lookup ran unlocked, so a concurrent add may have won
	if s.indexOf(holding.Symbol) >= 0 {
		s.mu.Unlock()
		return nil, duplicateHoldingError(holding.Symbol)
	}
	next := make([]models.Holding, 0, len(s.holdings)+1)
	next = append(next, s.holdings...)
	next = append(next, holding)
	s.replaceHoldingsLocked(next)
	trigger := s.trigger
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"symbol": holding.Symbol,
		"shares": holding.Shares,
		"price":  quote.Price,
	}).Info("Holding added")

	s.persistNow(ctx)
	if trigger != nil {
		trigger.Trigger()
	}

	return &holding, nil
}

// RemoveHolding deletes the holding for symbol. Removing a symbol that is not
// held reports false and writes nothing.
func (s *PortfolioService) RemoveHolding(ctx context.Context, symbol string) (bool, error) {
	symbol = types.NormalizeSymbol(symbol)
	if symbol == "" {
		return false, &types.ServiceError{Code: "INVALID_SYMBOL", Message: "Symbol is required"}
	}

	s.mu.Lock()
	idx := s.indexOf(symbol)
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	next := make([]models.Holding, 0, len(s.holdings)-1)
	next = append(next, s.holdings[:idx]...)
	next = append(next, s.holdings[idx+1:]...)
	s.replaceHoldingsLocked(next)
	if s.selected == symbol {
		s.selected = ""
	}
	trigger := s.trigger
	s.mu.Unlock()

	s.logger.WithField("symbol", symbol).Info("Holding removed")

	s.persistNow(ctx)
	if trigger != nil {
		trigger.Trigger()
	}
	return true, nil
}

// Load restores the holdings from the store. An absent or unreadable record
// leaves an empty portfolio. Derived fields are never trusted from storage.
func (s *PortfolioService) Load(ctx context.Context) error {
	data, found, err := readPayload(ctx, s.store, types.KeyPortfolio)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read portfolio, starting empty")
		return err
	}
	if !found {
		s.logger.Info("No stored portfolio, starting empty")
		return nil
	}

	holdings, err := decodeHoldings(data, s.logger)
	if err != nil {
		s.logger.WithError(err).Warn("Stored portfolio is corrupt, starting empty")
		return nil
	}

	s.mu.Lock()
	s.replaceHoldingsLocked(holdings)
	s.mu.Unlock()

	s.logger.WithField("holdings", len(holdings)).Info("Portfolio loaded")
	return nil
}

// Persist writes the current holdings through to the store. A failure is
// logged, surfaced as a warning and returned; memory stays authoritative.
func (s *PortfolioService) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	// snapshot after taking persistMu so writes land in mutation order
	s.mu.RLock()
	holdings := s.holdings
	s.mu.RUnlock()

	if err := writeJSON(ctx, s.store, s.retryCfg, types.KeyPortfolio, holdings); err != nil {
		s.logger.WithError(err).Error("Failed to persist portfolio")
		s.mu.Lock()
		s.setWarningLocked(WarningPersistenceFailed, "", "Portfolio changes could not be saved")
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.dropWarningsLocked(func(w Warning) bool { return w.Kind == WarningPersistenceFailed }) {
		s.version++
		s.publishLocked()
	}
	s.mu.Unlock()
	return nil
}

// persistNow writes synchronously on a context the caller cannot cancel
func (s *PortfolioService) persistNow(ctx context.Context) {
	ctx, cancel := detached(ctx)
	defer cancel()
	_ = s.Persist(ctx)
}

// persistAsync schedules a write that Wait will block on
func (s *PortfolioService) persistAsync(ctx context.Context) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := detached(ctx)
		defer cancel()
		_ = s.Persist(ctx)
	}()
}

// Wait blocks until every scheduled write-through has finished
func (s *PortfolioService) Wait() {
	s.pending.Wait()
}

// Holdings returns a copy of the current holdings
func (s *PortfolioService) Holdings() []models.Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Holding(nil), s.holdings...)
}

// SetRefreshing flips the loading indicator
func (s *PortfolioService) SetRefreshing(refreshing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing == refreshing {
		return
	}
	s.refreshing = refreshing
	s.version++
	s.publishLocked()
}

// CommitRefresh atomically applies one cycle's valuation to the current
// holdings. Holdings removed during the cycle stay removed; holdings added
// during it keep their own price.
func (s *PortfolioService) CommitRefresh(ctx context.Context, result RefreshResult) {
	valued := make(map[string]models.Holding, len(result.Holdings))
	for _, h := range result.Holdings {
		valued[h.Symbol] = h
	}

	s.mu.Lock()
	next := make([]models.Holding, len(s.holdings))
	for i, h := range s.holdings {
		v, ok := valued[h.Symbol]
		if !ok {
			next[i] = h
			continue
		}
		h = h.WithoutValuation()
		h.CurrentPrice, h.Value, h.Gain, h.GainPercentage, h.PricedAt = v.CurrentPrice, v.Value, v.Gain, v.GainPercentage, v.PricedAt
		// a resized position needs its own figures from the same price
		if v.CurrentPrice != nil && (v.Shares != h.Shares || v.PurchasePrice != h.PurchasePrice) {
			quote := &models.Quote{Symbol: h.Symbol, Price: *v.CurrentPrice}
			if v.PricedAt != nil {
				quote.FetchedAt = *v.PricedAt
			}
			h = valuation.Valuate(h, valuation.Outcome{Symbol: h.Symbol, Quote: quote})
		}
		next[i] = h
	}

	s.dropWarningsLocked(func(w Warning) bool {
		return w.Kind == WarningLookupFailed || w.Kind == WarningRefreshFailed
	})
	// symbols removed mid-cycle get no warning
	failed := make([]string, 0, len(result.Failed))
	for _, symbol := range result.Failed {
		if s.indexOf(symbol) >= 0 {
			failed = append(failed, symbol)
		}
	}
	switch {
	case len(failed) == 0:
	case result.AllFailed():
		s.addWarningLocked(WarningRefreshFailed, "", "Prices could not be refreshed; showing cost basis only")
	default:
		for _, symbol := range failed {
			s.addWarningLocked(WarningLookupFailed, symbol, fmt.Sprintf("Price for %s is unavailable", symbol))
		}
	}

	finished := result.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	s.lastRefreshAt = &finished
	s.refreshing = false
	s.replaceHoldingsLocked(next)
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"cycleId":   result.CycleID,
		"attempted": result.Attempted,
		"failed":    len(result.Failed),
	}).Info("Refresh committed")

	s.persistAsync(ctx)
}

// Snapshot returns the current observable state
func (s *PortfolioService) Snapshot() PortfolioState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that always holds the latest state. Intermediate
// states may be skipped. The returned func unsubscribes and closes the channel.
func (s *PortfolioService) Subscribe() (<-chan PortfolioState, func()) {
	ch := make(chan PortfolioState, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// DismissWarning removes the warning with id; false when there is none
func (s *PortfolioService) DismissWarning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dropWarningsLocked(func(w Warning) bool { return w.ID == id }) {
		return false
	}
	s.version++
	s.publishLocked()
	return true
}

// SelectSymbol marks symbol as the one shown in the detail view and returns
// the descriptor the detail view is opened with.
func (s *PortfolioService) SelectSymbol(symbol string) (*models.Stock, error) {
	symbol = types.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, &types.ServiceError{Code: "INVALID_SYMBOL", Message: "Symbol is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(symbol)
	if idx < 0 {
		return nil, &types.ServiceError{
			Code:    "HOLDING_NOT_FOUND",
			Message: fmt.Sprintf("No holding for %s", symbol),
			Details: map[string]interface{}{"symbol": symbol},
		}
	}

	s.selected = symbol
	s.version++
	s.publishLocked()

	h := s.holdings[idx]
	return &models.Stock{
		Symbol:        h.Symbol,
		DisplaySymbol: h.Symbol,
		Description:   h.CompanyName,
	}, nil
}

// Helper functions

func (s *PortfolioService) contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(symbol) >= 0
}

// indexOf requires s.mu
func (s *PortfolioService) indexOf(symbol string) int {
	for i, h := range s.holdings {
		if h.Symbol == symbol {
			return i
		}
	}
	return -1
}

// replaceHoldingsLocked installs a new holding slice. Slices are never mutated
// after installation, so snapshots can share them.
func (s *PortfolioService) replaceHoldingsLocked(next []models.Holding) {
	s.holdings = next
	s.totals = valuation.ComputeTotals(next)
	s.version++
	s.publishLocked()
}

func (s *PortfolioService) snapshotLocked() PortfolioState {
	state := PortfolioState{
		Holdings:       append([]models.Holding{}, s.holdings...),
		Totals:         s.totals,
		Loading:        s.refreshing,
		Warnings:       append([]Warning{}, s.warnings...),
		SelectedSymbol: s.selected,
		Version:        s.version,
	}
	if s.lastRefreshAt != nil {
		t := *s.lastRefreshAt
		state.LastRefreshAt = &t
	}
	return state
}

// publishLocked replaces whatever each subscriber has not consumed yet
func (s *PortfolioService) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	state := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}

func (s *PortfolioService) addWarningLocked(kind WarningKind, symbol, message string) {
	s.warnings = append(s.warnings, Warning{
		ID:        uuid.NewString(),
		Kind:      kind,
		Symbol:    symbol,
		Message:   message,
		CreatedAt: s.now(),
	})
}

// setWarningLocked keeps at most one warning per kind and symbol
func (s *PortfolioService) setWarningLocked(kind WarningKind, symbol, message string) {
	s.dropWarningsLocked(func(w Warning) bool { return w.Kind == kind && w.Symbol == symbol })
	s.addWarningLocked(kind, symbol, message)
	s.version++
	s.publishLocked()
}

func (s *PortfolioService) dropWarningsLocked(match func(Warning) bool) bool {
	kept := s.warnings[:0:0]
	for _, w := range s.warnings {
		if !match(w) {
			kept = append(kept, w)
		}
	}
	dropped := len(kept) != len(s.warnings)
	s.warnings = kept
	return dropped
}

func validateHolding(h models.Holding) error {
	if h.Symbol == "" {
		return &types.ServiceError{Code: "INVALID_SYMBOL", Message: "Symbol is required"}
	}
	if err := h.Validate(); err != nil {
		code := "INVALID_SHARES"
		if h.Shares > 0 {
			code = "INVALID_PRICE"
		}
		return &types.ServiceError{
			Code:    code,
			Message: err.Error(),
			Details: map[string]interface{}{
				"shares":        h.Shares,
				"purchasePrice": h.PurchasePrice,
			},
		}
	}
	return nil
}

func duplicateHoldingError(symbol string) error {
	return apperrors.NewConflictError("DUPLICATE_HOLDING",
		fmt.Sprintf("%s is already in the portfolio", symbol),
		map[string]interface{}{"symbol": symbol})
}

// decodeHoldings parses a stored holding list. Invalid records are dropped and
// repeated symbols are merged into one position at the weighted average price.
func decodeHoldings(data []byte, logger *logging.Logger) ([]models.Holding, error) {
	var stored []models.Holding
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	holdings := make([]models.Holding, 0, len(stored))
	index := make(map[string]int, len(stored))
	for _, h := range stored {
		h = h.WithoutValuation()
		h.Symbol = types.NormalizeSymbol(h.Symbol)
		if err := h.Validate(); err != nil {
			logger.WithField("symbol", h.Symbol).WithError(err).Warn("Dropping invalid stored holding")
			continue
		}
		if h.CompanyName == "" {
			h.CompanyName = h.Symbol
		}

		if i, ok := index[h.Symbol]; ok {
			merged := holdings[i]
			cost := merged.CostBasis() + h.CostBasis()
			merged.Shares += h.Shares
			merged.PurchasePrice = cost / merged.Shares
			holdings[i] = merged
			logger.WithField("symbol", h.Symbol).Warn("Merged duplicate stored holding")
			continue
		}
		index[h.Symbol] = len(holdings)
		holdings = append(holdings, h)
	}
	return holdings, nil
}
