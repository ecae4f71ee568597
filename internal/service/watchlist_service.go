package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/models"
	"github.com/stock-tracker/internal/retry"
	"github.com/stock-tracker/internal/storage"
	"github.com/stock-tracker/internal/types"
)

// WatchlistService keeps the ordered, duplicate-free list of watched symbols
type WatchlistService struct {
	store    storage.KeyValueStore
	logger   *logging.Logger
	retryCfg *retry.RetryConfig
	now      func() time.Time

	mu    sync.RWMutex
	items []models.WatchlistItem

	persistMu sync.Mutex
}

// NewWatchlistService creates a new watchlist service
func NewWatchlistService(store storage.KeyValueStore, logger *logging.Logger) *WatchlistService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &WatchlistService{
		store:    store,
		logger:   logger.WithField("component", "watchlist"),
		retryCfg: retry.StoreWriteConfig(),
		now:      func() time.Time { return time.Now().UTC() },
		items:    []models.WatchlistItem{},
	}
}

// Load restores the watchlist. Absent or corrupt data yields an empty list.
func (s *WatchlistService) Load(ctx context.Context) error {
	data, found, err := readPayload(ctx, s.store, types.KeyWatchlist)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read watchlist, starting empty")
		return err
	}
	if !found {
		return nil
	}

	var stored []models.WatchlistItem
	if err := json.Unmarshal(data, &stored); err != nil {
		s.logger.WithError(err).Warn("Stored watchlist is corrupt, starting empty")
		return nil
	}

	items := make([]models.WatchlistItem, 0, len(stored))
	seen := make(map[string]bool, len(stored))
	for _, item := range stored {
		item.Symbol = types.NormalizeSymbol(item.Symbol)
		if item.Symbol == "" || seen[item.Symbol] {
			continue
		}
		seen[item.Symbol] = true
		items = append(items, item)
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.logger.WithField("symbols", len(items)).Info("Watchlist loaded")
	return nil
}

// Add appends symbol if it is not already watched. added is false for a
// symbol already on the list, in which case nothing is written.
func (s *WatchlistService) Add(ctx context.Context, symbol, companyName string) (item models.WatchlistItem, added bool, err error) {
	symbol = types.NormalizeSymbol(symbol)
	if symbol == "" {
		return models.WatchlistItem{}, false, &types.ServiceError{Code: "INVALID_SYMBOL", Message: "Symbol is required"}
	}

	s.mu.Lock()
	for _, existing := range s.items {
		if existing.Symbol == symbol {
			s.mu.Unlock()
			return existing, false, nil
		}
	}
	if companyName == "" {
		companyName = symbol
	}
	item = models.WatchlistItem{Symbol: symbol, CompanyName: companyName, AddedAt: s.now()}
	next := make([]models.WatchlistItem, 0, len(s.items)+1)
	next = append(next, s.items...)
	s.items = append(next, item)
	s.mu.Unlock()

	s.persist(ctx)
	return item, true, nil
}

// Remove drops symbol from the list. Absent symbols are a no-op without a write.
func (s *WatchlistService) Remove(ctx context.Context, symbol string) (bool, error) {
	symbol = types.NormalizeSymbol(symbol)
	if symbol == "" {
		return false, &types.ServiceError{Code: "INVALID_SYMBOL", Message: "Symbol is required"}
	}

	s.mu.Lock()
	idx := -1
	for i, item := range s.items {
		if item.Symbol == symbol {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	next := make([]models.WatchlistItem, 0, len(s.items)-1)
	next = append(next, s.items[:idx]...)
	s.items = append(next, s.items[idx+1:]...)
	s.mu.Unlock()

	s.persist(ctx)
	return true, nil
}

// List returns a copy of the watched items in insertion order
func (s *WatchlistService) List() []models.WatchlistItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.WatchlistItem{}, s.items...)
}

// Contains reports whether symbol is watched
func (s *WatchlistService) Contains(symbol string) bool {
	symbol = types.NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Symbol == symbol {
			return true
		}
	}
	return false
}

func (s *WatchlistService) persist(ctx context.Context) {
	ctx, cancel := detached(ctx)
	defer cancel()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	items := s.items
	s.mu.RUnlock()

	if err := writeJSON(ctx, s.store, s.retryCfg, types.KeyWatchlist, items); err != nil {
		s.logger.WithError(err).Error("Failed to persist watchlist")
	}
}
