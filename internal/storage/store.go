// Package storage provides the persistent key-value store backends for the
// portfolio and watchlist payloads.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/stock-tracker/internal/config"
)

// KeyValueStore is a durable byte store scoped to one user profile.
// Read reports found=false for an absent key.
type KeyValueStore interface {
	Read(ctx context.Context, key string) (data []byte, found bool, err error)
	Write(ctx context.Context, key string, data []byte) error
}

// MemoryStore is an in-process KeyValueStore
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Read returns a copy of the stored bytes
func (m *MemoryStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Write replaces the value stored under key
func (m *MemoryStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := make([]byte, len(data))
	copy(v, data)

	m.mu.Lock()
	m.data[key] = v
	m.mu.Unlock()
	return nil
}

// Backend is an opened store together with its release function
type Backend struct {
	Store KeyValueStore
	Name  string
	close func() error
}

// Close releases the backend's connections
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects the backend selected by cfg.Store.Backend
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		return &Backend{Store: NewMemoryStore(), Name: config.StoreBackendMemory}, nil

	case config.StoreBackendRedis:
		cache, err := NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			return nil, err
		}
		store := NewRedisStore(cache.Client(), cfg.Store.KeyPrefix)
		return &Backend{Store: store, Name: config.StoreBackendRedis, close: cache.Close}, nil

	case config.StoreBackendPostgres:
		pgCfg := cfg.Database.Postgres
		if err := RunMigrations(pgCfg.URL(), pgCfg.MigrationsPath); err != nil {
			return nil, err
		}
		db, err := NewPostgresDB(&pgCfg)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(db, cfg.Store.KeyPrefix)
		return &Backend{Store: store, Name: config.StoreBackendPostgres, close: func() error {
			db.Close()
			return nil
		}}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
