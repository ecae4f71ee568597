package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/stock-tracker/internal/errors"
	"github.com/stock-tracker/internal/retry"
	"github.com/stock-tracker/internal/storage"
)

// persistTimeout bounds a write-through that outlives its request
const persistTimeout = 10 * time.Second

// writeJSON serializes v and writes it under key, retrying transient failures
func writeJSON(ctx context.Context, store storage.KeyValueStore, cfg *retry.RetryConfig, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewInternalError(fmt.Sprintf("failed to encode %s", key), err)
	}

	policy := *cfg
	policy.ShouldRetry = apperrors.IsRetryable

	operation := fmt.Sprintf("write %s", key)
	result := retry.WithExponentialBackoff(ctx, &policy, func(ctx context.Context, attempt int) error {
		if err := store.Write(ctx, key, data); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return apperrors.NewDatabaseError(operation, err)
		}
		return nil
	})
	if err := result.Err(); err != nil {
		return apperrors.NewDatabaseError(operation, err)
	}
	return nil
}

// readPayload returns the raw bytes under key; found is false when absent
func readPayload(ctx context.Context, store storage.KeyValueStore, key string) ([]byte, bool, error) {
	data, found, err := store.Read(ctx, key)
	if err != nil {
		return nil, false, apperrors.NewDatabaseError(fmt.Sprintf("read %s", key), err)
	}
	return data, found, nil
}

// detached returns a context for work that must finish even if the caller goes away
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
