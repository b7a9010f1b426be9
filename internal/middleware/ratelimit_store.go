package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/charlesng35/waitlist/internal/store"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

type storeRateStore struct {
	store *store.Store
}

// NewStoreRateStore keeps fixed-window counters in the waitlist store so every
// instance sharing the backend shares the limit.
func NewStoreRateStore(st *store.Store) (RateStore, error) {
	if st == nil {
		return nil, errors.New("rate limit: store is required")
	}
	return &storeRateStore{store: st}, nil
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	var (
		count int64
		ttl   time.Duration
	)
	err := s.store.Atomic(ctx, func(tx *store.Tx) error {
		var err error
		if count, err = tx.IncrBy(key, 1); err != nil {
			return err
		}
		if count == 1 {
			if _, err := tx.Expire(key, window); err != nil {
				return err
			}
			ttl = window
			return nil
		}
		ttl, _, err = tx.TTL(key)
		return err
	})
	return int(count), ttl, err
}
