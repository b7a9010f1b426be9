package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/pkg/metrics"
)

const leaseKeyPrefix = "lease:"

// Lease is a time-bounded exclusive claim on a named resource. A holder that
// crashes loses the lease once ttl elapses.
type Lease struct {
	store    *Store
	resource string
	token    string
	expires  time.Time
}

// AcquireLease claims resource for ttl. It returns ErrLeaseBusy when another holder
// has a live claim.
func (s *Store) AcquireLease(ctx context.Context, resource string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		return nil, errors.New("store: lease ttl must be positive")
	}
	token := uuid.NewString()
	key := leaseKeyPrefix + resource

	var (
		acquired bool
		expires  time.Time
	)
	err := s.Atomic(ctx, func(tx *Tx) error {
		ok, err := tx.SetNX(key, token, ttl)
		acquired = ok
		expires = tx.Now().Add(ttl)
		return err
	})
	switch {
	case err != nil:
		metrics.LeaseAcquisitions.WithLabelValues(resource, "error").Inc()
		return nil, err
	case !acquired:
		metrics.LeaseAcquisitions.WithLabelValues(resource, "busy").Inc()
		return nil, ErrLeaseBusy
	}
	metrics.LeaseAcquisitions.WithLabelValues(resource, "acquired").Inc()
	return &Lease{store: s, resource: resource, token: token, expires: expires}, nil
}

// Resource returns the leased resource name.
func (l *Lease) Resource() string { return l.resource }

// Expires returns when the lease lapses unless released earlier.
func (l *Lease) Expires() time.Time { return l.expires }

// Release gives the lease up if it is still held by this holder. Releasing an
// expired or already released lease is not an error.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key := leaseKeyPrefix + l.resource
	return l.store.Atomic(context.WithoutCancel(ctx), func(tx *Tx) error {
		current, ok, err := tx.Get(key)
		if err != nil || !ok || current != l.token {
			return err
		}
		_, err = tx.Del(key)
		return err
	})
}

// WithLease runs fn while holding resource. fn receives a context that is cancelled
// when the lease lapses.
func (s *Store) WithLease(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := s.AcquireLease(ctx, resource, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := lease.Release(ctx); relErr != nil {
			s.log.Warn("lease release failed", zap.String("resource", resource), zap.Error(relErr))
		}
	}()

	leaseCtx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	return fn(leaseCtx)
}
