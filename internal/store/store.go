// Package store provides the key-value/list store the waitlist is built on.
//
// The store is a black box offering one indivisible primitive, Atomic, which runs a
// function against a read snapshot and commits every write the function staged as a
// single unit, or none of them. Strings, hashes, sets, lists and sorted sets are
// available inside the transaction. Four backends share the same engine: an
// in-process memory store, a SQL database through GORM, Redis through a minimal
// RESP client, and an embedded Badger database.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/pkg/logger"
	"github.com/charlesng35/waitlist/pkg/metrics"
)

const defaultMaxConflictRetries = 8

// backend is implemented by each storage engine.
type backend interface {
	name() string
	begin(ctx context.Context) (session, error)
	close() error
}

// session is a single optimistic transaction against a backend. load registers the key
// as read; commit must fail with ErrConflict when any loaded key changed since.
// Exactly one of commit or rollback is called per session.
type session interface {
	load(ctx context.Context, key string) ([]byte, error)
	commit(ctx context.Context, writes []write) error
	rollback(ctx context.Context)
}

// purger is implemented by backends that keep expired entries until removed.
type purger interface {
	purge(ctx context.Context, now time.Time) (int64, error)
}

type write struct {
	key       string
	value     []byte
	expiresAt time.Time
	existed   bool
	delete    bool
}

// Option customises a Store.
type Option func(*Store)

// WithMaxConflictRetries bounds how many times a conflicting transaction is re-run.
func WithMaxConflictRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithClock injects a custom clock, primarily for expiry tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Store executes atomic transactions against a backend.
type Store struct {
	backend backend
	retries int
	now     func() time.Time
	log     *zap.Logger
}

func newStore(b backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		retries: defaultMaxConflictRetries,
		now:     time.Now,
		log:     logger.WithModule("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the backend name (memory, database, redis, badger).
func (s *Store) Backend() string {
	return s.backend.name()
}

// Atomic runs fn inside one transaction. Writes staged through tx are committed
// together when fn returns nil and discarded when it returns an error. On an
// optimistic conflict fn is run again from a fresh snapshot, so fn must not cause
// effects outside tx.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, false, fn)
}

// View runs fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	return s.run(ctx, true, fn)
}

// errRetry reports an optimistic conflict from one attempt.
var errRetry = errors.New("store: retry transaction")

func (s *Store) run(ctx context.Context, readOnly bool, fn func(tx *Tx) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	backendName := s.backend.name()
	attempts := s.retries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.attempt(ctx, backendName, readOnly, fn)
		if !errors.Is(err, errRetry) {
			return err
		}
		metrics.StoreConflicts.WithLabelValues(backendName).Inc()
		s.log.Debug("transaction conflict, retrying",
			zap.String("backend", backendName),
			zap.Int("attempt", attempt),
		)
	}

	metrics.StoreTransactions.WithLabelValues(backendName, "conflict").Inc()
	return fmt.Errorf("%w after %d attempts", ErrConflict, attempts)
}

// attempt runs fn once against a fresh session. The session is rolled back
// on every path that does not reach commit, including a panic in fn.
func (s *Store) attempt(ctx context.Context, backendName string, readOnly bool, fn func(tx *Tx) error) error {
	sess, err := s.backend.begin(ctx)
	if err != nil {
		metrics.StoreTransactions.WithLabelValues(backendName, "error").Inc()
		if errors.Is(err, ErrClosed) {
			return err
		}
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}

	committing := false
	defer func() {
		if !committing {
			sess.rollback(ctx)
		}
	}()

	tx := newTx(ctx, sess, s.now(), readOnly)
	fnErr := fn(tx)

	if tx.failure != nil {
		metrics.StoreTransactions.WithLabelValues(backendName, "error").Inc()
		return tx.failure
	}
	if fnErr != nil {
		metrics.StoreTransactions.WithLabelValues(backendName, "abort").Inc()
		return fnErr
	}

	writes, err := tx.pendingWrites()
	if err != nil {
		metrics.StoreTransactions.WithLabelValues(backendName, "error").Inc()
		return err
	}

	committing = true
	err = sess.commit(ctx, writes)
	switch {
	case err == nil:
		metrics.StoreTransactions.WithLabelValues(backendName, "commit").Inc()
		return nil
	case errors.Is(err, ErrConflict):
		return errRetry
	default:
		metrics.StoreTransactions.WithLabelValues(backendName, "error").Inc()
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
}

// Purge removes expired entries for backends that retain them. It returns 0 for
// backends that expire keys natively.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	p, ok := s.backend.(purger)
	if !ok {
		return 0, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return p.purge(ctx, s.now())
}

// Close releases resources owned by the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.close()
}
