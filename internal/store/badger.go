package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/pkg/logger"
)

// BadgerConfig holds configuration for an embedded Badger database.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string
	// InMemory disables disk persistence. Useful for testing.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// GCDiscardRatio is the minimum discardable ratio before a value log rewrite.
	GCDiscardRatio float64
}

// badgerLogger adapts zap to Badger's Logger interface.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Errorf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warnf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debugf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debugf(strings.TrimSpace(format), args...)
}

// OpenBadger opens a Badger database with the given configuration.
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: badger path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{log: logger.WithModule("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// NewBadger opens a Badger database and returns a Store that owns it.
func NewBadger(cfg BadgerConfig, opts ...Option) (*Store, error) {
	db, err := OpenBadger(cfg)
	if err != nil {
		return nil, err
	}
	ratio := cfg.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return newStore(&badgerBackend{db: db, inMemory: cfg.InMemory, gcRatio: ratio}, opts...), nil
}

type badgerBackend struct {
	db       *badger.DB
	inMemory bool
	gcRatio  float64
}

func (b *badgerBackend) name() string { return "badger" }

func (b *badgerBackend) begin(context.Context) (session, error) {
	if b.db.IsClosed() {
		return nil, ErrClosed
	}
	return &badgerSession{txn: b.db.NewTransaction(true)}, nil
}

func (b *badgerBackend) close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

// purge triggers a value log rewrite. Expired keys are dropped by Badger itself, so
// the count is always zero.
func (b *badgerBackend) purge(context.Context, time.Time) (int64, error) {
	if b.inMemory {
		return 0, nil
	}
	err := b.db.RunValueLogGC(b.gcRatio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return 0, err
	}
	return 0, nil
}

type badgerSession struct {
	txn *badger.Txn
}

func (s *badgerSession) load(_ context.Context, key string) ([]byte, error) {
	item, err := s.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (s *badgerSession) commit(_ context.Context, writes []write) error {
	defer s.txn.Discard()
	now := time.Now()
	for _, w := range writes {
		var err error
		if w.delete {
			err = s.txn.Delete([]byte(w.key))
		} else {
			e := badger.NewEntry([]byte(w.key), w.value)
			if !w.expiresAt.IsZero() {
				// Badger expires at second granularity; the entry carries its own
				// millisecond deadline so the physical ttl only has to outlive it.
				e = e.WithTTL(w.expiresAt.Sub(now) + time.Second)
			}
			err = s.txn.SetEntry(e)
		}
		if err != nil {
			return err
		}
	}
	err := s.txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	return err
}

func (s *badgerSession) rollback(context.Context) {
	s.txn.Discard()
}
