package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/waitlist/internal/database"
	"github.com/charlesng35/waitlist/internal/ordering"
	"github.com/charlesng35/waitlist/internal/services"
	"github.com/charlesng35/waitlist/internal/store"
	"github.com/charlesng35/waitlist/pkg/logger"
)

// Runtime bundles the store and the services built on it. It is shared by the
// HTTP server and the operator CLI.
type Runtime struct {
	Config    *Config
	Store     *store.Store
	DB        *gorm.DB
	Waitlist  *services.WaitlistService
	Signup    *services.SignupService
	Invites   *services.InviteCodeService
	Community *services.CommunityCodeService
}

// OpenStore opens the configured backend. The returned *gorm.DB is non-nil only
// for the database backend and must be closed by the caller.
func OpenStore(cfg *Config) (*store.Store, *gorm.DB, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is nil")
	}
	opts := []store.Option{store.WithMaxConflictRetries(cfg.Store.MaxConflictRetries)}
	log := logger.WithModule("bootstrap")

	switch backend := strings.ToLower(strings.TrimSpace(cfg.Store.Backend)); backend {
	case "", "memory":
		return store.NewMemory(opts...), nil, nil
	case "database", "sql":
		db, err := database.OpenAndMigrate(cfg.Database.ConnectionConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		st, err := store.NewDatabase(db, opts...)
		if err != nil {
			_ = database.Close(db)
			return nil, nil, err
		}
		log.Info("database store ready", zap.String("driver", cfg.Database.ConnectionConfig().Driver))
		return st, db, nil
	case "redis":
		st, err := store.NewRedis(cfg.Redis.StoreConfig(), opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("redis store ready", zap.String("addr", cfg.Redis.Address))
		return st, nil, nil
	case "badger":
		st, err := store.NewBadger(cfg.Badger.StoreConfig(), opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		log.Info("badger store ready", zap.String("path", cfg.Badger.Path), zap.Bool("in_memory", cfg.Badger.InMemory))
		return st, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

// Strategy builds the configured ordering strategy.
func (c WaitlistConfig) Strategy() (ordering.Strategy, error) {
	return ordering.New(ordering.Config{
		Strategy: c.OrderStrategy,
		Key:      "waitlist:order",
		Gap:      c.ScoreGap,
		MinGap:   c.ScoreMinGap,
	})
}

// NewRuntime opens the store and wires every service from cfg. It refuses to
// start against an order written with a different strategy.
func NewRuntime(ctx context.Context, cfg *Config) (*Runtime, error) {
	st, db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Store: st, DB: db}
	success := false
	defer func() {
		if !success {
			_ = rt.Close()
		}
	}()

	if err := rt.buildServices(); err != nil {
		return nil, err
	}
	if err := rt.Waitlist.EnsureStrategy(ctx); err != nil {
		return nil, fmt.Errorf("check order strategy: %w", err)
	}

	success = true
	return rt, nil
}

func (r *Runtime) buildServices() error {
	cfg := r.Config
	order, err := cfg.Waitlist.Strategy()
	if err != nil {
		return err
	}

	r.Waitlist, err = services.NewWaitlistService(r.Store,
		services.WithOrderStrategy(order),
		services.WithMaxLength(cfg.Waitlist.MaxLength),
		services.WithMoveRetry(cfg.Waitlist.MoveAttempts, cfg.Waitlist.MoveBackoff),
		services.WithLeaseTTL(cfg.Waitlist.LeaseTTL),
		services.WithMoveInsertsAbsent(cfg.Waitlist.MoveInsertsAbsent),
	)
	if err != nil {
		return fmt.Errorf("initialise waitlist service: %w", err)
	}

	r.Signup, err = services.NewSignupService(r.Store, r.Waitlist.Order())
	if err != nil {
		return fmt.Errorf("initialise signup service: %w", err)
	}

	r.Invites, err = services.NewInviteCodeService(r.Waitlist,
		services.WithInviteCodeLength(cfg.Invites.CodeLength),
		services.WithInviteAlphabet(cfg.Invites.Alphabet),
		services.WithMaxCodesPerCreator(cfg.Invites.MaxPerCreator),
		services.WithGenerateAttempts(cfg.Invites.GenerateAttempts),
		services.WithDefaultMinBump(cfg.Invites.DefaultMinBump),
	)
	if err != nil {
		return fmt.Errorf("initialise invite code service: %w", err)
	}

	r.Community, err = services.NewCommunityCodeService(r.Waitlist)
	if err != nil {
		return fmt.Errorf("initialise community code service: %w", err)
	}
	return nil
}

// Close releases the store and, for the database backend, the connection pool.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs error
	if r.Store != nil {
		errs = multierr.Append(errs, r.Store.Close())
	}
	if r.DB != nil {
		errs = multierr.Append(errs, database.Close(r.DB))
	}
	return errs
}
