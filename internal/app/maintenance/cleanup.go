package maintenance

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/waitlist/internal/ordering"
	"github.com/charlesng35/waitlist/internal/services"
	"github.com/charlesng35/waitlist/internal/store"
	"github.com/charlesng35/waitlist/pkg/logger"
	"github.com/charlesng35/waitlist/pkg/metrics"
)

const (
	defaultGaugeSpec     = "@every 1m"
	defaultPurgeSpec     = "@hourly"
	defaultRebalanceSpec = "@daily"
)

// Runner coordinates background maintenance: refreshing the length and cutoff
// gauges, purging expired store entries and renumbering a score order.
type Runner struct {
	store    *store.Store
	waitlist *services.WaitlistService
	signup   *services.SignupService
	cron     *cron.Cron
	log      *zap.Logger

	gaugeSchedule     string
	purgeSchedule     string
	rebalanceSchedule string
}

type job struct {
	spec string
	name string
	run  func(context.Context) error
}

// Option customises the Runner.
type Option func(*Runner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(r *Runner) {
		if c != nil {
			r.cron = c
		}
	}
}

// WithGaugeSchedule overrides the cron expression for gauge refreshes.
func WithGaugeSchedule(spec string) Option {
	return func(r *Runner) {
		if spec != "" {
			r.gaugeSchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron expression for expired entry purges.
func WithPurgeSchedule(spec string) Option {
	return func(r *Runner) {
		if spec != "" {
			r.purgeSchedule = spec
		}
	}
}

// WithRebalanceSchedule overrides the cron expression for score renumbering.
func WithRebalanceSchedule(spec string) Option {
	return func(r *Runner) {
		if spec != "" {
			r.rebalanceSchedule = spec
		}
	}
}

// NewRunner constructs a Runner. The store and waitlist are required; a nil
// signup service skips the cutoff gauge.
func NewRunner(st *store.Store, waitlist *services.WaitlistService, signup *services.SignupService, opts ...Option) (*Runner, error) {
	if st == nil || waitlist == nil {
		return nil, errors.New("maintenance: store and waitlist are required")
	}
	runner := &Runner{
		store:             st,
		waitlist:          waitlist,
		signup:            signup,
		gaugeSchedule:     defaultGaugeSpec,
		purgeSchedule:     defaultPurgeSpec,
		rebalanceSchedule: defaultRebalanceSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(runner)
	}

	if runner.cron == nil {
		runner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return runner, nil
}

// Start registers the maintenance jobs and launches the scheduler.
func (r *Runner) Start() error {
	jobs := []job{
		{r.gaugeSchedule, "gauges", r.RefreshGauges},
		{r.purgeSchedule, "purge", r.purge},
	}
	if r.rebalances() {
		jobs = append(jobs, job{r.rebalanceSchedule, "renumber", r.renumber})
	}

	for _, job := range jobs {
		job := job
		if _, err := r.cron.AddFunc(job.spec, func() {
			if err := job.run(context.Background()); err != nil {
				r.log.Warn("maintenance job failed", zap.String("job", job.name), zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	r.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (r *Runner) Stop() context.Context {
	if r.cron == nil {
		return context.Background()
	}
	return r.cron.Stop()
}

// RunOnce executes every job sequentially and aggregates their errors.
func (r *Runner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	errs = multierr.Append(errs, r.RefreshGauges(ctx))
	errs = multierr.Append(errs, r.purge(ctx))
	if r.rebalances() {
		errs = multierr.Append(errs, r.renumber(ctx))
	}
	return errs
}

// RefreshGauges publishes the order length and signup cutoff.
func (r *Runner) RefreshGauges(ctx context.Context) error {
	length, err := r.waitlist.Length(ctx)
	if err != nil {
		return err
	}
	metrics.WaitlistLength.Set(float64(length))

	if r.signup == nil {
		return nil
	}
	cutoff, err := r.signup.Cutoff(ctx)
	if err != nil {
		return err
	}
	metrics.SignupCutoff.Set(float64(cutoff))
	return nil
}

func (r *Runner) purge(ctx context.Context) error {
	removed, err := r.store.Purge(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		r.log.Debug("purged expired store entries", zap.Int64("removed", removed))
	}
	return nil
}

func (r *Runner) renumber(ctx context.Context) error {
	touched, err := r.waitlist.Renumber(ctx)
	if err != nil {
		return err
	}
	r.log.Info("renumbered order", zap.Int("entries", touched))
	return nil
}

func (r *Runner) rebalances() bool {
	return r.waitlist.Order().Name() == ordering.StrategyScore
}
