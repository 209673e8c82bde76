// Package manager runs the build manager daemon: it polls for idle builders,
// claims the best candidate for each and hands it to an Interactor, while a
// cron scheduler keeps scores fresh and retires stale builds.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/zulandar/buildyard/internal/buildqueue"
	"github.com/zulandar/buildyard/internal/builder"
	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/notify"
	"gorm.io/gorm"
)

const (
	defaultPollInterval = 15 * time.Second
	// maxClaimAttempts bounds reselection after losing a claim race.
	maxClaimAttempts = 3
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Interactor talks to a builder. Dispatch starts the claimed build on it;
// an error means the builder could not take the job.
type Interactor interface {
	Dispatch(ctx context.Context, b *models.Builder, c *buildqueue.Candidate) error
}

// Opts configures a Manager.
type Opts struct {
	DB         *gorm.DB
	Config     config.ManagerConfig
	Policy     buildqueue.Policy
	Interactor Interactor            // defaults to LogInteractor
	Notifier   notify.Notifier       // defaults to notify.Nop
	Logger     logrus.FieldLogger    // defaults to the standard logrus logger
	Registry   prometheus.Registerer // nil uses a private registry
}

// Manager dispatches queued builds to builders.
type Manager struct {
	db         *gorm.DB
	cfg        config.ManagerConfig
	policy     buildqueue.Policy
	interactor Interactor
	notifier   notify.Notifier
	logger     logrus.FieldLogger

	mDispatches         *prometheus.CounterVec
	mRetired            *prometheus.CounterVec
	mInteractorFailures prometheus.Counter
	mBuildersDisabled   prometheus.Counter
	mWaitingJobs        prometheus.Gauge
}

// New validates opts and returns an unstarted Manager.
func New(opts Opts) (*Manager, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("manager: db is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Interactor == nil {
		opts.Interactor = LogInteractor{Logger: opts.Logger}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Policy == (buildqueue.Policy{}) {
		opts.Policy = buildqueue.DefaultPolicy()
	}
	if opts.Config.PollIntervalSec <= 0 {
		opts.Config.PollIntervalSec = int(defaultPollInterval / time.Second)
	}

	m := &Manager{
		db:         opts.DB,
		cfg:        opts.Config,
		policy:     opts.Policy,
		interactor: opts.Interactor,
		notifier:   opts.Notifier,
		logger:     opts.Logger.WithField("component", "manager"),
	}
	if err := m.registerMetrics(opts.Registry); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) registerMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m.mDispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buildyard",
		Subsystem: "manager",
		Name:      "dispatches_total",
		Help:      "Number of builds handed to a builder.",
	}, []string{"processor"})
	m.mRetired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "buildyard",
		Subsystem: "manager",
		Name:      "retired_builds_total",
		Help:      "Number of stale builds retired by the periodic sweep. Builds retired while selecting a candidate are not counted.",
	}, []string{"status"})
	m.mInteractorFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buildyard",
		Subsystem: "manager",
		Name:      "interactor_failures_total",
		Help:      "Number of dispatches a builder failed to accept.",
	})
	m.mBuildersDisabled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "buildyard",
		Subsystem: "manager",
		Name:      "builders_disabled_total",
		Help:      "Number of builders disabled after repeated failures.",
	})
	m.mWaitingJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "buildyard",
		Subsystem: "manager",
		Name:      "waiting_jobs",
		Help:      "Number of queue entries waiting for a builder.",
	})
	for _, c := range []prometheus.Collector{
		m.mDispatches, m.mRetired, m.mInteractorFailures, m.mBuildersDisabled, m.mWaitingJobs,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("manager: register metrics: %w", err)
		}
	}
	return nil
}

// Run starts the periodic jobs and polls until ctx is cancelled.
func Run(ctx context.Context, opts Opts) error {
	m, err := New(opts)
	if err != nil {
		return err
	}
	return m.Run(ctx)
}

// Run starts the periodic jobs and polls until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	sched, err := m.schedule(ctx)
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
		m.logger.Info("manager stopped")
	}()

	interval := m.cfg.PollInterval()
	m.logger.WithField("poll_interval", interval).Info("manager starting")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := m.DispatchOnce(ctx); err != nil {
			m.logger.WithError(err).Warn("dispatch cycle had errors")
		}
		sleepWithContext(ctx, interval)
	}
}

// schedule builds the cron scheduler for rescoring and sweeping. Empty
// schedules disable a job.
func (m *Manager) schedule(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(cronParser))
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{"rescore", m.cfg.RescoreSchedule, m.Rescore},
		{"sweep", m.cfg.SweepSchedule, m.Sweep},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		_, err := c.AddFunc(j.spec, func() {
			if err := j.fn(ctx); err != nil {
				m.logger.WithError(err).WithField("job", j.name).Error("periodic job failed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("manager: %s schedule %q: %w", j.name, j.spec, err)
		}
	}
	return c, nil
}

// DispatchOnce runs one dispatch cycle over every dispatchable builder and
// returns how many builds were handed out. Per-builder errors do not stop
// the cycle; they are aggregated.
func (m *Manager) DispatchOnce(ctx context.Context) (int, error) {
	builders, err := builder.Dispatchable(m.db)
	if err != nil {
		return 0, fmt.Errorf("manager: %w", err)
	}

	var result *multierror.Error
	dispatched := 0
	for i := range builders {
		if ctx.Err() != nil {
			break
		}
		ok, err := m.dispatchTo(ctx, &builders[i])
		if err != nil {
			result = multierror.Append(result, err)
		}
		if ok {
			dispatched++
		}
	}

	if err := m.updateWaiting(); err != nil {
		result = multierror.Append(result, err)
	}
	return dispatched, result.ErrorOrNil()
}

// dispatchTo claims a candidate for b and hands it to the Interactor. It
// reports whether a build was dispatched.
func (m *Manager) dispatchTo(ctx context.Context, b *models.Builder) (bool, error) {
	log := m.logger.WithFields(logrus.Fields{"builder": b.Name, "processor": b.Processor})

	var c *buildqueue.Candidate
	var err error
	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		c, err = buildqueue.AcquireCandidate(m.db, b.ID, m.policy)
		if !errors.Is(err, buildqueue.ErrClaimConflict) {
			break
		}
		log.WithField("attempt", attempt).Debug("lost claim race, reselecting")
	}
	switch {
	case errors.Is(err, buildqueue.ErrBuilderBusy), errors.Is(err, buildqueue.ErrBuilderNotOK):
		// Changed state since Dispatchable ran.
		log.WithError(err).Debug("builder skipped")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("manager: acquire for %s: %w", b.Name, err)
	case c == nil:
		return false, nil
	}

	log = log.WithFields(logrus.Fields{
		"build":   c.Build.ID,
		"source":  c.Build.SourceName,
		"version": c.Build.SourceVersion,
		"score":   c.Queue.LastScore,
	})

	if err := m.interactor.Dispatch(ctx, b, c); err != nil {
		m.mInteractorFailures.Inc()
		log.WithError(err).Warn("builder rejected dispatch")
		return false, m.handleFailure(ctx, b, err)
	}

	m.mDispatches.WithLabelValues(b.Processor).Inc()
	log.Info("dispatched")
	if b.FailureCount > 0 {
		if err := builder.ResetFailures(m.db, b.ID); err != nil {
			return true, fmt.Errorf("manager: %w", err)
		}
	}
	return true, nil
}

// handleFailure returns the builder's job to the queue and counts the
// failure, notifying when the builder gets disabled.
func (m *Manager) handleFailure(ctx context.Context, b *models.Builder, cause error) error {
	disabled, err := builder.HandleFailure(m.db, b.ID, cause.Error(), m.cfg.FailureThreshold)
	if err != nil {
		return fmt.Errorf("manager: handle failure on %s: %w", b.Name, err)
	}
	if !disabled {
		return nil
	}

	m.mBuildersDisabled.Inc()
	m.logger.WithField("builder", b.Name).Error("builder disabled after repeated failures")
	evt := notify.BuilderDisabled(b.Name, b.Processor, cause.Error(), b.FailureCount+1)
	if err := m.notifier.Notify(ctx, evt); err != nil {
		m.logger.WithError(err).Warn("notify builder disabled")
	}
	return nil
}

// Rescore recomputes the score of every waiting entry.
func (m *Manager) Rescore(ctx context.Context) error {
	changed, err := buildqueue.RescoreAll(m.db)
	if err != nil {
		return fmt.Errorf("manager: rescore: %w", err)
	}
	m.logger.WithField("changed", changed).Debug("rescored queue")
	return nil
}

// Sweep retires stale builds without waiting for a builder to reach them.
func (m *Manager) Sweep(ctx context.Context) error {
	res, err := buildqueue.SweepSuperseded(m.db)
	if err != nil {
		return fmt.Errorf("manager: sweep: %w", err)
	}
	m.mRetired.WithLabelValues(models.BuildSuperseded).Add(float64(res.Superseded))
	m.mRetired.WithLabelValues(models.BuildFailedToBuild).Add(float64(res.Failed))
	if res.Total() == 0 {
		return nil
	}

	m.logger.WithFields(logrus.Fields{
		"superseded": res.Superseded,
		"failed":     res.Failed,
	}).Info("retired stale builds")
	if err := m.notifier.Notify(ctx, notify.BuildsRetired(res.Superseded, res.Failed)); err != nil {
		m.logger.WithError(err).Warn("notify retired builds")
	}
	return m.updateWaiting()
}

func (m *Manager) updateWaiting() error {
	var n int64
	if err := m.db.Model(&models.BuildQueue{}).Where("job_status = ?", models.JobWaiting).Count(&n).Error; err != nil {
		return fmt.Errorf("manager: count waiting: %w", err)
	}
	m.mWaitingJobs.Set(float64(n))
	return nil
}

// sleepWithContext sleeps for d or until ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
