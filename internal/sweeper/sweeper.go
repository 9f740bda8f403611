// Package sweeper runs the scheduled lifecycle jobs: abandoned checkouts are
// cancelled (or fall back to their paid window) and lapsed subscriptions are
// expired. Every job selects by absolute age, so a run can be repeated safely.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	activitydomain "github.com/smallbiznis/guildpass/internal/activity/domain"
	"github.com/smallbiznis/guildpass/internal/clock"
	"github.com/smallbiznis/guildpass/internal/config"
	"github.com/smallbiznis/guildpass/internal/entitlement"
	"github.com/smallbiznis/guildpass/internal/notification"
	paymentdomain "github.com/smallbiznis/guildpass/internal/payment/domain"
	"github.com/smallbiznis/guildpass/internal/providers/gateway"
	"github.com/smallbiznis/guildpass/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/guildpass/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobExpirePending = "expire_pending"
	JobExpireLapsed  = "expire_lapsed"

	runLockKey = "guildpass:sweeper:run"
	runLockTTL = 10 * time.Minute
	jobTimeout = 5 * time.Minute
)

var (
	ErrInvalidConfig = errors.New("invalid_sweeper_config")
	// ErrRunInProgress means another process holds the run lock.
	ErrRunInProgress = errors.New("sweep_in_progress")
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        *config.SweeperConfigHolder
	Subscriptions subscriptiondomain.Service
	Transactions  paymentdomain.TransactionRepository
	Gateway       gateway.Client
	Activity      activitydomain.Service
	Entitlements  *entitlement.Synchronizer
	Notifier      *notification.Dispatcher
	Locker        *ratelimit.Locker `optional:"true"`
}

type Sweeper struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	config        *config.SweeperConfigHolder
	subscriptions subscriptiondomain.Service
	transactions  paymentdomain.TransactionRepository
	gateway       gateway.Client
	activity      activitydomain.Service
	entitlements  *entitlement.Synchronizer
	notifier      *notification.Dispatcher
	locker        *ratelimit.Locker
}

// JobReport summarizes one job of a run.
type JobReport struct {
	Job       string `json:"job"`
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
}

type Report struct {
	Jobs []JobReport `json:"jobs"`
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Config == nil ||
		p.Subscriptions == nil || p.Transactions == nil || p.Gateway == nil ||
		p.Entitlements == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		db:            p.DB,
		log:           p.Log.Named("sweeper").With(zap.String("component", "sweeper")),
		genID:         p.GenID,
		clock:         p.Clock,
		config:        p.Config,
		subscriptions: p.Subscriptions,
		transactions:  p.Transactions,
		gateway:       p.Gateway,
		activity:      p.Activity,
		entitlements:  p.Entitlements,
		notifier:      p.Notifier,
		locker:        p.Locker,
	}, nil
}

func (s *Sweeper) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) (JobReport, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name, batchSize)
	s.logJobStart(ctx, run)

	err := fn(ctx)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)

	report := run.report()
	if err == nil {
		return report, nil
	}

	// deadline is a soft stop: whatever was processed stays processed
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return report, nil
	}
	return report, fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job once. When a Redis locker is configured the
// run is skipped with ErrRunInProgress while another run holds the lock.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	if s.locker == nil {
		return s.runJobs(ctx)
	}

	var report Report
	err := s.locker.WithLock(ctx, runLockKey, runLockTTL, func(ctx context.Context) error {
		var runErr error
		report, runErr = s.runJobs(ctx)
		return runErr
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.log.Info("sweep skipped, another run holds the lock")
		return Report{}, ErrRunInProgress
	}
	return report, err
}

func (s *Sweeper) runJobs(parent context.Context) (Report, error) {
	cfg := s.config.Get()

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpirePending, s.ExpirePendingJob},
		{JobExpireLapsed, s.ExpireLapsedJob},
	}

	var (
		report Report
		err    error
	)
	for _, job := range jobs {
		if !isJobEnabled(cfg, job.Name) {
			continue
		}
		jobReport, jobErr := s.runJob(parent, job.Name, cfg.BatchSize, jobTimeout, job.Run)
		report.Jobs = append(report.Jobs, jobReport)
		err = errors.Join(err, jobErr)
	}
	return report, err
}

// RunForever runs a sweep immediately and then on every tick until ctx is
// cancelled. The interval is re-read from the config holder after each run.
func (s *Sweeper) RunForever(ctx context.Context) {
	for {
		if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.log.Warn("sweeper run failed", zap.Error(err))
		}

		timer := time.NewTimer(s.config.Get().RunInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func isJobEnabled(cfg config.SweeperConfig, name string) bool {
	// no explicit list means every job runs
	if len(cfg.EnabledJobs) == 0 {
		return true
	}
	return cfg.JobEnabled(strings.TrimSpace(name))
}
