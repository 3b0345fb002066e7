package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/ingress/ports"
	tracking "parcel-sorter/internal/features/tracking/domain"
)

// MonitorConfig sets the thresholds and schedules of the sweeps.
type MonitorConfig struct {
	ParcelTimeout   time.Duration
	LostAfter       time.Duration
	Retention       time.Duration
	MonitorSchedule string
	CleanupSchedule string
}

// Monitors periodically escalates overdue parcels and expires finished ones.
type Monitors struct {
	cfg      MonitorConfig
	ledger   ports.LedgerQueries
	sweeper  ports.ParcelSweeper
	log      *zap.Logger
	now      func() time.Time
	schedule []job
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) int
}

// NewMonitors validates both schedules up front.
func NewMonitors(cfg MonitorConfig, ledger ports.LedgerQueries, sweeper ports.ParcelSweeper) (*Monitors, error) {
	var errs error
	if _, err := cron.ParseStandard(cfg.MonitorSchedule); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("monitor schedule %q: %w", cfg.MonitorSchedule, err))
	}
	if _, err := cron.ParseStandard(cfg.CleanupSchedule); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cleanup schedule %q: %w", cfg.CleanupSchedule, err))
	}
	if errs != nil {
		return nil, errs
	}

	m := &Monitors{
		cfg:     cfg,
		ledger:  ledger,
		sweeper: sweeper,
		log:     logger.Named("monitors"),
		now:     time.Now,
	}
	m.schedule = []job{
		{name: "timeout", spec: cfg.MonitorSchedule, run: m.SweepTimeouts},
		{name: "lost", spec: cfg.MonitorSchedule, run: m.SweepLost},
		{name: "retention", spec: cfg.CleanupSchedule, run: m.SweepRetention},
	}
	return m, nil
}

// Run schedules the sweeps and blocks until ctx is done. Running sweeps are
// allowed to finish before it returns.
func (m *Monitors) Run(ctx context.Context) error {
	cl := cronLogger{m.log.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, j := range m.schedule {
		if _, err := c.AddFunc(j.spec, func() {
			if n := j.run(ctx); n > 0 {
				m.log.Info("Sweep finished", zap.String("sweep", j.name), zap.Int("parcels", n))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s sweep: %w", j.name, err)
		}
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// SweepTimeouts escalates parcels still active past the timeout.
func (m *Monitors) SweepTimeouts(ctx context.Context) int {
	overdue := m.ledger.GetActiveDetectedBefore(m.now().Add(-m.cfg.ParcelTimeout))
	for _, r := range overdue {
		if ctx.Err() != nil {
			break
		}
		res := m.sweeper.ProcessTimedOutParcel(ctx, r.ParcelID)
		m.log.Warn("Parcel timed out",
			zap.Uint64("parcel_id", r.ParcelID),
			zap.String("status", string(r.Status)),
			zap.Int64("target_chute_id", res.TargetChuteID),
			zap.String("reason", res.FailureReason),
		)
	}
	return len(overdue)
}

// SweepLost gives up on timed out parcels that never reached a chute.
func (m *Monitors) SweepLost(ctx context.Context) int {
	lost := 0
	for _, r := range m.ledger.GetTimedOutBefore(m.now().Add(-m.cfg.LostAfter)) {
		if ctx.Err() != nil {
			break
		}
		if err := m.sweeper.MarkLost(ctx, r.ParcelID); err != nil {
			if !errors.Is(err, tracking.ErrInvalidTransition) {
				m.log.Error("Failed to mark parcel lost", zap.Uint64("parcel_id", r.ParcelID), zap.Error(err))
			}
			continue
		}
		lost++
	}
	return lost
}

// SweepRetention drops finished records older than the retention period.
func (m *Monitors) SweepRetention(ctx context.Context) int {
	return m.sweeper.CleanupExpired(ctx, m.now().Add(-m.cfg.Retention))
}

// cronLogger routes scheduler messages through zap.
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
