package application

import (
	"context"
	"fmt"
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/activity"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type MaintenanceConfig struct {
	// Spec is a robfig/cron schedule, e.g. "@every 1m".
	Spec                 string
	PostedRetention      time.Duration
	FailedRetention      time.Duration
	LogRetention         time.Duration
	RetainedLogRetention time.Duration // 0 keeps retained entries forever
	Location             *time.Location
}

type MaintenanceReport struct {
	PostedRemoved int64 `json:"posted_removed"`
	FailedRemoved int64 `json:"failed_removed"`
	LogsPurged    int64 `json:"logs_purged"`
}

// Maintenance bounds storage: it drops old activity entries and terminal
// items on its own schedule, independent of the scheduler tick.
type Maintenance struct {
	posts post.Repository
	logs  activity.Repository
	cfg   MaintenanceConfig
	now   func() time.Time
	cron  *cron.Cron
}

func NewMaintenance(posts post.Repository, logs activity.Repository, cfg MaintenanceConfig) *Maintenance {
	if cfg.Spec == "" {
		cfg.Spec = "@every 1m"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Maintenance{
		posts: posts,
		logs:  logs,
		cfg:   cfg,
		now:   time.Now,
		cron:  cron.New(cron.WithLocation(cfg.Location)),
	}
}

// Start schedules the job and blocks until ctx is done.
func (m *Maintenance) Start(ctx context.Context) error {
	_, err := m.cron.AddFunc(m.cfg.Spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if _, err := m.RunOnce(runCtx); err != nil {
			logrus.WithError(err).Error("[MAINTENANCE] Run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", m.cfg.Spec, err)
	}

	logrus.Infof("[MAINTENANCE] Scheduled (%s)", m.cfg.Spec)
	m.cron.Start()
	<-ctx.Done()
	<-m.cron.Stop().Done()
	return nil
}

// RunOnce performs a single cleanup pass.
func (m *Maintenance) RunOnce(ctx context.Context) (MaintenanceReport, error) {
	var report MaintenanceReport
	now := m.now()

	n, err := m.posts.DeleteTerminalBefore(ctx, post.StatusPosted, now.Add(-m.cfg.PostedRetention))
	if err != nil {
		return report, fmt.Errorf("failed to remove posted items: %w", err)
	}
	report.PostedRemoved = n

	n, err = m.posts.DeleteTerminalBefore(ctx, post.StatusFailed, now.Add(-m.cfg.FailedRetention))
	if err != nil {
		return report, fmt.Errorf("failed to remove failed items: %w", err)
	}
	report.FailedRemoved = n

	n, err = m.logs.Purge(ctx, false, now.Add(-m.cfg.LogRetention))
	if err != nil {
		return report, fmt.Errorf("failed to purge activity log: %w", err)
	}
	report.LogsPurged = n

	if m.cfg.RetainedLogRetention > 0 {
		n, err = m.logs.Purge(ctx, true, now.Add(-m.cfg.RetainedLogRetention))
		if err != nil {
			return report, fmt.Errorf("failed to purge retained activity log: %w", err)
		}
		report.LogsPurged += n
	}

	if report.PostedRemoved+report.FailedRemoved+report.LogsPurged > 0 {
		logrus.WithFields(logrus.Fields{
			"posted_removed": report.PostedRemoved,
			"failed_removed": report.FailedRemoved,
			"logs_purged":    report.LogsPurged,
		}).Info("[MAINTENANCE] Cleanup done")
	}
	return report, nil
}
