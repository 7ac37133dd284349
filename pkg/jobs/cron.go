package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/draftboardhq/draftboard-backend/pkg/billing"
	"github.com/draftboardhq/draftboard-backend/pkg/logger"
)

// CronManager manages scheduled jobs
type CronManager struct {
	cron         *cron.Cron
	sweep        *billing.Sweep
	schedule     string
	sweepTimeout time.Duration
	log          logger.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(sweep *billing.Sweep, schedule string, sweepTimeout time.Duration, log logger.Logger) *CronManager {
	return &CronManager{
		cron:         cron.New(),
		sweep:        sweep,
		schedule:     schedule,
		sweepTimeout: sweepTimeout,
		log:          log,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	_, err := cm.cron.AddFunc(cm.schedule, func() {
		cm.log.Info("running subscription reconciliation sweep")

		ctx, cancel := context.WithTimeout(context.Background(), cm.sweepTimeout)
		defer cancel()

		if err := cm.sweep.Run(ctx); err != nil {
			cm.log.Warn("reconciliation sweep completed with errors", "error", err)
			return
		}
		cm.log.Info("reconciliation sweep completed")
	})
	if err != nil {
		return err
	}

	cm.log.Info("cron jobs configured", "sweep_schedule", cm.schedule)
	return nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop stops the cron scheduler and waits for running jobs
func (cm *CronManager) Stop() {
	ctx := cm.cron.Stop()
	<-ctx.Done()
}
