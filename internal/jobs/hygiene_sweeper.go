// File: internal/jobs/hygiene_sweeper.go
package jobs

import (
	"context"
	"fmt"
	"time"

	"identity_backend/internal/config"
	"identity_backend/internal/user"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HygieneSweeper periodically purges identities that registered but never
// verified their email within the grace window. Accounts verified after a
// sweep cycle started simply fall outside the predicate on the next pass,
// so a concurrent verification is never clobbered.
type HygieneSweeper struct {
	repo          user.Repository
	logger        *zap.Logger
	cfg           *config.Config
	cronScheduler *cron.Cron
	now           func() time.Time
}

// NewHygieneSweeper creates a new HygieneSweeper.
func NewHygieneSweeper(
	repo user.Repository,
	logger *zap.Logger,
	cfg *config.Config,
) *HygieneSweeper {
	scheduler := cron.New(cron.WithLogger(NewCronLogger(logger.Named("cron"))))

	return &HygieneSweeper{
		repo:          repo,
		logger:        logger.Named("HygieneSweeper"),
		cfg:           cfg,
		cronScheduler: scheduler,
		now:           time.Now,
	}
}

// SetupAndStart schedules and starts the cron job.
func (j *HygieneSweeper) SetupAndStart() error {
	jobSpec := j.cfg.HygieneSweepSchedule // e.g. "@every 7h"
	if jobSpec == "" {
		j.logger.Warn("Hygiene sweep schedule not defined (HYGIENE_SWEEP_SCHEDULE). Sweeper will not run.")
		return nil // Not a fatal error, just won't run
	}

	jobID, err := j.cronScheduler.AddFunc(jobSpec, j.runJob)
	if err != nil {
		j.logger.Error("Failed to schedule hygiene sweep", zap.String("spec", jobSpec), zap.Error(err))
		return err
	}

	j.logger.Info("Hygiene sweep scheduled", zap.String("spec", jobSpec), zap.Any("jobID", jobID))
	j.cronScheduler.Start()
	return nil
}

// runJob is the scheduled entry point. Errors are logged, never propagated;
// a failed sweep waits for the next tick.
func (j *HygieneSweeper) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := j.RunSweep(ctx); err != nil {
		j.logger.Error("Hygiene sweep run failed", zap.Error(err))
	}
}

// RunSweep deletes every unverified identity older than the grace window and
// returns how many were removed. Exposed so the sweep can also be triggered
// on demand.
func (j *HygieneSweeper) RunSweep(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.cfg.UnverifiedGraceWindow)
	j.logger.Info("Starting hygiene sweep", zap.Time("cutoff", cutoff))

	deleted, err := j.repo.DeleteStaleUnverified(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	j.logger.Info("Hygiene sweep completed", zap.Int64("identities_purged", deleted))
	return deleted, nil
}

// Stop gracefully stops the cron scheduler.
func (j *HygieneSweeper) Stop() {
	if j.cronScheduler != nil {
		j.logger.Info("Stopping hygiene sweep scheduler...")
		stopCtx := j.cronScheduler.Stop()
		select {
		case <-stopCtx.Done():
			j.logger.Info("Hygiene sweep scheduler stopped gracefully.")
		case <-time.After(10 * time.Second):
			j.logger.Warn("Hygiene sweep scheduler stop timed out.")
		}
	}
}

// --- Cron Logger Adapter ---

// cronLogger adapts zap.Logger to the cron.Logger interface.
type cronLogger struct {
	zl *zap.Logger
}

// NewCronLogger creates a new cronLogger.
func NewCronLogger(zl *zap.Logger) cron.Logger {
	return &cronLogger{zl: zl}
}

// Info logs routine messages from cron.
func (cl *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	fields := cl.parseKeysAndValues(keysAndValues...)
	cl.zl.Info(msg, fields...)
}

// Error logs error messages from cron.
func (cl *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := cl.parseKeysAndValues(keysAndValues...)
	fields = append(fields, zap.Error(err))
	cl.zl.Error(msg, fields...)
}

func (cl *cronLogger) parseKeysAndValues(keysAndValues ...interface{}) []zap.Field {
	var fields []zap.Field
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
		} else {
			fields = append(fields, zap.Any(fmt.Sprintf("%v", keysAndValues[i]), "MISSING_VALUE"))
		}
	}
	return fields
}
