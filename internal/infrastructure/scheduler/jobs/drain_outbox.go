// Package jobs contains the engine's scheduled background jobs.
package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tastebook/progression-engine/internal/application/command"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DRAIN OUTBOX JOB
// ══════════════════════════════════════════════════════════════════════════════

// DrainOutboxJob moves pending reward items from the outbox into the ledger.
// The ledger's unique idempotency key makes the drain safe to re-run: an item
// dispatched twice applies once and the second pass just clears the row.
type DrainOutboxJob struct {
	outbox     reward.OutboxRepository
	dispatcher *command.DispatchRewardHandler
	retrier    *retry.Retrier
	log        *logger.Logger
	config     DrainOutboxConfig

	lastStats atomic.Value // *DrainStats
}

// DrainOutboxConfig configures the drain job.
type DrainOutboxConfig struct {
	// BatchSize is the maximum number of items taken per run.
	BatchSize int

	// MaxAttempts parks an item for operator attention once exceeded.
	// Parked items stay in the outbox but are logged at error level.
	MaxAttempts int

	// Timeout bounds one full drain run.
	Timeout time.Duration
}

// DefaultDrainOutboxConfig returns sensible defaults.
func DefaultDrainOutboxConfig() DrainOutboxConfig {
	return DrainOutboxConfig{
		BatchSize:   100,
		MaxAttempts: 10,
		Timeout:     time.Minute,
	}
}

// DrainStats records one drain run.
type DrainStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Taken     int
	Applied   int
	Duplicate int
	Failed    int
	Parked    int
}

// NewDrainOutboxJob creates the job.
func NewDrainOutboxJob(
	outbox reward.OutboxRepository,
	dispatcher *command.DispatchRewardHandler,
	log *logger.Logger,
	config DrainOutboxConfig,
) *DrainOutboxJob {
	if log == nil {
		log = logger.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultDrainOutboxConfig().BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDrainOutboxConfig().Timeout
	}
	return &DrainOutboxJob{
		outbox:     outbox,
		dispatcher: dispatcher,
		retrier:    retry.DispatchRetrier(),
		log:        log.With(logger.Component("drain_outbox")),
		config:     config,
	}
}

// Name returns the job name.
func (j *DrainOutboxJob) Name() string {
	return "drain_outbox"
}

// Description returns a human-readable description.
func (j *DrainOutboxJob) Description() string {
	return "Applies pending reward outbox items to the ledger and emits unlock notifications"
}

// Run drains one batch of due outbox items.
func (j *DrainOutboxJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &DrainStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	items, err := j.outbox.Due(ctx, j.config.BatchSize)
	if err != nil {
		return err
	}
	stats.Taken = len(items)
	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		j.drainOne(ctx, item, stats)
	}

	j.log.Info("outbox drained",
		logger.Int("taken", stats.Taken),
		logger.Int("applied", stats.Applied),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed))
	return nil
}

func (j *DrainOutboxJob) drainOne(ctx context.Context, item *reward.OutboxItem, stats *DrainStats) {
	if j.config.MaxAttempts > 0 && item.Attempts >= j.config.MaxAttempts {
		stats.Parked++
		j.log.Error("outbox item parked",
			logger.UserID(item.UserID),
			logger.IdempotencyKey(item.IdempotencyKey()),
			logger.Int("attempts", item.Attempts),
			logger.String("last_error", item.LastError))
		return
	}

	var status command.DispatchStatus
	err := j.retrier.Do(ctx, func(ctx context.Context) error {
		var dispatchErr error
		status, dispatchErr = j.dispatcher.Dispatch(ctx, item)
		return dispatchErr
	})
	if err != nil {
		stats.Failed++
		if markErr := j.outbox.MarkFailed(ctx, item, err); markErr != nil {
			j.log.Error("mark failed did not stick",
				logger.IdempotencyKey(item.IdempotencyKey()),
				logger.Err(markErr))
		}
		return
	}

	switch status {
	case command.StatusApplied:
		stats.Applied++
	case command.StatusAlreadyApplied:
		stats.Duplicate++
	}
	if err := j.outbox.MarkDone(ctx, item); err != nil {
		// The ledger write landed; the item will be retaken next run and
		// resolve as a duplicate.
		j.log.Warn("mark done failed",
			logger.IdempotencyKey(item.IdempotencyKey()),
			logger.Err(err))
	}
}

// LastStats returns stats from the most recent run, or nil.
func (j *DrainOutboxJob) LastStats() *DrainStats {
	v, _ := j.lastStats.Load().(*DrainStats)
	return v
}
