package jobs

import (
	"context"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE DEDUP JOB
// ══════════════════════════════════════════════════════════════════════════════

// PurgeDedupJob removes dedup entries older than the retention window. With
// the Redis index this is a safety net (keys expire natively); a store-backed
// index relies on it.
type PurgeDedupJob struct {
	dedup     activity.DedupIndex
	retention time.Duration
	log       *logger.Logger
}

// NewPurgeDedupJob creates the job. retention <= 0 defaults to 72 hours,
// matching the ingest dedup TTL.
func NewPurgeDedupJob(dedup activity.DedupIndex, retention time.Duration, log *logger.Logger) *PurgeDedupJob {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	if log == nil {
		log = logger.Default()
	}
	return &PurgeDedupJob{
		dedup:     dedup,
		retention: retention,
		log:       log.With(logger.Component("purge_dedup")),
	}
}

// Name returns the job name.
func (j *PurgeDedupJob) Name() string {
	return "purge_dedup"
}

// Description returns a human-readable description.
func (j *PurgeDedupJob) Description() string {
	return "Removes idempotency-key entries older than the dedup retention window"
}

// Run purges expired entries.
func (j *PurgeDedupJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)
	removed, err := j.dedup.Purge(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		j.log.Info("dedup entries purged",
			logger.Int64("removed", removed),
			logger.Time("cutoff", cutoff))
	}
	return nil
}
