package jobs

import (
	"context"

	"github.com/tastebook/progression-engine/internal/domain/streak"
	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAY ROLLOVER JOB
// ══════════════════════════════════════════════════════════════════════════════

// DayRolloverJob runs just after the canonical day boundary and audits streaks
// that will break unless the user is active today. Streak state itself never
// changes here: breaks are detected lazily on the user's next event, so the
// job only surfaces who is at risk for reminder flows.
type DayRolloverJob struct {
	streaks streak.Repository
	limit   int
	log     *logger.Logger
}

// NewDayRolloverJob creates the job. limit caps how many at-risk streaks are
// listed per run; <= 0 defaults to 1000.
func NewDayRolloverJob(streaks streak.Repository, limit int, log *logger.Logger) *DayRolloverJob {
	if limit <= 0 {
		limit = 1000
	}
	if log == nil {
		log = logger.Default()
	}
	return &DayRolloverJob{
		streaks: streaks,
		limit:   limit,
		log:     log.With(logger.Component("day_rollover")),
	}
}

// Name returns the job name.
func (j *DayRolloverJob) Name() string {
	return "day_rollover"
}

// Description returns a human-readable description.
func (j *DayRolloverJob) Description() string {
	return "Audits streaks at risk of breaking after the day boundary"
}

// Run lists at-risk streaks and logs them for reminder pipelines.
func (j *DayRolloverJob) Run(ctx context.Context) error {
	states, err := j.streaks.ListAtRisk(ctx, j.limit)
	if err != nil {
		return err
	}

	today := timeutil.Today()
	for _, s := range states {
		covered := s.FreezeCount > 0
		j.log.Info("streak at risk",
			logger.UserID(s.UserID),
			logger.Streak(s.CurrentStreak),
			logger.String("last_active_day", timeutil.FormatDayStr(s.LastActiveDay)),
			logger.Bool("freeze_covered", covered))
	}
	j.log.Info("day rollover audit complete",
		logger.String("day", timeutil.FormatDayStr(today)),
		logger.Int("at_risk", len(states)))
	return nil
}
