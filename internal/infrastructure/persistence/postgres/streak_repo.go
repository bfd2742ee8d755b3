package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/domain/streak"
	"github.com/tastebook/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepo implements streak.Repository on PostgreSQL.
//
// Mutate locks the user's single streak row, so concurrent streak-relevant
// events for the same user serialize their gap computation at the database.
type StreakRepo struct {
	conn *Connection
}

// NewStreakRepo creates the repository.
func NewStreakRepo(conn *Connection) *StreakRepo {
	return &StreakRepo{conn: conn}
}

var _ streak.Repository = (*StreakRepo)(nil)

const streakColumns = `user_id, current_streak, longest_streak, last_active_day, freeze_count, achieved_milestones, updated_at`

// Get returns the user's streak state, or shared.ErrStreakNotFound.
func (r *StreakRepo) Get(ctx context.Context, userID string) (*streak.State, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+streakColumns+`
		FROM streak_state
		WHERE user_id = $1
	`, userID)

	s, err := scanStreak(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStreakNotFound
		}
		return nil, fmt.Errorf("postgres: get streak: %w", err)
	}
	return s, nil
}

// Mutate atomically applies fn to the (lazily created) streak row.
func (r *StreakRepo) Mutate(ctx context.Context, userID string, fn streak.MutateFunc) (*streak.State, error) {
	var state *streak.State

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO streak_state (user_id)
			VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
		`, userID)
		if err != nil {
			return fmt.Errorf("ensure streak row: %w", err)
		}

		row := tx.QueryRow(ctx, `
			SELECT `+streakColumns+`
			FROM streak_state
			WHERE user_id = $1
			FOR UPDATE
		`, userID)
		s, err := scanStreak(row)
		if err != nil {
			return fmt.Errorf("lock streak row: %w", err)
		}

		if err := fn(s); err != nil {
			return err
		}

		milestones, err := json.Marshal(s.AchievedMilestones)
		if err != nil {
			return fmt.Errorf("marshal milestones: %w", err)
		}
		var lastActive *time.Time
		if !s.LastActiveDay.IsZero() {
			day := s.LastActiveDay
			lastActive = &day
		}
		_, err = tx.Exec(ctx, `
			UPDATE streak_state
			SET current_streak = $2, longest_streak = $3, last_active_day = $4,
			    freeze_count = $5, achieved_milestones = $6, updated_at = NOW()
			WHERE user_id = $1
		`, userID, s.CurrentStreak, s.LongestStreak, lastActive, s.FreezeCount, milestones)
		if err != nil {
			return fmt.Errorf("update streak row: %w", err)
		}

		state = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ListAtRisk returns streaks whose last activity was exactly yesterday in
// canonical time: they break unless the user acts today.
func (r *StreakRepo) ListAtRisk(ctx context.Context, limit int) ([]*streak.State, error) {
	yesterday := timeutil.AddDays(timeutil.Today(), -1)

	rows, err := r.conn.Query(ctx, `
		SELECT `+streakColumns+`
		FROM streak_state
		WHERE current_streak > 0 AND last_active_day = $1
		ORDER BY current_streak DESC
		LIMIT $2
	`, yesterday, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list at-risk streaks: %w", err)
	}
	defer rows.Close()

	var result []*streak.State
	for rows.Next() {
		s, err := scanStreak(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan streak: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func scanStreak(row pgx.Row) (*streak.State, error) {
	var (
		s          streak.State
		lastActive *time.Time
		milestones []byte
	)
	if err := row.Scan(&s.UserID, &s.CurrentStreak, &s.LongestStreak, &lastActive, &s.FreezeCount, &milestones, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if lastActive != nil {
		// DATE comes back midnight UTC; re-anchor to the canonical zone.
		s.LastActiveDay = time.Date(
			lastActive.Year(), lastActive.Month(), lastActive.Day(),
			0, 0, 0, 0, timeutil.CanonicalZone(),
		)
	}
	if len(milestones) > 0 {
		if err := json.Unmarshal(milestones, &s.AchievedMilestones); err != nil {
			return nil, fmt.Errorf("unmarshal milestones: %w", err)
		}
	}
	return &s, nil
}
