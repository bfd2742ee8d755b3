package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepo implements achievement.ProgressRepository on PostgreSQL.
//
// Mutate takes a row lock (SELECT ... FOR UPDATE) on the lazily created
// progress row, so two concurrent mutations of the same (user, achievement)
// serialize at the database. The unlock insert is ON CONFLICT DO NOTHING on
// the primary key: a concurrent duplicate unlock commits the progress cap
// but reports no new record.
type ProgressRepo struct {
	conn *Connection
}

// NewProgressRepo creates the repository.
func NewProgressRepo(conn *Connection) *ProgressRepo {
	return &ProgressRepo{conn: conn}
}

var _ achievement.ProgressRepository = (*ProgressRepo)(nil)

// Get returns the progress row, or shared.ErrProgressNotFound.
func (r *ProgressRepo) Get(ctx context.Context, userID, achievementID string) (*achievement.Progress, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT user_id, achievement_id, value, distinct_values, unlocked_at, updated_at
		FROM achievement_progress
		WHERE user_id = $1 AND achievement_id = $2
	`, userID, achievementID)

	p, err := scanProgress(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrProgressNotFound
		}
		return nil, fmt.Errorf("postgres: get progress: %w", err)
	}
	return p, nil
}

// ListForUser returns all progress rows for the user.
func (r *ProgressRepo) ListForUser(ctx context.Context, userID string) ([]*achievement.Progress, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id, achievement_id, value, distinct_values, unlocked_at, updated_at
		FROM achievement_progress
		WHERE user_id = $1
		ORDER BY achievement_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list progress: %w", err)
	}
	defer rows.Close()

	var result []*achievement.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan progress: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Mutate atomically applies fn to the (lazily created) progress row.
func (r *ProgressRepo) Mutate(ctx context.Context, userID, achievementID string, fn achievement.MutateFunc) (*achievement.Progress, *achievement.UnlockRecord, error) {
	var (
		progress *achievement.Progress
		record   *achievement.UnlockRecord
	)

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		// Lazy row creation keeps the FOR UPDATE below from ever missing.
		_, err := tx.Exec(ctx, `
			INSERT INTO achievement_progress (user_id, achievement_id)
			VALUES ($1, $2)
			ON CONFLICT (user_id, achievement_id) DO NOTHING
		`, userID, achievementID)
		if err != nil {
			return fmt.Errorf("ensure progress row: %w", err)
		}

		row := tx.QueryRow(ctx, `
			SELECT user_id, achievement_id, value, distinct_values, unlocked_at, updated_at
			FROM achievement_progress
			WHERE user_id = $1 AND achievement_id = $2
			FOR UPDATE
		`, userID, achievementID)
		p, err := scanProgress(row)
		if err != nil {
			return fmt.Errorf("lock progress row: %w", err)
		}

		rec, err := fn(p)
		if err != nil {
			return err
		}

		distinct, err := marshalDistinct(p.DistinctValues)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE achievement_progress
			SET value = $3, distinct_values = $4, unlocked_at = $5, updated_at = NOW()
			WHERE user_id = $1 AND achievement_id = $2
		`, userID, achievementID, p.Value, distinct, p.UnlockedAt)
		if err != nil {
			return fmt.Errorf("update progress row: %w", err)
		}

		if rec != nil {
			tag, err := tx.Exec(ctx, `
				INSERT INTO unlock_records (user_id, achievement_id, unlocked_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (user_id, achievement_id) DO NOTHING
			`, rec.UserID, rec.AchievementID, rec.UnlockedAt)
			if err != nil {
				return fmt.Errorf("insert unlock record: %w", err)
			}
			if tag.RowsAffected() == 1 {
				record = rec
			}
		}

		progress = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return progress, record, nil
}

// HasUnlock reports whether an unlock record exists.
func (r *ProgressRepo) HasUnlock(ctx context.Context, userID, achievementID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM unlock_records WHERE user_id = $1 AND achievement_id = $2
		)
	`, userID, achievementID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has unlock: %w", err)
	}
	return exists, nil
}

// ListUnlocks returns all unlock records for the user, newest first.
func (r *ProgressRepo) ListUnlocks(ctx context.Context, userID string) ([]*achievement.UnlockRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id, achievement_id, unlocked_at
		FROM unlock_records
		WHERE user_id = $1
		ORDER BY unlocked_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unlocks: %w", err)
	}
	defer rows.Close()

	var result []*achievement.UnlockRecord
	for rows.Next() {
		rec := &achievement.UnlockRecord{}
		if err := rows.Scan(&rec.UserID, &rec.AchievementID, &rec.UnlockedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan unlock record: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// SCAN HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func scanProgress(row pgx.Row) (*achievement.Progress, error) {
	var (
		p          achievement.Progress
		distinct   []byte
		unlockedAt *time.Time
	)
	if err := row.Scan(&p.UserID, &p.AchievementID, &p.Value, &distinct, &unlockedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.UnlockedAt = unlockedAt

	values, err := unmarshalDistinct(distinct)
	if err != nil {
		return nil, err
	}
	p.DistinctValues = values
	return &p, nil
}

// marshalDistinct stores the distinct-value set as a sorted-agnostic JSON
// array; nil sets persist as [].
func marshalDistinct(set map[string]struct{}) ([]byte, error) {
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal distinct values: %w", err)
	}
	return data, nil
}

func unmarshalDistinct(data []byte) (map[string]struct{}, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("unmarshal distinct values: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set, nil
}
