package postgres

import (
	"context"
	"fmt"

	"github.com/tastebook/progression-engine/internal/domain/reward"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD LEDGER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepo implements reward.LedgerRepository on PostgreSQL.
//
// Apply relies entirely on the unique idempotency key: the insert either
// lands exactly once or silently no-ops, whatever the interleaving. Balances
// and badge sets are derived from the ledger on read, never stored.
type LedgerRepo struct {
	conn *Connection
}

// NewLedgerRepo creates the repository.
func NewLedgerRepo(conn *Connection) *LedgerRepo {
	return &LedgerRepo{conn: conn}
}

var _ reward.LedgerRepository = (*LedgerRepo)(nil)

// Apply writes the ledger entry. Returns false when an entry with the same
// idempotency key already exists.
func (r *LedgerRepo) Apply(ctx context.Context, entry *reward.LedgerEntry) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO reward_ledger
			(id, idempotency_key, user_id, kind, achievement_id, milestone, reward_type, points, badge_id, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, entry.ID, entry.IdempotencyKey(), entry.UserID, entry.Kind,
		entry.AchievementID, entry.Milestone, entry.RewardType, entry.Points, entry.BadgeID, entry.AppliedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: apply ledger entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Has reports whether a ledger entry exists for the idempotency key.
func (r *LedgerRepo) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reward_ledger WHERE idempotency_key = $1)
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has ledger entry: %w", err)
	}
	return exists, nil
}

// ListForUser returns the user's ledger entries, newest first.
func (r *LedgerRepo) ListForUser(ctx context.Context, userID string) ([]*reward.LedgerEntry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, kind, achievement_id, milestone, reward_type, points, badge_id, applied_at
		FROM reward_ledger
		WHERE user_id = $1
		ORDER BY applied_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries: %w", err)
	}
	defer rows.Close()

	var result []*reward.LedgerEntry
	for rows.Next() {
		e := &reward.LedgerEntry{}
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.AchievementID, &e.Milestone,
			&e.RewardType, &e.Points, &e.BadgeID, &e.AppliedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// TotalPoints returns the user's applied points balance.
func (r *LedgerRepo) TotalPoints(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.conn.QueryRow(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM reward_ledger WHERE user_id = $1
	`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: total points: %w", err)
	}
	return total, nil
}

// Badges returns the badge identifiers granted to the user.
func (r *LedgerRepo) Badges(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT badge_id FROM reward_ledger
		WHERE user_id = $1 AND reward_type = 'badge' AND badge_id <> ''
		ORDER BY applied_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list badges: %w", err)
	}
	defer rows.Close()

	var badges []string
	for rows.Next() {
		var badge string
		if err := rows.Scan(&badge); err != nil {
			return nil, fmt.Errorf("postgres: scan badge: %w", err)
		}
		badges = append(badges, badge)
	}
	return badges, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD OUTBOX REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// OutboxRepo implements reward.OutboxRepository on PostgreSQL.
type OutboxRepo struct {
	conn *Connection
}

// NewOutboxRepo creates the repository.
func NewOutboxRepo(conn *Connection) *OutboxRepo {
	return &OutboxRepo{conn: conn}
}

var _ reward.OutboxRepository = (*OutboxRepo)(nil)

// Enqueue adds an item; idempotent on the item's natural key.
func (r *OutboxRepo) Enqueue(ctx context.Context, item *reward.OutboxItem) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO reward_outbox
			(id, idempotency_key, kind, user_id, achievement_id, milestone, enqueued_at, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, item.ID, item.IdempotencyKey(), item.Kind, item.UserID,
		item.AchievementID, item.Milestone, item.EnqueuedAt, item.Attempts, item.LastError)
	if err != nil {
		return fmt.Errorf("postgres: enqueue outbox item: %w", err)
	}
	return nil
}

// Due returns up to limit pending items, oldest first.
func (r *OutboxRepo) Due(ctx context.Context, limit int) ([]*reward.OutboxItem, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, kind, user_id, achievement_id, milestone, enqueued_at, attempts, last_error
		FROM reward_outbox
		ORDER BY enqueued_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due outbox items: %w", err)
	}
	defer rows.Close()

	var result []*reward.OutboxItem
	for rows.Next() {
		item := &reward.OutboxItem{}
		if err := rows.Scan(&item.ID, &item.Kind, &item.UserID, &item.AchievementID,
			&item.Milestone, &item.EnqueuedAt, &item.Attempts, &item.LastError); err != nil {
			return nil, fmt.Errorf("postgres: scan outbox item: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// MarkDone removes a successfully dispatched item.
func (r *OutboxRepo) MarkDone(ctx context.Context, item *reward.OutboxItem) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM reward_outbox WHERE id = $1`, item.ID)
	if err != nil {
		return fmt.Errorf("postgres: mark outbox item done: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt and keeps the item for retry.
func (r *OutboxRepo) MarkFailed(ctx context.Context, item *reward.OutboxItem, dispatchErr error) error {
	msg := ""
	if dispatchErr != nil {
		msg = dispatchErr.Error()
	}
	_, err := r.conn.Exec(ctx, `
		UPDATE reward_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1
	`, item.ID, msg)
	if err != nil {
		return fmt.Errorf("postgres: mark outbox item failed: %w", err)
	}
	return nil
}
