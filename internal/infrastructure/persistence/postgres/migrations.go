package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESSION
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progression tables
-- Version: 001

-- Per-(user, achievement) running counters. Rows are created lazily on the
-- first relevant event and never deleted.
CREATE TABLE IF NOT EXISTS achievement_progress (
    user_id VARCHAR(64) NOT NULL,
    achievement_id VARCHAR(100) NOT NULL,
    value INTEGER NOT NULL DEFAULT 0,
    distinct_values JSONB NOT NULL DEFAULT '[]'::jsonb,
    unlocked_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id),
    CONSTRAINT non_negative_value CHECK (value >= 0)
);

CREATE INDEX IF NOT EXISTS idx_achievement_progress_user ON achievement_progress(user_id);

-- Immutable unlock facts. The primary key is the idempotency guarantee:
-- a concurrent or replayed unlock inserts nothing.
CREATE TABLE IF NOT EXISTS unlock_records (
    user_id VARCHAR(64) NOT NULL,
    achievement_id VARCHAR(100) NOT NULL,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_unlock_records_user ON unlock_records(user_id, unlocked_at DESC);

-- One streak row per user. last_active_day is a canonical DATE, already
-- truncated to the engine's day boundary.
CREATE TABLE IF NOT EXISTS streak_state (
    user_id VARCHAR(64) PRIMARY KEY,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_active_day DATE,
    freeze_count INTEGER NOT NULL DEFAULT 0,
    achieved_milestones JSONB NOT NULL DEFAULT '[]'::jsonb,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT longest_covers_current CHECK (longest_streak >= current_streak),
    CONSTRAINT non_negative_freezes CHECK (freeze_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_streak_state_last_active ON streak_state(last_active_day) WHERE current_streak > 0;
`

const migration001Down = `
DROP TABLE IF EXISTS streak_state;
DROP TABLE IF EXISTS unlock_records;
DROP TABLE IF EXISTS achievement_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE REWARDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create reward ledger and outbox
-- Version: 002

-- Append-only reward ledger. The unique idempotency key makes issuance
-- exactly-once; balances and badge sets are derived, never stored.
CREATE TABLE IF NOT EXISTS reward_ledger (
    id UUID PRIMARY KEY,
    idempotency_key TEXT NOT NULL UNIQUE,
    user_id VARCHAR(64) NOT NULL,
    kind VARCHAR(20) NOT NULL,
    achievement_id VARCHAR(100) NOT NULL DEFAULT '',
    milestone INTEGER NOT NULL DEFAULT 0,
    reward_type VARCHAR(20) NOT NULL,
    points INTEGER NOT NULL DEFAULT 0,
    badge_id VARCHAR(100) NOT NULL DEFAULT '',
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_kind CHECK (kind IN ('achievement', 'milestone')),
    CONSTRAINT valid_reward_type CHECK (reward_type IN ('points', 'badge')),
    CONSTRAINT non_negative_points CHECK (points >= 0)
);

CREATE INDEX IF NOT EXISTS idx_reward_ledger_user ON reward_ledger(user_id, applied_at DESC);

-- Durable dispatch backlog drained by the worker. Unique on the same
-- natural key as the ledger so a replayed evaluation never doubles it.
CREATE TABLE IF NOT EXISTS reward_outbox (
    id UUID PRIMARY KEY,
    idempotency_key TEXT NOT NULL UNIQUE,
    kind VARCHAR(20) NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    achievement_id VARCHAR(100) NOT NULL DEFAULT '',
    milestone INTEGER NOT NULL DEFAULT 0,
    enqueued_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',

    CONSTRAINT valid_outbox_kind CHECK (kind IN ('achievement', 'milestone'))
);

CREATE INDEX IF NOT EXISTS idx_reward_outbox_due ON reward_outbox(enqueued_at);
`

const migration002Down = `
DROP TABLE IF EXISTS reward_outbox;
DROP TABLE IF EXISTS reward_ledger;
`
