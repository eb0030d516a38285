package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы хранилища. Все операторы идемпотентны.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS flows (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS flow_versions (
		flow_id    UUID NOT NULL REFERENCES flows(id) ON DELETE CASCADE,
		version    INTEGER NOT NULL,
		spec       JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (flow_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id           UUID PRIMARY KEY,
		flow_name    TEXT NOT NULL DEFAULT '',
		flow_version INTEGER NOT NULL DEFAULT 0,
		status       TEXT NOT NULL,
		nodes        JSONB NOT NULL DEFAULT '[]',
		started_at   TIMESTAMPTZ NOT NULL,
		finished_at  TIMESTAMPTZ,
		error        TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS runs_flow_name_started_at_idx
		ON runs (flow_name, started_at DESC)`,
}

// Migrate создаёт таблицы, если их ещё нет.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
