package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	Name string
	SQL  string
}

// migrations run in order; names are recorded in poi_monitor_migrations and
// never re-applied. Only the ledger is owned here — the graphix POI tables
// belong to the indexing pipeline.
var migrations = []migration{
	{
		Name: "001_create_notifications_table",
		SQL: `
CREATE TABLE IF NOT EXISTS poi_notifications (
    id BIGSERIAL PRIMARY KEY,
    deployment_id TEXT NOT NULL,
    block_number BIGINT NOT NULL,
    poi_set BYTEA[] NOT NULL,
    message TEXT NOT NULL,
    sent_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (deployment_id, block_number, poi_set)
);

CREATE INDEX IF NOT EXISTS idx_poi_notifications_sent_at
ON poi_notifications (sent_at);
`,
	},
}

// Migrate applies pending migrations, each in its own transaction.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS poi_monitor_migrations (
    id BIGSERIAL PRIMARY KEY,
    migration_name TEXT NOT NULL UNIQUE,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.Query(ctx, `SELECT migration_name FROM poi_monitor_migrations`)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan applied migration: %w", err)
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}

	for _, m := range pending(applied, migrations) {
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func pending(applied map[string]bool, all []migration) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.Name] {
			out = append(out, m)
		}
	}
	return out
}

func apply(ctx context.Context, db *pgxpool.Pool, m migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.Name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.Name, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO poi_monitor_migrations (migration_name) VALUES ($1)`, m.Name); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return nil
}
