package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/erp-sync/internal/config"
)

// AuditSchema creates the audit table if it does not exist.
const AuditSchema = `
CREATE TABLE IF NOT EXISTS sync_audit (
    id          BIGSERIAL PRIMARY KEY,
    client_id   TEXT        NOT NULL,
    entity      TEXT        NOT NULL,
    kind        TEXT        NOT NULL,
    entity_id   TEXT,
    payload     JSONB       NOT NULL,
    received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sync_audit_entity_received_idx
    ON sync_audit (entity, received_at);
`

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema applies AuditSchema.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, AuditSchema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}
