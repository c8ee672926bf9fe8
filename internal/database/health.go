package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthChecker implements the observability.Checker interface for PostgreSQL.
type HealthChecker struct {
	pool *pgxpool.Pool
}

// NewHealthChecker creates a new health checker for the given pool.
func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "postgres"
}

// Check pings the database and verifies the definitions schema is present,
// since a reachable server without migrations cannot serve a catalog load.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pool == nil {
		return fmt.Errorf("database pool is nil")
	}
	if err := h.pool.Ping(ctx); err != nil {
		return err
	}

	var ok bool
	err := h.pool.QueryRow(ctx,
		`SELECT to_regclass('public.experiments') IS NOT NULL AND to_regclass('public.segments') IS NOT NULL`,
	).Scan(&ok)
	if err != nil {
		return fmt.Errorf("schema check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("definitions tables are missing")
	}
	return nil
}
