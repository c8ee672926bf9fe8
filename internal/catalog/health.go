package catalog

import (
	"context"
	"errors"
)

// ErrNotLoaded is reported by the health checker until the first successful load.
var ErrNotLoaded = errors.New("catalog not loaded")

// HealthChecker reports readiness once the catalog holds a snapshot.
type HealthChecker struct {
	catalog *Catalog
}

// NewHealthChecker creates a readiness checker for c.
func NewHealthChecker(c *Catalog) *HealthChecker {
	return &HealthChecker{catalog: c}
}

// Name returns the component name.
func (h *HealthChecker) Name() string {
	return "catalog"
}

// Check fails until a load has succeeded. It never blocks.
func (h *HealthChecker) Check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.catalog == nil || !h.catalog.Loaded() {
		return ErrNotLoaded
	}
	return nil
}
