package observability

import "context"

// Checker reports the health of one dependency for the readiness probe.
// Implementations must respect ctx and be safe for concurrent use.
type Checker interface {
	// Name identifies the component (e.g., "postgres", "catalog").
	Name() string
	// Check returns nil when the component can serve.
	Check(ctx context.Context) error
}
