// Package feed fetches the raw experiment and segment feeds the catalog is
// built from, and watches feed files for changes.
package feed

import (
	"context"
	"errors"
)

// ErrEmptyFeed is returned when a source yields no experiments or no segments document.
var ErrEmptyFeed = errors.New("feed is empty")

// Payload is one consistent pair of feed documents, both JSON objects keyed by name.
type Payload struct {
	Experiments []byte
	Segments    []byte
}

// Source produces feed payloads for a catalog load.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Fetch returns the current feeds. Implementations must respect ctx.
	Fetch(ctx context.Context) (Payload, error)
}
