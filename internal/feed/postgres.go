package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rafaeljc/bifrost/internal/store"
	"github.com/rafaeljc/bifrost/internal/validation"
)

// Compile-time check to verify that PostgresSource implements Source.
var _ Source = (*PostgresSource)(nil)

// PostgresSource assembles the feeds from the definitions tables:
// each row's JSONB definition becomes the record under the row's name.
type PostgresSource struct {
	repo store.DefinitionRepository
}

// NewPostgresSource creates a source reading from repo.
func NewPostgresSource(repo store.DefinitionRepository) *PostgresSource {
	validation.AssertProvided(repo, "definition repository")
	return &PostgresSource{repo: repo}
}

// Name implements Source.
func (s *PostgresSource) Name() string { return "postgres" }

// Fetch implements Source.
func (s *PostgresSource) Fetch(ctx context.Context) (Payload, error) {
	experiments, err := s.document(ctx, store.KindExperiment)
	if err != nil {
		return Payload{}, err
	}
	segments, err := s.document(ctx, store.KindSegment)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Experiments: experiments, Segments: segments}, nil
}

func (s *PostgresSource) document(ctx context.Context, kind store.Kind) ([]byte, error) {
	defs, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", kind, err)
	}

	doc := make(map[string]json.RawMessage, len(defs))
	for _, d := range defs {
		doc[d.Name] = d.Definition
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s feed: %w", kind, err)
	}
	return out, nil
}
