// Package store provides the Data Access Layer (Repository) for experiment and segment definitions.
// It handles all direct interactions with the PostgreSQL database using the pgx driver.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/bifrost/internal/validation"
)

// Compile-time check to verify that PostgresStore implements DefinitionRepository.
var _ DefinitionRepository = (*PostgresStore)(nil)

// ErrNotFound is returned when a definition does not exist.
var ErrNotFound = errors.New("definition not found")

// Kind selects the definitions table.
type Kind string

const (
	KindExperiment Kind = "experiments"
	KindSegment    Kind = "segments"
)

// Definition is one feed record as stored in the 'experiments' or 'segments' table.
type Definition struct {
	ID         int64           `db:"id"`
	Name       string          `db:"name"`
	Definition json.RawMessage `db:"definition"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// DefinitionRepository defines the persistence operations for catalog definitions.
type DefinitionRepository interface {
	// List returns every definition of the given kind ordered by name.
	List(ctx context.Context, kind Kind) ([]*Definition, error)

	// Upsert inserts or replaces the definition with the given name.
	Upsert(ctx context.Context, kind Kind, name string, definition json.RawMessage) (*Definition, error)

	// Delete removes the named definition. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, kind Kind, name string) error
}

// PostgresStore is the implementation of DefinitionRepository backed by PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	validation.AssertNotNil(db, "database pool")
	return &PostgresStore{db: db}
}

// table resolves a Kind to its table name. Only the two known tables are ever
// interpolated into SQL.
func table(kind Kind) (string, error) {
	switch kind {
	case KindExperiment, KindSegment:
		return string(kind), nil
	default:
		return "", fmt.Errorf("unknown definition kind %q", kind)
	}
}

// List retrieves all definitions of a kind.
func (s *PostgresStore) List(ctx context.Context, kind Kind) ([]*Definition, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, name, definition, created_at, updated_at
		FROM %s
		ORDER BY name ASC
	`, tbl)

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", tbl, err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		var d Definition
		if err := rows.Scan(&d.ID, &d.Name, &d.Definition, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", tbl, err)
		}
		defs = append(defs, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return defs, nil
}

// Upsert inserts a definition or replaces the existing one with the same name.
// It uses the RETURNING clause to get the server-generated ID and timestamps.
func (s *PostgresStore) Upsert(ctx context.Context, kind Kind, name string, definition json.RawMessage) (*Definition, error) {
	tbl, err := table(kind)
	if err != nil {
		return nil, err
	}
	if !json.Valid(definition) {
		return nil, fmt.Errorf("definition for %q is not valid JSON", name)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, definition)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET definition = EXCLUDED.definition, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, tbl)

	d := &Definition{Name: name, Definition: definition}
	err = s.db.QueryRow(ctx, query, name, definition).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// Error Code 22P02: invalid_text_representation (rejected JSONB)
			if pgErr.Code == "22P02" {
				return nil, fmt.Errorf("definition for %q rejected by database: %s", name, pgErr.Message)
			}
		}
		return nil, fmt.Errorf("failed to upsert %s %q: %w", tbl, name, err)
	}

	return d, nil
}

// Delete removes a definition by name.
func (s *PostgresStore) Delete(ctx context.Context, kind Kind, name string) error {
	tbl, err := table(kind)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, tbl), name)
	if err != nil {
		return fmt.Errorf("failed to delete %s %q: %w", tbl, name, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
