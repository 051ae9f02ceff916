package generation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/postgres"
)

// migrations are applied in order; append, never edit.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS index_generations (
	name          TEXT PRIMARY KEY,
	sequence      BIGINT NOT NULL,
	path          TEXT NOT NULL,
	documents     BIGINT NOT NULL,
	terms         BIGINT NOT NULL,
	postings      BIGINT NOT NULL,
	size_bytes    BIGINT NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	published_at  TIMESTAMPTZ
)`,
	`CREATE INDEX IF NOT EXISTS index_generations_status_seq ON index_generations (status, sequence DESC)`,
}

const (
	StatusBuilt     = "built"
	StatusPublished = "published"
)

// Event is the index-complete message announcing a published generation.
type Event struct {
	Generation  string    `json:"generation"`
	Sequence    int64     `json:"sequence"`
	Path        string    `json:"path"`
	Documents   int       `json:"documents"`
	PublishedAt time.Time `json:"published_at"`
}

// Registry keeps the generation history in PostgreSQL.
type Registry struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewRegistry brings the index_generations schema up to date.
func NewRegistry(ctx context.Context, db *postgres.Client) (*Registry, error) {
	if err := db.Migrate(ctx, "generation-registry", migrations...); err != nil {
		return nil, fmt.Errorf("generation registry: %w", err)
	}
	return &Registry{db: db, logger: slog.Default().With("component", "generation-registry")}, nil
}

// Record stores a built generation.
func (r *Registry) Record(ctx context.Context, m *Manifest, path string) error {
	_, err := r.db.DB.ExecContext(ctx,
		`INSERT INTO index_generations (name, sequence, path, documents, terms, postings, size_bytes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (name) DO UPDATE SET path = EXCLUDED.path, size_bytes = EXCLUDED.size_bytes`,
		m.Name, m.Sequence, path, m.Documents, m.Terms, m.Postings, m.TotalSize(), StatusBuilt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording generation %s: %w", m.Name, err)
	}
	return nil
}

// MarkPublished flags name as published in the same transaction that
// demotes any earlier published generation.
func (r *Registry) MarkPublished(ctx context.Context, name string, at time.Time) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE index_generations SET status = $1 WHERE status = $2 AND name <> $3`,
			StatusBuilt, StatusPublished, name); err != nil {
			return fmt.Errorf("demoting previous generation: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE index_generations SET status = $1, published_at = $2 WHERE name = $3`,
			StatusPublished, at, name)
		if err != nil {
			return fmt.Errorf("publishing generation %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("publishing generation %s: not recorded", name)
		}
		return nil
	})
}

// Latest returns the most recently published generation name, or "" when
// none has been published.
func (r *Registry) Latest(ctx context.Context) (string, error) {
	var name string
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT name FROM index_generations WHERE status = $1 ORDER BY sequence DESC LIMIT 1`,
		StatusPublished).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying latest generation: %w", err)
	}
	return name, nil
}
