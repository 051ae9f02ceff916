// Package postgres wraps a lib/pq connection pool with versioned schema
// migrations and a transaction helper.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/reverse-index/pkg/resilience"
	"github.com/lib/pq"
)

const versionsTable = `CREATE TABLE IF NOT EXISTS schema_versions (
	component  TEXT PRIMARY KEY,
	version    INT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL
)`

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens the pool and waits for the server to answer a ping, retrying
// while it starts up.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	retry := resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
	err = resilience.Retry(ctx, "postgres ping", retry, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{DB: db, logger: slog.Default().With("component", "postgres")}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Migrate applies the steps of component that have not run yet. Step i
// brings the component to version i+1; all pending steps share one
// transaction, so a failure leaves the recorded version unchanged.
func (c *Client) Migrate(ctx context.Context, component string, steps ...string) error {
	if _, err := c.DB.ExecContext(ctx, versionsTable); err != nil {
		return fmt.Errorf("creating schema_versions: %w", err)
	}
	return c.InTx(ctx, func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRowContext(ctx,
			`SELECT version FROM schema_versions WHERE component = $1 FOR UPDATE`, component).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading %s schema version: %w", component, err)
		}
		if current > len(steps) {
			return fmt.Errorf("%s schema version %d is newer than this binary (%d)", component, current, len(steps))
		}
		for i := current; i < len(steps); i++ {
			if _, err := tx.ExecContext(ctx, steps[i]); err != nil {
				return fmt.Errorf("applying %s migration %d: %w", component, i+1, describe(err))
			}
		}
		if current == len(steps) {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_versions (component, version, applied_at) VALUES ($1, $2, $3)
			ON CONFLICT (component) DO UPDATE SET version = EXCLUDED.version, applied_at = EXCLUDED.applied_at`,
			component, len(steps), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("recording %s schema version: %w", component, err)
		}
		c.logger.Info("schema migrated", "schema", component, "from", current, "to", len(steps))
		return nil
	})
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// describe adds the SQLSTATE code and detail of a server error.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (sqlstate %s: %s)", err, pqErr.Code, pqErr.Detail)
	}
	return err
}
