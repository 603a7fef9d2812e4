// Package sqlite implements store.Store on SQLite via the Bun query
// builder. It suits single-node deployments and local development where
// durability matters but running Postgres does not.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/workflow"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ workflow.Store = (*Store)(nil)
	_ event.Log      = (*Store)(nil)
)

// Store is a Bun implementation of store.Store using the SQLite dialect.
type Store struct {
	db     *bun.DB
	owned  bool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open creates a store backed by the SQLite database at dsn. Use
// "file::memory:?cache=shared" for an in-memory database. The store owns
// the connection and closes it on Close.
func Open(dsn string, opts ...Option) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("loom/sqlite: open: %w", err)
	}

	s := New(bun.NewDB(sqldb, sqlitedialect.New()), opts...)
	s.owned = true
	return s, nil
}

// New creates a store from an existing *bun.DB. The caller owns the db
// lifecycle — the Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate creates all tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	models := []any{
		(*workflowModel)(nil),
		(*eventModel)(nil),
		(*checkpointModel)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("loom/sqlite: create table: %w", err)
		}
	}

	_, err := s.db.NewCreateIndex().
		Model((*checkpointModel)(nil)).
		Index("idx_loom_checkpoints_workflow").
		Column("workflow_id", "event_index").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("loom/sqlite: create index: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database when the store owns it, otherwise no-op.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
