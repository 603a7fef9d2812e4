// Package store defines the aggregate persistence interface.
//
// Each subsystem defines its own contract: workflow.Store covers workflow
// records and checkpoint histories, event.Log covers the append-only event
// log. The composite [Store] composes them, so a single backend satisfies
// every persistence concern of the coordinator.
//
// Available backends:
//
//   - store/memory — in-memory store for development and testing
//   - store/postgres — PostgreSQL backend using pgx/v5
//   - store/sqlite — SQLite backend using Bun
//   - store/redis — Redis backend
package store

import (
	"context"

	"github.com/weftworks/loom/event"
	"github.com/weftworks/loom/workflow"
)

// Store is the aggregate persistence interface. A backend implements both
// the workflow record contract and the append-only event log so that a
// checkpoint and the events it summarizes live in the same storage engine.
type Store interface {
	workflow.Store
	event.Log

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks storage connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
