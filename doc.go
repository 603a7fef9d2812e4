// Package loom provides an event-sourced workflow orchestration core for
// Go. It decomposes long-running tasks into discrete steps, dispatches each
// step to a pool of specialty-tagged executor agents, and records every
// state transition as an immutable event so workflows can be reconstructed
// or resumed after a crash.
//
// Loom is designed as a library, not a service. Import it, configure a
// store, hand the coordinator an executor, and drive workflows.
//
// # Quick Start
//
//	s := memory.New()
//	pool := worker.NewPool()
//	pool.Spawn("research")
//
//	c, err := coordinator.New(s, pool, exec)
//	if err != nil {
//		return err
//	}
//	err = c.Run(ctx, wf.ID)
//
// # Architecture
//
// Loom follows a composable store pattern: the event log and the workflow/
// checkpoint store define separate interfaces and a single backend
// (memory, Redis, Postgres, SQLite) implements both. The event log is
// authoritative; event buses are observability side channels only.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package loom
