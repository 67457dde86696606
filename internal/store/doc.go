// Package store provides SQLite-backed storage for finished stage runs.
//
// Every supervised run is written once, with its outcome and a snapshot of
// each step's stats taken when supervision ended. The CLI reads it back for
// the history and show commands.
//
// # Tables
//
//   - runs: one row per run (stage, part, guarantees, status, fault text)
//   - run_steps: steps of a run in stage order
//   - step_stats: stat values per step, keyed by stat name
//
// # Ordering
//
//   - ListRuns returns newest first: ORDER BY started_at DESC, id DESC
//   - Steps are returned in stage order (position ASC)
//   - Stats are returned in key order (stat ASC)
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Stage and step names are stored in Unicode NFC so that names typed on
// different systems compare equal.
package store
