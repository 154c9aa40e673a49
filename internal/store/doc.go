// Package store provides the SQLite dispatch journal.
//
// The journal is an append-only log with:
//   - Sessions: one row per bridge run (id, start time, profile, CRS selector)
//   - Dispatches: one row per consumed token, keyed by (session, seq)
//   - Requests: the requests a dispatch issued and whether each one failed
//
// # Ordering
//
// All queries order by seq, the Dispatcher's logical clock, never by
// timestamps. Two dispatches in the same millisecond still read back in the
// order they happened.
//
// # Idempotency
//
// Writes use ON CONFLICT DO NOTHING, so replaying the same record twice is
// harmless.
//
// # Database Configuration
//
// Open puts the pragmas on the DSN so each connection runs in WAL mode with
// synchronous=NORMAL, a 5 second busy timeout and foreign keys enforced.
// WAL lets the journal command read a database the bridge is still writing;
// Open refuses a file that cannot switch to it. Close checkpoints the WAL so
// the finished journal is a single file.
//
// The Dispatcher never writes here directly. Journal is an engine.Observer
// that hands records to a writer goroutine over a buffered channel.
package store
