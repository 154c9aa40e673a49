// Package engine implements the simbridge command-dispatch core.
//
// ARCHITECTURE:
//
// Single-Writer Dispatch Loop:
// Two producer goroutines (one per hardware channel) push tokens into their
// own TokenQueue. One Dispatcher goroutine consumes both queues and is the
// only code that:
//   - writes requests to the Action Sink
//   - writes the mode flags (through its Snapshot)
//   - changes the altitude step setting
//
// No locking is needed beyond the queues themselves.
//
// Dispatch Cycle:
//  1. Snapshot.MaybeRefresh: re-read mode flags if the interval elapsed
//  2. If the secondary queue has a token, apply it to the mode-select table
//     and end the cycle
//  3. Otherwise, if the primary queue has a token, resolve it against the
//     command table and fire the resulting requests
//  4. With both queues empty, only step 1 runs; Run then sleeps until a
//     queue signals or the refresh interval passes
//
// Both tables are data (CommandTable, ModeSelectTable). A command entry is a
// list of guarded branches; the first branch whose guard holds wins, and a
// token whose guards all fail is absorbed without an action.
//
// Error Handling:
// Every failure inside a cycle is a RuntimeError that is logged, attached to
// the cycle's Record, and otherwise ignored. An action the simulator does not
// know, a token no table knows, or a failed telemetry read never stops the
// loop and is never retried.
//
// Ordering:
// Tokens are dispatched in FIFO order per stream. There is no ordering
// between the two streams.
package engine
