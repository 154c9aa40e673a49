package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/simbridge/internal/engine"
)

// DefaultJournalBuffer is the record buffer used when a non-positive size is given.
const DefaultJournalBuffer = 256

// Journal writes dispatch records to the store off the Dispatcher goroutine.
//
// Observe never blocks: records go into a buffered channel drained by one
// writer goroutine. When the buffer is full the record is dropped and counted.
// Tokens are never affected, only their journal entries.
//
// Thread-safety: Observe may be called from one goroutine (the Dispatcher)
// concurrently with Close from another.
type Journal struct {
	store     *Store
	sessionID string

	mu      sync.Mutex
	closed  bool
	records chan engine.Record
	done    chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewJournal starts the writer goroutine for sessionID.
func NewJournal(s *Store, sessionID string, buffer int) *Journal {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	j := &Journal{
		store:     s,
		sessionID: sessionID,
		records:   make(chan engine.Record, buffer),
		done:      make(chan struct{}),
	}
	go j.run()
	return j
}

// Observe implements engine.Observer.
func (j *Journal) Observe(rec engine.Record) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		j.dropped.Add(1)
		return
	}

	select {
	case j.records <- rec:
	default:
		j.dropped.Add(1)
		slog.Warn("journal buffer full, dropping record",
			"session", j.sessionID,
			"seq", rec.Seq,
			"token", string(rec.Token),
		)
	}
}

// Close stops accepting records, flushes the buffer, and waits for the writer.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.records)
	}
	j.mu.Unlock()

	<-j.done
	slog.Info("journal closed",
		"session", j.sessionID,
		"written", j.written.Load(),
		"dropped", j.dropped.Load(),
		"failed", j.failed.Load(),
	)
}

// Written returns how many records reached the store.
func (j *Journal) Written() int64 { return j.written.Load() }

// Dropped returns how many records were discarded because the buffer was full.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Failed returns how many store writes returned an error.
func (j *Journal) Failed() int64 { return j.failed.Load() }

func (j *Journal) run() {
	defer close(j.done)

	// Writes outlive the bridge context so the buffer flushes on shutdown.
	ctx := context.Background()
	for rec := range j.records {
		if err := j.store.WriteRecord(ctx, j.sessionID, rec); err != nil {
			j.failed.Add(1)
			slog.Error("journal write failed", "session", j.sessionID, "seq", rec.Seq, "error", err)
			continue
		}
		j.written.Add(1)
	}
}

var _ engine.Observer = (*Journal)(nil)
