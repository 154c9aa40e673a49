package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/simbridge/internal/engine"
	"github.com/roach88/simbridge/internal/model"
)

var testStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session with minimal required fields.
func createTestSession(t *testing.T, s *Store, id string) Session {
	t.Helper()
	sess := Session{
		ID:        id,
		StartedAt: testStart,
		Source:    "serial",
		Profile:   "msfs2020-default",
		CRS:       "vor1",
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}

// dispatchedRecord builds a record that issued n copies of a.
func dispatchedRecord(seq int64, tok model.Token, a model.Action, n int) engine.Record {
	rec := engine.Record{
		Seq:     seq,
		Time:    testStart.Add(time.Duration(seq) * time.Millisecond),
		Stream:  model.Primary,
		Token:   tok,
		Outcome: engine.OutcomeDispatched,
	}
	for i := 0; i < n; i++ {
		rec.Results = append(rec.Results, engine.Result{Request: model.Request{Action: a}})
	}
	return rec
}

func unmatchedRecord(seq int64, tok model.Token) engine.Record {
	return engine.Record{
		Seq:     seq,
		Time:    testStart.Add(time.Duration(seq) * time.Millisecond),
		Stream:  model.Primary,
		Token:   tok,
		Outcome: engine.OutcomeUnmatched,
		Err:     engine.NewUnmatchedError(model.Primary, tok),
	}
}

var errTestTrigger = errors.New("event unknown")
