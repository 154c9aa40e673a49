package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/simbridge/internal/engine"
	"github.com/roach88/simbridge/internal/model"
)

// Dispatch is a journaled dispatch cycle as read back from storage.
// Errors come back as their message text.
type Dispatch struct {
	Seq      int64
	Time     time.Time
	Stream   model.Stream
	Token    model.Token
	Outcome  engine.Outcome
	State    model.State
	Error    string
	Requests []RequestEntry
}

// RequestEntry is one issued request and its failure text, if any.
type RequestEntry struct {
	Request model.Request
	Error   string
}

// ReadRecords returns all dispatches for a session ordered by seq.
//
// Returns an empty slice (not nil) if the session has no dispatches.
func (s *Store) ReadRecords(ctx context.Context, sessionID string) ([]Dispatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, at, stream, token, outcome, state, error
		FROM dispatches
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	dispatches := []Dispatch{}
	index := map[int64]int{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		index[d.Seq] = len(dispatches)
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}

	if err := s.attachRequests(ctx, sessionID, dispatches, index); err != nil {
		return nil, err
	}
	return dispatches, nil
}

// attachRequests loads request rows and hangs them off their dispatch.
func (s *Store) attachRequests(ctx context.Context, sessionID string, dispatches []Dispatch, index map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, action, param, error
		FROM requests
		WHERE session_id = ?
		ORDER BY seq ASC, idx ASC
	`, sessionID)
	if err != nil {
		return fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq    int64
			action string
			param  sql.NullFloat64
			errMsg sql.NullString
		)
		if err := rows.Scan(&seq, &action, &param, &errMsg); err != nil {
			return fmt.Errorf("scan request: %w", err)
		}
		i, ok := index[seq]
		if !ok {
			return fmt.Errorf("request for unknown dispatch seq %d", seq)
		}
		dispatches[i].Requests = append(dispatches[i].Requests, RequestEntry{
			Request: model.Request{Action: model.Action(action), Param: paramFromNull(param)},
			Error:   errMsg.String,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate requests: %w", err)
	}
	return nil
}

func scanDispatch(rows *sql.Rows) (Dispatch, error) {
	var (
		d       Dispatch
		at      int64
		stream  string
		token   string
		outcome string
		state   string
		errMsg  sql.NullString
	)
	if err := rows.Scan(&d.Seq, &at, &stream, &token, &outcome, &state, &errMsg); err != nil {
		return Dispatch{}, fmt.Errorf("scan dispatch: %w", err)
	}

	st, ok := model.ParseStream(stream)
	if !ok {
		return Dispatch{}, fmt.Errorf("dispatch %d: unknown stream %q", d.Seq, stream)
	}
	parsed, err := unmarshalState(state)
	if err != nil {
		return Dispatch{}, fmt.Errorf("dispatch %d: %w", d.Seq, err)
	}

	d.Time = time.UnixMilli(at).UTC()
	d.Stream = st
	d.Token = model.Token(token)
	d.Outcome = engine.Outcome(outcome)
	d.State = parsed
	d.Error = errMsg.String
	return d, nil
}

// ReadSession returns one session. Returns sql.ErrNoRows (wrapped) if absent.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, source, profile, crs, settings
		FROM sessions
		WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session with its dispatch count, oldest first.
func (s *Store) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.source, s.profile, s.crs, s.settings,
		       (SELECT COUNT(*) FROM dispatches d WHERE d.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at ASC, s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	summaries := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		sess, err := scanSession(rows, &sum.Dispatches)
		if err != nil {
			return nil, err
		}
		sum.Session = sess
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return summaries, nil
}

// OutcomeCounts tallies a session's dispatches by outcome.
func (s *Store) OutcomeCounts(ctx context.Context, sessionID string) (map[engine.Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome, COUNT(*)
		FROM dispatches
		WHERE session_id = ?
		GROUP BY outcome
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	counts := map[engine.Outcome]int{}
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		counts[engine.Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner, extra ...any) (Session, error) {
	var (
		sess     Session
		started  int64
		settings string
	)
	dest := append([]any{&sess.ID, &started, &sess.Source, &sess.Profile, &sess.CRS, &settings}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	parsed, err := unmarshalSettings(settings)
	if err != nil {
		return Session{}, err
	}
	sess.StartedAt = time.UnixMilli(started).UTC()
	sess.Settings = parsed
	return sess, nil
}
