package store

import (
	"context"
	"fmt"

	"github.com/roach88/simbridge/internal/engine"
)

// WriteSession inserts a session row. Duplicate IDs are silently ignored.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	settings, err := marshalSettings(sess.Settings)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, source, profile, crs, settings)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.StartedAt.UnixMilli(),
		sess.Source,
		sess.Profile,
		sess.CRS,
		settings,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteRecord stores one dispatch and its requests in a single transaction.
// Uses ON CONFLICT DO NOTHING, so writing the same (session, seq) twice keeps
// the first copy.
//
// Note: The session referenced by sessionID must exist (foreign key constraint).
func (s *Store) WriteRecord(ctx context.Context, sessionID string, rec engine.Record) error {
	state, err := marshalState(rec.State)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO dispatches
		(session_id, seq, at, stream, token, outcome, state, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		sessionID,
		rec.Seq,
		rec.Time.UnixMilli(),
		rec.Stream.String(),
		string(rec.Token),
		string(rec.Outcome),
		state,
		nullError(rec.Err),
	)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write record: rows affected: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	for i, res := range rec.Results {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO requests (session_id, seq, idx, action, param, error)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			sessionID,
			rec.Seq,
			i,
			string(res.Request.Action),
			nullParam(res.Request.Param),
			nullError(res.Err),
		)
		if err != nil {
			return fmt.Errorf("write record: request %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write record: commit: %w", err)
	}
	return nil
}
