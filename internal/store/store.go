package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// journalPragmas ride on the DSN so the driver applies them to every
// connection it opens, not only the first.
var journalPragmas = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
}

// migration upgrades a journal written by an older build.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order on top of schema.sql. user_version records the
// last one applied.
var migrations = []migration{
	{1, "outcome index", `CREATE INDEX IF NOT EXISTS idx_dispatches_outcome ON dispatches(session_id, outcome)`},
}

func latestVersion() int {
	return migrations[len(migrations)-1].version
}

// Store is the SQLite dispatch journal. The dispatcher never writes to it
// directly; records arrive through a Journal.
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path and brings its schema up to date.
// Reopening an existing journal is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?"+journalPragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	// One connection: the journal writer is the only writer and reads are
	// rare CLI lookups.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := requireWAL(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal tables: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close folds the WAL back into the database file, so a finished journal can
// be copied as one file, and closes the connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	var cpErr error
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		cpErr = fmt.Errorf("checkpoint journal: %w", err)
	}
	return errors.Join(cpErr, s.db.Close())
}

// requireWAL fails when the file cannot be put in WAL mode, for example on a
// filesystem without shared memory support. Without WAL the CLI cannot read a
// journal while the bridge is writing it.
func requireWAL(db *sql.DB) error {
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("read journal_mode: %w", err)
	}
	if mode != "wal" {
		return fmt.Errorf("journal_mode is %q, need wal", mode)
	}
	return nil
}

// migrate applies every migration newer than the journal's user_version, each
// in its own transaction together with the version bump.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read journal version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate journal to v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate journal to v%d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate journal to v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate journal to v%d: %w", m.version, err)
		}

		if version > 0 {
			slog.Info("journal migrated", "from", version, "to", m.version, "change", m.name)
		}
		version = m.version
	}
	return nil
}
