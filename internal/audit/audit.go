// Package audit persists recovery decisions for later inspection, the
// same append-only-log role the teacher's internal/events.SQLiteStore
// plays for delivered events. Recovery decisions are exactly what
// spec.md §4.6 requires an audit log line for ("an audit log line is
// emitted" on crash-loop suppression); this package generalizes that to
// every decision the Supervisor applies. modernc.org/sqlite is used in
// place of the teacher's cgo-based mattn/go-sqlite3 driver so the
// daemon stays a single static binary.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed append-only log of supervisor decisions.
type Store struct {
	db *sql.DB
}

// Open creates/opens the sqlite file at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		session TEXT NOT NULL,
		kind TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_target ON decisions(target, created_at);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("initializing audit schema: %w", err)
	}
	return nil
}

// RecordDecision implements supervisor.AuditSink.
func (s *Store) RecordDecision(target, session, kind, reason string) {
	_, _ = s.db.Exec(
		`INSERT INTO decisions (target, session, kind, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		target, session, kind, reason, time.Now(),
	)
}

// Decision is one row read back from the log.
type Decision struct {
	Target    string    `json:"target"`
	Session   string    `json:"session"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// RecentForTarget returns the most recent decisions for target, newest
// first, bounded by limit.
func (s *Store) RecentForTarget(target string, limit int) ([]Decision, error) {
	rows, err := s.db.Query(
		`SELECT target, session, kind, reason, created_at FROM decisions
		 WHERE target = ? ORDER BY created_at DESC LIMIT ?`,
		target, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.Target, &d.Session, &d.Kind, &d.Reason, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning decision row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Recent returns the most recent decisions across all targets, newest
// first, bounded by limit. Used by the read-only dashboard's activity
// feed (internal/server).
func (s *Store) Recent(limit int) ([]Decision, error) {
	rows, err := s.db.Query(
		`SELECT target, session, kind, reason, created_at FROM decisions
		 ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.Target, &d.Session, &d.Kind, &d.Reason, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning decision row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
