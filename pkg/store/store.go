// Package store persists combat sessions and events in SQLite and answers
// the aggregate queries behind the API's read endpoints.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/camlog/camlog/pkg/combatlog"
	"github.com/camlog/camlog/pkg/logging"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// InMemory is the Open path for a throwaway in-memory database.
const InMemory = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	ended_at      INTEGER,
	event_count   INTEGER NOT NULL DEFAULT 0,
	total_damage  INTEGER NOT NULL DEFAULT 0,
	total_healing INTEGER NOT NULL DEFAULT 0,
	deaths        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	time        INTEGER NOT NULL,
	type        TEXT NOT NULL,
	source      TEXT NOT NULL,
	target      TEXT NOT NULL DEFAULT '',
	amount      INTEGER NOT NULL DEFAULT 0,
	damage_type TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_type    ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_target  ON events(target);
CREATE INDEX IF NOT EXISTS idx_events_source  ON events(source);
`

// Store is the SQLite-backed persistence layer. Safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Pass InMemory for a throwaway database.
func Open(path string, opts ...Option) (*Store, error) {
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("store: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite is single-writer; a second pooled connection would also see a
	// different database entirely in the in-memory case.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	s := &Store{db: db, log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession records a newly opened session.
func (s *Store) CreateSession(ctx context.Context, sess combatlog.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		sess.ID, sess.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// CloseSession marks a session as ended.
func (s *Store) CloseSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		endedAt.UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("store: close session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertEvent records one event and folds it into its session's aggregates.
func (s *Store) InsertEvent(ctx context.Context, e combatlog.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, session_id, time, type, source, target, amount, damage_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Time.UnixNano(), e.Type, e.Source, e.Target, e.Amount, e.DamageType)
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}

	var damage, healing, deaths int
	switch e.Type {
	case combatlog.EventDamage:
		damage = e.Amount
	case combatlog.EventHeal:
		healing = e.Amount
	case combatlog.EventDeath:
		deaths = 1
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET
			event_count = event_count + 1,
			total_damage = total_damage + ?,
			total_healing = total_healing + ?,
			deaths = deaths + ?
		 WHERE id = ?`,
		damage, healing, deaths, e.SessionID)
	if err != nil {
		return fmt.Errorf("store: update session aggregates: %w", err)
	}

	return tx.Commit()
}

// EventFilter narrows and pages an event listing. Zero values mean
// unfiltered; a zero Limit means the default page size.
type EventFilter struct {
	SessionID string
	Type      string
	Target    string
	Limit     int
	Offset    int
}

// DefaultPageSize caps listings when the caller gives no limit.
const DefaultPageSize = 50

// ListEvents returns a page of events, newest first, plus the total count
// matching the filter.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]combatlog.Event, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.SessionID != "" {
		where += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.Type != "" {
		where += " AND type = ?"
		args = append(args, f.Type)
	}
	if f.Target != "" {
		where += " AND target = ?"
		args = append(args, f.Target)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, time, type, source, target, amount, damage_type
		 FROM events`+where+` ORDER BY time DESC, id LIMIT ? OFFSET ?`,
		append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	events := make([]combatlog.Event, 0, limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// GetEvent returns a single event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (combatlog.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, time, type, source, target, amount, damage_type
		 FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return combatlog.Event{}, ErrNotFound
	}
	return e, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (combatlog.Event, error) {
	var e combatlog.Event
	var ns int64
	if err := row.Scan(&e.ID, &e.SessionID, &ns, &e.Type,
		&e.Source, &e.Target, &e.Amount, &e.DamageType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return combatlog.Event{}, err
		}
		return combatlog.Event{}, fmt.Errorf("store: scan event: %w", err)
	}
	e.Time = time.Unix(0, ns)
	return e, nil
}

// ListSessions returns a page of sessions, newest first, plus the total
// count.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]combatlog.Session, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count sessions: %w", err)
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, event_count, total_damage, total_healing, deaths
		 FROM sessions ORDER BY started_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]combatlog.Session, 0, limit)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetSession returns a single session by id.
func (s *Store) GetSession(ctx context.Context, id string) (combatlog.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, event_count, total_damage, total_healing, deaths
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return combatlog.Session{}, ErrNotFound
	}
	return sess, err
}

func scanSession(row rowScanner) (combatlog.Session, error) {
	var sess combatlog.Session
	var startNs int64
	var endNs sql.NullInt64
	if err := row.Scan(&sess.ID, &startNs, &endNs, &sess.EventCount,
		&sess.TotalDamage, &sess.TotalHealing, &sess.Deaths); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return combatlog.Session{}, err
		}
		return combatlog.Session{}, fmt.Errorf("store: scan session: %w", err)
	}
	sess.StartedAt = time.Unix(0, startNs)
	if endNs.Valid {
		endedAt := time.Unix(0, endNs.Int64)
		sess.EndedAt = &endedAt
	}
	return sess, nil
}

// DeleteSession removes a session and, via the schema's cascade, its
// events.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
