// Package sqlite is the Ledger Store's durable implementation: an
// embedded, transactional SQL database (modernc.org/sqlite, no cgo) with
// two tables and the session_id/request_id indices spec.md §4.G calls
// for, migrated with goose.
package sqlite

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/loki-oidc/loki-splice/pkg/ledger"
	"github.com/loki-oidc/loki-splice/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is fixed-width so that stored timestamps sort chronologically
// as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a goose-migrated, modernc.org/sqlite-backed ledger.Store.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open opens (creating if absent) the sqlite database at dsn and runs any
// pending goose migrations. dsn is passed straight to database/sql, e.g.
// "file:/var/lib/loki/ledger.db?_pragma=foreign_keys(1)".
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger/sqlite: open %s: %w", dsn, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger/sqlite: enable foreign keys: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger/sqlite: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger/sqlite: migrate: %w", err)
	}

	logger.Infow("ledger/sqlite: opened", "dsn", dsn)
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveSession upserts a session record.
func (s *Store) SaveSession(rec ledger.SessionRecord) error {
	mischiefJSON, err := json.Marshal(rec.Mischief)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: marshal mischief: %w", err)
	}
	configJSON, err := json.Marshal(rec.MischiefConfig)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: marshal mischief config: %w", err)
	}

	var endedAt *string
	if rec.EndedAt != nil {
		v := rec.EndedAt.UTC().Format(timeLayout)
		endedAt = &v
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, name, mode, mischief, probability, mischief_config, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mode = excluded.mode,
			mischief = excluded.mischief,
			probability = excluded.probability,
			mischief_config = excluded.mischief_config,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at
	`, rec.ID, rec.Name, rec.Mode, string(mischiefJSON), rec.Probability, string(configJSON),
		rec.StartedAt.UTC().Format(timeLayout), endedAt)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: save session %s: %w", rec.ID, err)
	}
	return nil
}

// LoadSession returns a single session record by id.
func (s *Store) LoadSession(id string) (ledger.SessionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, name, mode, mischief, probability, mischief_config, started_at, ended_at
		FROM sessions WHERE id = ?
	`, id)
	rec, err := scanSession(row)
	if err != nil {
		return ledger.SessionRecord{}, fmt.Errorf("ledger/sqlite: load session %s: %w", id, err)
	}
	return rec, nil
}

// LoadAllSessions returns every session, ordered by descending StartedAt.
func (s *Store) LoadAllSessions() ([]ledger.SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, name, mode, mischief, probability, mischief_config, started_at, ended_at
		FROM sessions ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("ledger/sqlite: load all sessions: %w", err)
	}
	defer rows.Close()

	var out []ledger.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger/sqlite: scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteSession removes a session; ON DELETE CASCADE drops its entries.
func (s *Store) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("ledger/sqlite: delete session %s: %w", id, err)
	}
	return nil
}

// PurgeAll removes every session and entry.
func (s *Store) PurgeAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("ledger/sqlite: purge all: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("ledger/sqlite: purge entries: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("ledger/sqlite: purge sessions: %w", err)
	}
	return tx.Commit()
}

// SaveEntry appends an entry.
func (s *Store) SaveEntry(e ledger.Entry) error {
	evidenceJSON, err := json.Marshal(e.Evidence)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: marshal evidence: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO entries (
			id, session_id, request_id, ts,
			plugin_id, plugin_name, plugin_severity,
			spec_rfc, spec_oidc, spec_cwe, spec_requirement, spec_violation,
			evidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SessionID, e.RequestID, e.Timestamp.UTC().Format(timeLayout),
		e.Plugin.ID, e.Plugin.Name, e.Plugin.Severity,
		e.Spec.RFC, e.Spec.OIDC, e.Spec.CWE, e.Spec.Requirement, e.Spec.Violation,
		string(evidenceJSON))
	if err != nil {
		return fmt.Errorf("ledger/sqlite: save entry %s: %w", e.ID, err)
	}
	return nil
}

// LoadEntries returns a session's entries in ascending timestamp order.
func (s *Store) LoadEntries(sessionID string) ([]ledger.Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, request_id, ts,
		       plugin_id, plugin_name, plugin_severity,
		       spec_rfc, spec_oidc, spec_cwe, spec_requirement, spec_violation,
		       evidence
		FROM entries WHERE session_id = ? ORDER BY ts ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ledger/sqlite: load entries for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var ts string
		var evidenceJSON string
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.RequestID, &ts,
			&e.Plugin.ID, &e.Plugin.Name, &e.Plugin.Severity,
			&e.Spec.RFC, &e.Spec.OIDC, &e.Spec.CWE, &e.Spec.Requirement, &e.Spec.Violation,
			&evidenceJSON,
		); err != nil {
			return nil, fmt.Errorf("ledger/sqlite: scan entry: %w", err)
		}
		e.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("ledger/sqlite: parse entry timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(evidenceJSON), &e.Evidence); err != nil {
			return nil, fmt.Errorf("ledger/sqlite: unmarshal evidence: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanSession.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (ledger.SessionRecord, error) {
	var rec ledger.SessionRecord
	var mischiefJSON string
	var configJSON string
	var startedAt string
	var endedAt *string

	if err := row.Scan(&rec.ID, &rec.Name, &rec.Mode, &mischiefJSON, &rec.Probability, &configJSON, &startedAt, &endedAt); err != nil {
		return ledger.SessionRecord{}, err
	}

	if err := json.Unmarshal([]byte(mischiefJSON), &rec.Mischief); err != nil {
		return ledger.SessionRecord{}, fmt.Errorf("unmarshal mischief: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &rec.MischiefConfig); err != nil {
		return ledger.SessionRecord{}, fmt.Errorf("unmarshal mischief config: %w", err)
	}
	ts, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return ledger.SessionRecord{}, fmt.Errorf("parse started_at: %w", err)
	}
	rec.StartedAt = ts

	if endedAt != nil {
		ended, err := time.Parse(timeLayout, *endedAt)
		if err != nil {
			return ledger.SessionRecord{}, fmt.Errorf("parse ended_at: %w", err)
		}
		rec.EndedAt = &ended
	}

	return rec, nil
}
