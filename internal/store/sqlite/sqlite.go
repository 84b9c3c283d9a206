// Package sqlite persists completed scan sessions and their discovered
// DTCs for later history queries, backed by github.com/mattn/go-sqlite3.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"canscan/internal/appstate"
)

// Store persists session summaries and per-module DTC snapshots.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a sqlite database at dbPath and ensures
// its schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			vin TEXT,
			module_count INTEGER NOT NULL,
			dtc_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_dtcs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			module_id TEXT NOT NULL,
			dtcs JSON NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_dtcs_session
			ON session_dtcs(session_id)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("sqlite: failed to create table: %w", err)
		}
	}
	return nil
}

// SaveSession records one completed session summary and its module DTC
// snapshots in a single transaction.
func (s *Store) SaveSession(summary appstate.SessionSummary, dtcsByModule map[string][]appstate.DtcInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var vin interface{}
	if summary.VIN != nil {
		vin = *summary.VIN
	}

	_, err = tx.Exec(
		`INSERT OR REPLACE INTO sessions (session_id, timestamp, vin, module_count, dtc_count)
		 VALUES (?, ?, ?, ?, ?)`,
		summary.SessionID, summary.Timestamp, vin, summary.ModuleCount, summary.DtcCount,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to save session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM session_dtcs WHERE session_id = ?`, summary.SessionID); err != nil {
		return fmt.Errorf("sqlite: failed to clear prior dtcs: %w", err)
	}

	for moduleID, dtcs := range dtcsByModule {
		payload, err := json.Marshal(dtcs)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal dtcs: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO session_dtcs (session_id, module_id, dtcs) VALUES (?, ?, ?)`,
			summary.SessionID, moduleID, payload,
		)
		if err != nil {
			return fmt.Errorf("sqlite: failed to save module dtcs: %w", err)
		}
	}

	return tx.Commit()
}

// ListSessions returns every saved session summary, most recent first.
func (s *Store) ListSessions() ([]appstate.SessionSummary, error) {
	rows, err := s.db.Query(`SELECT session_id, timestamp, vin, module_count, dtc_count
		FROM sessions ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []appstate.SessionSummary
	for rows.Next() {
		var summary appstate.SessionSummary
		var vin sql.NullString
		var ts time.Time
		if err := rows.Scan(&summary.SessionID, &ts, &vin, &summary.ModuleCount, &summary.DtcCount); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan session row: %w", err)
		}
		summary.Timestamp = ts
		if vin.Valid {
			v := vin.String
			summary.VIN = &v
		}
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

// SessionDTCs returns the DTCs recorded for sessionID, grouped by module.
func (s *Store) SessionDTCs(sessionID string) (map[string][]appstate.DtcInfo, error) {
	rows, err := s.db.Query(`SELECT module_id, dtcs FROM session_dtcs WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query session dtcs: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]appstate.DtcInfo)
	for rows.Next() {
		var moduleID string
		var payload []byte
		if err := rows.Scan(&moduleID, &payload); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan dtc row: %w", err)
		}
		var dtcs []appstate.DtcInfo
		if err := json.Unmarshal(payload, &dtcs); err != nil {
			return nil, fmt.Errorf("sqlite: failed to unmarshal dtcs: %w", err)
		}
		result[moduleID] = dtcs
	}
	return result, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: failed to close database: %w", err)
	}
	return nil
}
